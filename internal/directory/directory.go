// Package directory is the client side of the remote directory service: a
// hierarchical key-value store addressed by slash separated paths.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrNotFound    = errors.New("запись не найдена")
	ErrInvalidPath = errors.New("некорректный путь")
)

// Record is an untyped payload as stored by the directory. Callers decode it
// into typed entities and apply their own defaults.
type Record map[string]any

// Child is a single child of a streamed or ranged path.
type Child struct {
	Key    string
	Record Record
}

type Directory interface {
	// StreamChildren emits every existing child of path in write order, then
	// every child written afterwards. The channel is closed only when ctx is done.
	StreamChildren(ctx context.Context, path string) (<-chan Child, error)
	// ReadOnce returns the leaf at path, or for an interior path a Record
	// mapping child key to child record.
	ReadOnce(ctx context.Context, path string) (Record, error)
	// Append stores record under a server generated, time sortable key.
	Append(ctx context.Context, path string, record Record) (string, error)
	Set(ctx context.Context, path string, record Record) error
	// Update merges fields into the existing leaf at path.
	Update(ctx context.Context, path string, fields Record) error
	// Increment atomically adds delta to the numeric field of the leaf at
	// path and returns the new value. A missing field counts as zero.
	Increment(ctx context.Context, path string, field string, delta int64) (int64, error)
	// ReadRange returns children of path newest first, limited to [from, to).
	ReadRange(ctx context.Context, path string, from, to int) ([]Child, error)
}

// Join builds a path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func split(path string) (string, string, error) {
	if err := validate(path); err != nil {
		return "", "", err
	}

	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path, nil
	}

	return path[:idx], path[idx+1:], nil
}

func validate(path string) error {
	if path == "" {
		return fmt.Errorf("%w: пустой путь", ErrInvalidPath)
	}

	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}

	return nil
}

// Clone returns a deep copy of the record, so stored values are never shared
// with callers.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}

	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case map[string]any:
		return map[string]any(Record(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

// toInt64 reads a stored number whatever its decoded Go type.
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		return int64(math.Round(val)), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(math.Round(f)), true
		}
	case string:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
