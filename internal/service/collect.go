package service

import (
	"context"
	"fmt"
)

// collect reads stream until expected distinct items passed keep. A repeated
// key replaces the earlier item in place. Returns ErrIncompleteSnapshot with
// whatever arrived if ctx ends or the stream closes first.
func collect[T any](ctx context.Context, stream <-chan T, expected int, keep func(T) bool, key func(T) string) ([]T, error) {
	items := make([]T, 0, expected)
	index := make(map[string]int, expected)

	for len(items) < expected {
		select {
		case <-ctx.Done():
			return items, fmt.Errorf("%w: получено %d из %d: %w", ErrIncompleteSnapshot, len(items), expected, ctx.Err())
		case item, ok := <-stream:
			if !ok {
				return items, fmt.Errorf("%w: поток закрыт, получено %d из %d", ErrIncompleteSnapshot, len(items), expected)
			}
			if !keep(item) {
				continue
			}
			if i, seen := index[key(item)]; seen {
				items[i] = item
				continue
			}
			index[key(item)] = len(items)
			items = append(items, item)
		}
	}

	return items, nil
}
