package repository

import (
	"context"
	"errors"

	"vridge/internal/directory"
)

var errUnavailable = errors.New("directory unavailable")

// failingDirectory fails every read, leaving writes to the embedded memory directory.
type failingDirectory struct {
	*directory.Memory
}

func (failingDirectory) ReadOnce(ctx context.Context, path string) (directory.Record, error) {
	return nil, errUnavailable
}

func (failingDirectory) ReadRange(ctx context.Context, path string, from, to int) ([]directory.Child, error) {
	return nil, errUnavailable
}

func (failingDirectory) StreamChildren(ctx context.Context, path string) (<-chan directory.Child, error) {
	return nil, errUnavailable
}
