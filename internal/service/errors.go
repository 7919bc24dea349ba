package service

import (
	"errors"
	"fmt"

	"vridge/internal/directory"
)

var (
	// ErrFetchFailed marks a failed or timed out remote call. Local state is
	// left untouched and the caller may retry.
	ErrFetchFailed = errors.New("не удалось получить данные")
	// ErrIncompleteSnapshot means the expected number of records never arrived
	// before the wait ran out.
	ErrIncompleteSnapshot = errors.New("данные загружены не полностью")
	ErrForbidden          = errors.New("доступ запрещен")
	ErrInvalidPost        = errors.New("некорректный пост")
	ErrTypeNotSet         = errors.New("тип пользователя не выбран")
)

func fetchFailed(op string, err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrFetchFailed, op, err)
}
