package repository

import (
	"context"
	"errors"
	"fmt"

	"vridge/internal/directory"
	"vridge/internal/models"
)

type userRepository struct {
	dir directory.Directory
}

func NewUserRepository(dir directory.Directory) UserRepository {
	return &userRepository{dir: dir}
}

func (r *userRepository) GetByID(ctx context.Context, uid string) (*models.User, error) {
	record, err := r.dir.ReadOnce(ctx, directory.Join(usersPath, uid))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("пользователь с ID %s не найден: %w", uid, err)
		}
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}

	user := decodeUser(uid, record)
	return &user, nil
}

func (r *userRepository) Count(ctx context.Context, filter models.RankingFilter) (int, error) {
	collection, err := readCollection(ctx, r.dir, usersPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка при подсчёте пользователей: %w", err)
	}

	if filter.All() {
		return len(collection), nil
	}

	count := 0
	for uid, value := range collection {
		record, _ := asRecord(value)
		if filter.Match(decodeUser(uid, record)) {
			count++
		}
	}

	return count, nil
}

func (r *userRepository) Stream(ctx context.Context) (<-chan models.User, error) {
	children, err := r.dir.StreamChildren(ctx, usersPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписки на пользователей: %w", err)
	}

	out := make(chan models.User)
	go func() {
		defer close(out)
		for child := range children {
			select {
			case out <- decodeUser(child.Key, child.Record):
			case <-ctx.Done():
				// drain so the directory stream can shut down
				for range children {
				}
				return
			}
		}
	}()

	return out, nil
}

func (r *userRepository) AddPoints(ctx context.Context, uid string, points int) error {
	if points < 0 {
		return fmt.Errorf("количество очков не может быть отрицательным: %d", points)
	}

	if _, err := r.dir.Increment(ctx, directory.Join(usersPath, uid), "point", int64(points)); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return fmt.Errorf("пользователь с ID %s не найден: %w", uid, err)
		}
		return fmt.Errorf("ошибка при начислении очков: %w", err)
	}

	return nil
}
