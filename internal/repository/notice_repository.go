package repository

import (
	"context"
	"fmt"

	"vridge/internal/directory"
	"vridge/internal/models"
)

type noticeRepository struct {
	dir directory.Directory
}

func NewNoticeRepository(dir directory.Directory) NoticeRepository {
	return &noticeRepository{dir: dir}
}

func (r *noticeRepository) Count(ctx context.Context) (int, error) {
	notices, err := readCollection(ctx, r.dir, noticesPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка при подсчёте объявлений: %w", err)
	}

	return len(notices), nil
}

func (r *noticeRepository) Stream(ctx context.Context) (<-chan models.Notice, error) {
	children, err := r.dir.StreamChildren(ctx, noticesPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписки на объявления: %w", err)
	}

	out := make(chan models.Notice)
	go func() {
		defer close(out)
		for child := range children {
			select {
			case out <- decodeNotice(child.Key, child.Record):
			case <-ctx.Done():
				for range children {
				}
				return
			}
		}
	}()

	return out, nil
}
