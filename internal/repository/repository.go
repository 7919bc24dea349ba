package repository

import (
	"context"
	"errors"

	"vridge/internal/directory"
	"vridge/internal/models"
)

const (
	postsPath       = "posts"
	usersPath       = "users"
	noticesPath     = "notices"
	postReportsPath = "post-reports"
)

type PostRepository interface {
	Count(ctx context.Context) (int, error)
	GetAll(ctx context.Context) ([]models.Post, error)
	GetWindow(ctx context.Context, window models.FeedWindow) ([]models.Post, error)
	GetByID(ctx context.Context, postID string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Amend(ctx context.Context, postID, caption string, photos []string) error
	Report(ctx context.Context, postID, viewerID string) error
	IsReported(ctx context.Context, postID, viewerID string) (bool, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, uid string) (*models.User, error)
	Count(ctx context.Context, filter models.RankingFilter) (int, error)
	Stream(ctx context.Context) (<-chan models.User, error)
	AddPoints(ctx context.Context, uid string, points int) error
}

type NoticeRepository interface {
	Count(ctx context.Context) (int, error)
	Stream(ctx context.Context) (<-chan models.Notice, error)
}

type Repository struct {
	Post   PostRepository
	User   UserRepository
	Notice NoticeRepository
}

func NewRepository(dir directory.Directory) *Repository {
	return &Repository{
		Post:   NewPostRepository(dir),
		User:   NewUserRepository(dir),
		Notice: NewNoticeRepository(dir),
	}
}

// readCollection treats a missing collection as an empty one.
func readCollection(ctx context.Context, dir directory.Directory, path string) (directory.Record, error) {
	record, err := dir.ReadOnce(ctx, path)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Record{}, nil
		}
		return nil, err
	}
	return record, nil
}
