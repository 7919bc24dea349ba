package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"vridge/internal/config"
	"vridge/internal/models"
	"vridge/internal/repository"
	"vridge/internal/storage"
)

const maxPhotosPerPost = 10

type PhotoUpload struct {
	FileName string    `validate:"required"`
	Size     int64     `validate:"gt=0"`
	Body     io.Reader `validate:"required"`
}

type UploadPostRequest struct {
	AuthorID string        `validate:"required"`
	Caption  string        `validate:"max=200"`
	Photos   []PhotoUpload `validate:"required,min=1,max=10,dive"`
}

type AmendPostRequest struct {
	PostID   string `validate:"required"`
	ViewerID string `validate:"required"`
	Caption  string `validate:"max=200"`
}

type PostService interface {
	UploadPost(ctx context.Context, req UploadPostRequest) (*models.Post, error)
	AmendPost(ctx context.Context, req AmendPostRequest) (*models.Post, error)
	ReportPost(ctx context.Context, postID, viewerID string) error
}

type postService struct {
	posts     repository.PostRepository
	users     repository.UserRepository
	storage   storage.Storage
	validate  *validator.Validate
	postPoint int
	timeout   time.Duration
	log       *zap.Logger
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, storage storage.Storage, cfg *config.Config, log *zap.Logger) PostService {
	return &postService{
		posts:     posts,
		users:     users,
		storage:   storage,
		validate:  validator.New(),
		postPoint: cfg.Feed.PostPoint,
		timeout:   cfg.Feed.FetchTimeout,
		log:       log,
	}
}

func (s *postService) UploadPost(ctx context.Context, req UploadPostRequest) (*models.Post, error) {
	req.Caption = strings.TrimSpace(req.Caption)
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidPost(err)
	}

	author, err := s.fetchAuthor(ctx, req.AuthorID)
	if err != nil {
		return nil, fetchFailed("загрузка автора", err)
	}

	photos := make([]string, 0, len(req.Photos))
	for _, photo := range req.Photos {
		objectName, err := s.storage.UploadPhoto(ctx, req.AuthorID, photo.FileName, photo.Body, photo.Size)
		if err != nil {
			s.removePhotos(ctx, photos)
			if errors.Is(err, storage.ErrUnsupportedPhoto) {
				return nil, fmt.Errorf("%w: %w", ErrInvalidPost, err)
			}
			return nil, fmt.Errorf("ошибка загрузки фото: %w", err)
		}
		photos = append(photos, objectName)
	}

	post := &models.Post{
		AuthorID: author.UID,
		Username: author.Username,
		Type:     author.Type,
		Caption:  req.Caption,
		Photos:   photos,
		Point:    s.postPoint,
	}

	if err := s.remote(ctx, func(ctx context.Context) error { return s.posts.Create(ctx, post) }); err != nil {
		s.removePhotos(ctx, photos)
		return nil, fetchFailed("сохранение поста", err)
	}

	// the post is already public, so a failed award is only logged
	if s.postPoint > 0 {
		err := s.remote(ctx, func(ctx context.Context) error {
			return s.users.AddPoints(ctx, author.UID, s.postPoint)
		})
		if err != nil {
			s.log.Warn("Не удалось начислить баллы за пост",
				zap.String("postId", post.PostID),
				zap.String("uid", author.UID),
				zap.Error(err))
		}
	}

	s.log.Info("Опубликован пост",
		zap.String("postId", post.PostID),
		zap.String("uid", author.UID),
		zap.Int("photos", len(photos)))

	return post, nil
}

func (s *postService) AmendPost(ctx context.Context, req AmendPostRequest) (*models.Post, error) {
	req.Caption = strings.TrimSpace(req.Caption)
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidPost(err)
	}

	post, err := s.fetchPost(ctx, req.PostID)
	if err != nil {
		return nil, fetchFailed("загрузка поста", err)
	}

	if post.AuthorID != req.ViewerID {
		return nil, fmt.Errorf("%w: изменять пост может только автор", ErrForbidden)
	}

	err = s.remote(ctx, func(ctx context.Context) error {
		return s.posts.Amend(ctx, post.PostID, req.Caption, post.Photos)
	})
	if err != nil {
		return nil, fetchFailed("обновление поста", err)
	}

	post.Caption = req.Caption
	return post, nil
}

func (s *postService) ReportPost(ctx context.Context, postID, viewerID string) error {
	if viewerID == "" {
		return fmt.Errorf("%w: не указан пользователь", ErrForbidden)
	}

	post, err := s.fetchPost(ctx, postID)
	if err != nil {
		return fetchFailed("загрузка поста", err)
	}

	if post.AuthorID == viewerID {
		return fmt.Errorf("%w: нельзя пожаловаться на собственный пост", ErrForbidden)
	}

	err = s.remote(ctx, func(ctx context.Context) error {
		return s.posts.Report(ctx, postID, viewerID)
	})
	if err != nil {
		return fetchFailed("отправка жалобы", err)
	}

	return nil
}

// remote runs one directory call bounded by the fetch timeout.
func (s *postService) remote(ctx context.Context, call func(ctx context.Context) error) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return call(ctx)
}

func (s *postService) fetchAuthor(ctx context.Context, uid string) (*models.User, error) {
	var author *models.User
	err := s.remote(ctx, func(ctx context.Context) error {
		var err error
		author, err = s.users.GetByID(ctx, uid)
		return err
	})
	return author, err
}

func (s *postService) fetchPost(ctx context.Context, postID string) (*models.Post, error) {
	var post *models.Post
	err := s.remote(ctx, func(ctx context.Context) error {
		var err error
		post, err = s.posts.GetByID(ctx, postID)
		return err
	})
	return post, err
}

func (s *postService) removePhotos(ctx context.Context, objectNames []string) {
	for _, name := range objectNames {
		if err := s.storage.DeletePhoto(ctx, name); err != nil {
			s.log.Warn("Не удалось удалить фото из MinIO", zap.String("object", name), zap.Error(err))
		}
	}
}

func invalidPost(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidPost, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "Caption":
			fields = append(fields, fmt.Sprintf("подпись длиннее %d символов", models.MaxCaptionLength))
		case "Photos":
			fields = append(fields, fmt.Sprintf("нужно от 1 до %d фото", maxPhotosPerPost))
		default:
			fields = append(fields, fmt.Sprintf("поле %s: %s", fe.Field(), fe.Tag()))
		}
	}

	return fmt.Errorf("%w: %s", ErrInvalidPost, strings.Join(fields, "; "))
}
