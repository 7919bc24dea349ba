package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"vridge/internal/directory"
	"vridge/internal/models"
)

type postRepository struct {
	dir directory.Directory
	now func() time.Time
}

func NewPostRepository(dir directory.Directory) PostRepository {
	return &postRepository{dir: dir, now: time.Now}
}

func (r *postRepository) Count(ctx context.Context) (int, error) {
	posts, err := readCollection(ctx, r.dir, postsPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка при подсчёте постов: %w", err)
	}

	return len(posts), nil
}

func (r *postRepository) GetAll(ctx context.Context) ([]models.Post, error) {
	collection, err := readCollection(ctx, r.dir, postsPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении постов: %w", err)
	}

	// keys are time sortable, so this is creation order
	keys := make([]string, 0, len(collection))
	for key := range collection {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	posts := make([]models.Post, 0, len(keys))
	for _, key := range keys {
		record, ok := asRecord(collection[key])
		if !ok {
			record = directory.Record{}
		}
		posts = append(posts, decodePost(key, record))
	}

	return posts, nil
}

func (r *postRepository) GetWindow(ctx context.Context, window models.FeedWindow) ([]models.Post, error) {
	if window.Empty() {
		return []models.Post{}, nil
	}

	children, err := r.dir.ReadRange(ctx, postsPath, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении постов [%d, %d): %w", window.From, window.To, err)
	}

	posts := make([]models.Post, 0, len(children))
	for _, child := range children {
		posts = append(posts, decodePost(child.Key, child.Record))
	}

	return posts, nil
}

func (r *postRepository) GetByID(ctx context.Context, postID string) (*models.Post, error) {
	record, err := r.dir.ReadOnce(ctx, directory.Join(postsPath, postID))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("пост с ID %s не найден: %w", postID, err)
		}
		return nil, fmt.Errorf("ошибка при получении поста: %w", err)
	}

	post := decodePost(postID, record)
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if post.Timestamp == 0 {
		post.Timestamp = r.now().UnixMilli()
	}

	key, err := r.dir.Append(ctx, postsPath, encodePost(post))
	if err != nil {
		return fmt.Errorf("ошибка при создании поста: %w", err)
	}

	post.PostID = key
	return nil
}

func (r *postRepository) Amend(ctx context.Context, postID, caption string, photos []string) error {
	fields := directory.Record{
		"caption": caption,
		"images":  append([]string{}, photos...),
	}

	if err := r.dir.Update(ctx, directory.Join(postsPath, postID), fields); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return fmt.Errorf("пост с ID %s не найден: %w", postID, err)
		}
		return fmt.Errorf("ошибка при обновлении поста: %w", err)
	}

	return nil
}

func (r *postRepository) Report(ctx context.Context, postID, viewerID string) error {
	record := directory.Record{"timestamp": r.now().UnixMilli()}

	if err := r.dir.Set(ctx, directory.Join(postReportsPath, postID, viewerID), record); err != nil {
		return fmt.Errorf("ошибка при сохранении жалобы: %w", err)
	}

	return nil
}

func (r *postRepository) IsReported(ctx context.Context, postID, viewerID string) (bool, error) {
	_, err := r.dir.ReadOnce(ctx, directory.Join(postReportsPath, postID, viewerID))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка при проверке жалобы на пост %s: %w", postID, err)
	}

	return true, nil
}

func asRecord(v any) (directory.Record, bool) {
	switch val := v.(type) {
	case directory.Record:
		return val, true
	case map[string]any:
		return directory.Record(val), true
	default:
		return nil, false
	}
}
