package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vridge/internal/config"
	"vridge/internal/models"
	"vridge/internal/repository"
)

// FeedAggregator turns the remote post collection into a locally ordered,
// duplicate free list. It holds no list state of its own; see Feed for that.
type FeedAggregator struct {
	posts       repository.PostRepository
	timeout     time.Duration
	concurrency int
	log         *zap.Logger
}

func NewFeedAggregator(posts repository.PostRepository, cfg config.Feed, log *zap.Logger) *FeedAggregator {
	concurrency := cfg.ReconcileConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &FeedAggregator{
		posts:       posts,
		timeout:     cfg.FetchTimeout,
		concurrency: concurrency,
		log:         log,
	}
}

func (a *FeedAggregator) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, a.timeout)
}

// Total returns the authoritative number of posts.
func (a *FeedAggregator) Total(ctx context.Context) (int, error) {
	fctx, cancel := a.fetchContext(ctx)
	defer cancel()

	total, err := a.posts.Count(fctx)
	if err != nil {
		return 0, fetchFailed("подсчёт постов", err)
	}

	return total, nil
}

// LoadInitial fetches every known post newest first, with report flags set
// for viewerID.
func (a *FeedAggregator) LoadInitial(ctx context.Context, viewerID string) ([]models.Post, error) {
	fctx, cancel := a.fetchContext(ctx)
	posts, err := a.posts.GetAll(fctx)
	cancel()
	if err != nil {
		return nil, fetchFailed("загрузка ленты", err)
	}

	SortNewestFirst(posts)

	return a.ReconcileReportStatus(ctx, viewerID, posts), nil
}

// LoadMore fetches the window after current and merges it in by post ID.
// current is never modified; once len(current) reaches total it is returned as is.
func (a *FeedAggregator) LoadMore(ctx context.Context, viewerID string, current []models.Post, total, pageSize int) ([]models.Post, error) {
	window := models.NextWindow(len(current), total, pageSize)
	if window.Empty() {
		return current, nil
	}

	fctx, cancel := a.fetchContext(ctx)
	page, err := a.posts.GetWindow(fctx, window)
	cancel()
	if err != nil {
		return nil, fetchFailed("подгрузка ленты", err)
	}

	a.log.Debug("Подгружена страница ленты",
		zap.Int("from", window.From),
		zap.Int("to", window.To),
		zap.Int("received", len(page)))

	page = a.ReconcileReportStatus(ctx, viewerID, page)

	return MergePosts(current, page), nil
}

// ReconcileReportStatus checks every post independently and returns a copy
// where only IsReported differs from the input. A failed check keeps the
// post's current flag.
func (a *FeedAggregator) ReconcileReportStatus(ctx context.Context, viewerID string, posts []models.Post) []models.Post {
	out := clonePosts(posts)
	if viewerID == "" || len(out) == 0 {
		return out
	}

	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for i := range out {
		postID := out[i].PostID
		g.Go(func() error {
			fctx, cancel := a.fetchContext(ctx)
			defer cancel()

			reported, err := a.posts.IsReported(fctx, postID, viewerID)
			if err != nil {
				a.log.Warn("Не удалось проверить жалобу на пост",
					zap.String("postId", postID),
					zap.String("viewerId", viewerID),
					zap.Error(err))
				return nil
			}

			out[i].IsReported = reported
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// MergePosts returns current plus page without duplicates, newest first.
// A fetched post replaces the local copy; a report flag, once set, stays set.
func MergePosts(current, page []models.Post) []models.Post {
	merged := make([]models.Post, 0, len(current)+len(page))
	index := make(map[string]int, len(current)+len(page))

	add := func(post models.Post) {
		if i, ok := index[post.PostID]; ok {
			post.IsReported = post.IsReported || merged[i].IsReported
			merged[i] = clonePost(post)
			return
		}
		index[post.PostID] = len(merged)
		merged = append(merged, clonePost(post))
	}

	for _, post := range current {
		add(post)
	}
	for _, post := range page {
		add(post)
	}

	SortNewestFirst(merged)
	return merged
}

// SortNewestFirst orders posts by timestamp, descending. Equal timestamps keep
// their relative order.
func SortNewestFirst(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Timestamp > posts[j].Timestamp
	})
}

func clonePost(post models.Post) models.Post {
	if post.Photos != nil {
		post.Photos = append(make([]string, 0, len(post.Photos)), post.Photos...)
	}
	return post
}

func clonePosts(posts []models.Post) []models.Post {
	out := make([]models.Post, len(posts))
	for i, post := range posts {
		out[i] = clonePost(post)
	}
	return out
}
