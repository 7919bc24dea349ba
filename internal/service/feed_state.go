package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vridge/internal/config"
	"vridge/internal/models"
)

type FeedEventKind int

const (
	FeedUpdated FeedEventKind = iota
	FeedFetchFailed
)

func (k FeedEventKind) String() string {
	switch k {
	case FeedUpdated:
		return "updated"
	case FeedFetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

type FeedEvent struct {
	Kind  FeedEventKind
	Posts int
	Total int
	Err   error
}

const feedEventBuffer = 16

// Feed is the materialized feed of one viewer. Readers get copies; only the
// Feed mutates its list. A completion that started before the latest Refresh
// finished is dropped.
type Feed struct {
	agg      *FeedAggregator
	viewerID string
	pageSize int
	log      *zap.Logger

	// loadMu serializes More so the same window is never fetched twice.
	loadMu sync.Mutex

	mu     sync.RWMutex
	posts  []models.Post
	total  int
	gen    uint64
	loaded bool
	closed bool
	events chan FeedEvent
}

func NewFeed(agg *FeedAggregator, viewerID string, pageSize int, log *zap.Logger) *Feed {
	if pageSize <= 0 {
		pageSize = 10
	}

	return &Feed{
		agg:      agg,
		viewerID: viewerID,
		pageSize: pageSize,
		log:      log.With(zap.String("viewerId", viewerID)),
		posts:    []models.Post{},
		events:   make(chan FeedEvent, feedEventBuffer),
	}
}

func (f *Feed) ViewerID() string {
	return f.viewerID
}

func (f *Feed) Posts() []models.Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return clonePosts(f.posts)
}

func (f *Feed) Total() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.total
}

func (f *Feed) Loaded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loaded
}

// Events delivers state changes. Slow readers miss events rather than block
// the feed. The channel is closed by Close.
func (f *Feed) Events() <-chan FeedEvent {
	return f.events
}

// Refresh reloads the total and the whole feed. Any load still in flight,
// or started before this one completes, becomes stale.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	total, err := f.agg.Total(ctx)
	if err != nil {
		f.fail(err)
		return err
	}

	posts, err := f.agg.LoadInitial(ctx, f.viewerID)
	if err != nil {
		f.fail(err)
		return err
	}

	f.install(gen, posts, total, true)
	return nil
}

// More loads the next page, or the whole feed if nothing was loaded yet.
func (f *Feed) More(ctx context.Context) error {
	f.loadMu.Lock()
	defer f.loadMu.Unlock()

	f.mu.RLock()
	loaded := f.loaded
	posts := clonePosts(f.posts)
	total := f.total
	gen := f.gen
	f.mu.RUnlock()

	if !loaded {
		return f.Refresh(ctx)
	}

	merged, err := f.agg.LoadMore(ctx, f.viewerID, posts, total, f.pageSize)
	if err != nil {
		f.fail(err)
		return err
	}

	f.install(gen, merged, total, false)
	return nil
}

// Reconcile re-checks report status of the loaded posts. Results are applied
// by post ID, so it may interleave freely with More and Refresh.
func (f *Feed) Reconcile(ctx context.Context) {
	reconciled := f.agg.ReconcileReportStatus(ctx, f.viewerID, f.Posts())

	reported := make(map[string]struct{})
	for _, post := range reconciled {
		if post.IsReported {
			reported[post.PostID] = struct{}{}
		}
	}

	f.markReported(reported)
}

// ApplyReport marks a post the viewer just reported.
func (f *Feed) ApplyReport(postID string) {
	f.markReported(map[string]struct{}{postID: {}})
}

func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	close(f.events)
}

func (f *Feed) markReported(reported map[string]struct{}) {
	if len(reported) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	changed := false
	for i := range f.posts {
		if _, ok := reported[f.posts[i].PostID]; ok && !f.posts[i].IsReported {
			f.posts[i].IsReported = true
			changed = true
		}
	}

	if changed {
		f.emitLocked(FeedEvent{Kind: FeedUpdated, Posts: len(f.posts), Total: f.total})
	}
}

// install replaces the list if nothing superseded gen. A refresh advances
// the generation on success, so a More that snapshotted the pre-refresh list
// cannot overwrite it.
func (f *Feed) install(gen uint64, posts []models.Post, total int, refresh bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.gen || f.closed {
		f.log.Debug("Отброшен устаревший результат загрузки ленты")
		return
	}
	if refresh {
		f.gen++
	}

	// keep flags set while the load was in flight
	reported := make(map[string]bool, len(f.posts))
	for _, post := range f.posts {
		if post.IsReported {
			reported[post.PostID] = true
		}
	}
	for i := range posts {
		if reported[posts[i].PostID] {
			posts[i].IsReported = true
		}
	}

	f.posts = posts
	f.total = total
	f.loaded = true
	f.emitLocked(FeedEvent{Kind: FeedUpdated, Posts: len(posts), Total: total})
}

func (f *Feed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitLocked(FeedEvent{Kind: FeedFetchFailed, Posts: len(f.posts), Total: f.total, Err: err})
}

func (f *Feed) emitLocked(event FeedEvent) {
	if f.closed {
		return
	}

	select {
	case f.events <- event:
	default:
	}
}

// FeedRegistry keeps one Feed per viewer and logs what the feeds report.
// Feeds nobody asked for within the idle TTL are closed by Sweep.
type FeedRegistry struct {
	agg      *FeedAggregator
	pageSize int
	idleTTL  time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	feeds map[string]*feedEntry
}

type feedEntry struct {
	feed     *Feed
	lastUsed time.Time
}

func NewFeedRegistry(agg *FeedAggregator, cfg config.Feed, log *zap.Logger) *FeedRegistry {
	return &FeedRegistry{
		agg:      agg,
		pageSize: cfg.PageSize,
		idleTTL:  cfg.IdleTTL,
		log:      log,
		now:      time.Now,
		feeds:    make(map[string]*feedEntry),
	}
}

func (r *FeedRegistry) Get(viewerID string) *Feed {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.feeds[viewerID]
	if !ok {
		entry = &feedEntry{feed: NewFeed(r.agg, viewerID, r.pageSize, r.log)}
		r.feeds[viewerID] = entry
		go r.watch(entry.feed)
	}
	entry.lastUsed = r.now()

	return entry.feed
}

// Len returns the number of live feeds.
func (r *FeedRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}

// Remove closes and forgets the viewer's feed.
func (r *FeedRegistry) Remove(viewerID string) {
	r.mu.Lock()
	entry, ok := r.feeds[viewerID]
	delete(r.feeds, viewerID)
	r.mu.Unlock()

	if ok {
		entry.feed.Close()
	}
}

// Sweep closes every feed idle for longer than the TTL and returns how many
// were closed. A zero TTL keeps feeds forever.
func (r *FeedRegistry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}

	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Feed
	for viewerID, entry := range r.feeds {
		if entry.lastUsed.Before(cutoff) {
			idle = append(idle, entry.feed)
			delete(r.feeds, viewerID)
		}
	}
	r.mu.Unlock()

	for _, feed := range idle {
		feed.Close()
	}

	if len(idle) > 0 {
		r.log.Info("Освобождены неактивные ленты", zap.Int("count", len(idle)))
	}

	return len(idle)
}

// Run sweeps idle feeds every interval until ctx is done.
func (r *FeedRegistry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = r.idleTTL
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *FeedRegistry) Close() {
	r.mu.Lock()
	feeds := r.feeds
	r.feeds = make(map[string]*feedEntry)
	r.mu.Unlock()

	for _, entry := range feeds {
		entry.feed.Close()
	}
}

// watch drains the feed's events until the feed is closed.
func (r *FeedRegistry) watch(feed *Feed) {
	for event := range feed.Events() {
		switch event.Kind {
		case FeedFetchFailed:
			r.log.Warn("Ошибка загрузки ленты",
				zap.String("viewerId", feed.ViewerID()),
				zap.Int("posts", event.Posts),
				zap.Error(event.Err))
		default:
			r.log.Debug("Лента обновлена",
				zap.String("viewerId", feed.ViewerID()),
				zap.Int("posts", event.Posts),
				zap.Int("total", event.Total))
		}
	}
}
