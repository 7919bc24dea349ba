package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"vridge/internal/config"
	"vridge/internal/models"
	"vridge/internal/repository"
)

type RankingService interface {
	ComputeRanking(ctx context.Context, filter models.RankingFilter) ([]models.User, error)
	Snapshot(filter models.RankingFilter) (models.Ranking, bool)
	FilterForViewer(ctx context.Context, viewerID string) (models.RankingFilter, error)
}

// RankingAggregator ranks users by points. A ranking is published only once
// the streamed users add up to the count read beforehand.
type RankingAggregator struct {
	users        repository.UserRepository
	fetchTimeout time.Duration
	waitTimeout  time.Duration
	log          *zap.Logger
	now          func() time.Time

	mu        sync.RWMutex
	snapshots map[models.RankingFilter]models.Ranking
}

func NewRankingAggregator(users repository.UserRepository, cfg config.Feed, log *zap.Logger) *RankingAggregator {
	return &RankingAggregator{
		users:        users,
		fetchTimeout: cfg.FetchTimeout,
		waitTimeout:  cfg.RankingTimeout,
		log:          log,
		now:          time.Now,
		snapshots:    make(map[models.RankingFilter]models.Ranking),
	}
}

func (a *RankingAggregator) ComputeRanking(ctx context.Context, filter models.RankingFilter) ([]models.User, error) {
	cctx, cancel := withTimeout(ctx, a.fetchTimeout)
	expected, err := a.users.Count(cctx, filter)
	cancel()
	if err != nil {
		return nil, fetchFailed("подсчёт пользователей", err)
	}

	if expected == 0 {
		a.publish(filter, []models.User{})
		return []models.User{}, nil
	}

	sctx, cancel := withTimeout(ctx, a.waitTimeout)
	defer cancel()

	stream, err := a.users.Stream(sctx)
	if err != nil {
		return nil, fetchFailed("загрузка пользователей", err)
	}

	users, err := collect(sctx, stream, expected, filter.Match, func(u models.User) string { return u.UID })
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Warn("Рейтинг не сформирован",
			zap.Stringer("filter", filter),
			zap.Int("expected", expected),
			zap.Int("received", len(users)),
			zap.Error(err))
		return nil, err
	}

	sortByPoints(users)
	a.publish(filter, users)

	a.log.Debug("Рейтинг сформирован", zap.Stringer("filter", filter), zap.Int("users", len(users)))
	return cloneUsers(users), nil
}

// Snapshot returns the last complete ranking for filter.
func (a *RankingAggregator) Snapshot(filter models.RankingFilter) (models.Ranking, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ranking, ok := a.snapshots[filter]
	if !ok {
		return models.Ranking{}, false
	}

	ranking.Users = cloneUsers(ranking.Users)
	return ranking, true
}

// FilterForViewer resolves the "my type" ranking filter of a viewer.
func (a *RankingAggregator) FilterForViewer(ctx context.Context, viewerID string) (models.RankingFilter, error) {
	cctx, cancel := withTimeout(ctx, a.fetchTimeout)
	defer cancel()

	user, err := a.users.GetByID(cctx, viewerID)
	if err != nil {
		return models.RankingFilter{}, fetchFailed("загрузка пользователя", err)
	}

	if user.Type == "" {
		return models.RankingFilter{}, ErrTypeNotSet
	}

	return models.RankingByType(user.Type), nil
}

func (a *RankingAggregator) publish(filter models.RankingFilter, users []models.User) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snapshots[filter] = models.Ranking{
		Filter:     filter,
		Users:      cloneUsers(users),
		ComputedAt: a.now(),
	}
}

// sortByPoints keeps stream order among equal points.
func sortByPoints(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Point > users[j].Point
	})
}

func cloneUsers(users []models.User) []models.User {
	return append(make([]models.User, 0, len(users)), users...)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// IsIncomplete reports whether err means a ranking or notice list timed out
// before all records arrived.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncompleteSnapshot)
}

var _ RankingService = (*RankingAggregator)(nil)
