package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"vridge/internal/config"
	"vridge/internal/models"
	"vridge/internal/repository"
)

type NoticeService interface {
	FetchNotices(ctx context.Context) ([]models.Notice, error)
}

type noticeService struct {
	notices      repository.NoticeRepository
	fetchTimeout time.Duration
	waitTimeout  time.Duration
	log          *zap.Logger
}

func NewNoticeService(notices repository.NoticeRepository, cfg *config.Config, log *zap.Logger) NoticeService {
	return &noticeService{
		notices:      notices,
		fetchTimeout: cfg.Feed.FetchTimeout,
		waitTimeout:  cfg.Feed.RankingTimeout,
		log:          log,
	}
}

// FetchNotices waits for every notice counted up front and returns them
// newest first.
func (s *noticeService) FetchNotices(ctx context.Context) ([]models.Notice, error) {
	cctx, cancel := withTimeout(ctx, s.fetchTimeout)
	expected, err := s.notices.Count(cctx)
	cancel()
	if err != nil {
		return nil, fetchFailed("подсчёт объявлений", err)
	}

	if expected == 0 {
		return []models.Notice{}, nil
	}

	sctx, cancel := withTimeout(ctx, s.waitTimeout)
	defer cancel()

	stream, err := s.notices.Stream(sctx)
	if err != nil {
		return nil, fetchFailed("загрузка объявлений", err)
	}

	notices, err := collect(sctx, stream, expected,
		func(models.Notice) bool { return true },
		func(n models.Notice) string { return n.NoticeID })
	if err != nil {
		s.log.Warn("Объявления загружены не полностью",
			zap.Int("expected", expected),
			zap.Int("received", len(notices)),
			zap.Error(err))
		return nil, err
	}

	sort.SliceStable(notices, func(i, j int) bool {
		return notices[i].Timestamp > notices[j].Timestamp
	})

	return notices, nil
}
