package service

import (
	"go.uber.org/zap"

	"vridge/internal/config"
	"vridge/internal/repository"
	"vridge/internal/storage"
)

type Service struct {
	Feed    *FeedAggregator
	Feeds   *FeedRegistry
	Ranking RankingService
	Post    PostService
	User    UserService
	Notice  NoticeService
}

func NewService(rep *repository.Repository, cfg *config.Config, storage storage.Storage, log *zap.Logger) *Service {
	feed := NewFeedAggregator(rep.Post, cfg.Feed, log.Named("feed"))

	return &Service{
		Feed:    feed,
		Feeds:   NewFeedRegistry(feed, cfg.Feed, log.Named("feed")),
		Ranking: NewRankingAggregator(rep.User, cfg.Feed, log.Named("ranking")),
		Post:    NewPostService(rep.Post, rep.User, storage, cfg, log.Named("post")),
		User:    NewUserService(rep.User, cfg),
		Notice:  NewNoticeService(rep.Notice, cfg, log.Named("notice")),
	}
}

// Close releases every viewer feed.
func (s *Service) Close() {
	s.Feeds.Close()
}
