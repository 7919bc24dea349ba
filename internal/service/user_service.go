package service

import (
	"context"
	"time"

	"vridge/internal/config"
	"vridge/internal/models"
	"vridge/internal/repository"
)

type UserService interface {
	FetchUser(ctx context.Context, uid string) (*models.User, error)
	FetchUserPoint(ctx context.Context, uid string) (int, error)
	FetchUserType(ctx context.Context, uid string) (string, error)
}

type userService struct {
	userRepo repository.UserRepository
	timeout  time.Duration
}

func NewUserService(userRepo repository.UserRepository, cfg *config.Config) UserService {
	return &userService{
		userRepo: userRepo,
		timeout:  cfg.Feed.FetchTimeout,
	}
}

func (s *userService) FetchUser(ctx context.Context, uid string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.userRepo.GetByID(ctx, uid)
	if err != nil {
		return nil, fetchFailed("загрузка пользователя", err)
	}

	return user, nil
}

func (s *userService) FetchUserPoint(ctx context.Context, uid string) (int, error) {
	user, err := s.FetchUser(ctx, uid)
	if err != nil {
		return 0, err
	}
	return user.Point, nil
}

func (s *userService) FetchUserType(ctx context.Context, uid string) (string, error) {
	user, err := s.FetchUser(ctx, uid)
	if err != nil {
		return "", err
	}
	return user.Type, nil
}
