package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"vridge/internal/models"
	"vridge/internal/service"
)

type MockRankingService struct {
	mock.Mock
}

func (m *MockRankingService) ComputeRanking(ctx context.Context, filter models.RankingFilter) ([]models.User, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockRankingService) Snapshot(filter models.RankingFilter) (models.Ranking, bool) {
	args := m.Called(filter)
	return args.Get(0).(models.Ranking), args.Bool(1)
}

func (m *MockRankingService) FilterForViewer(ctx context.Context, viewerID string) (models.RankingFilter, error) {
	args := m.Called(ctx, viewerID)
	return args.Get(0).(models.RankingFilter), args.Error(1)
}

type MockPostService struct {
	mock.Mock
}

func (m *MockPostService) UploadPost(ctx context.Context, req service.UploadPostRequest) (*models.Post, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostService) AmendPost(ctx context.Context, req service.AmendPostRequest) (*models.Post, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostService) ReportPost(ctx context.Context, postID, viewerID string) error {
	args := m.Called(ctx, postID, viewerID)
	return args.Error(0)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) FetchUser(ctx context.Context, uid string) (*models.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FetchUserPoint(ctx context.Context, uid string) (int, error) {
	args := m.Called(ctx, uid)
	return args.Int(0), args.Error(1)
}

func (m *MockUserService) FetchUserType(ctx context.Context, uid string) (string, error) {
	args := m.Called(ctx, uid)
	return args.String(0), args.Error(1)
}

type MockNoticeService struct {
	mock.Mock
}

func (m *MockNoticeService) FetchNotices(ctx context.Context) ([]models.Notice, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notice), args.Error(1)
}

type healthFunc func() error

func (f healthFunc) HealthCheck() error { return f() }

// prefixLinker signs photos by prefixing the object name.
type prefixLinker struct{}

func (prefixLinker) PhotoURL(ctx context.Context, objectName string) (string, error) {
	return "https://cdn.test/" + objectName, nil
}
