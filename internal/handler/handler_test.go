package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vridge/internal/config"
	"vridge/internal/directory"
	"vridge/internal/models"
	"vridge/internal/repository"
	"vridge/internal/service"
)

type testHandlers struct {
	*Handlers
	dir     *directory.Memory
	ranking *MockRankingService
	posts   *MockPostService
	users   *MockUserService
	notices *MockNoticeService
}

func newTestHandlers(t *testing.T) *testHandlers {
	t.Helper()

	cfg := &config.Config{
		MaxUploadSize: 1 << 20,
		Feed: config.Feed{
			PageSize:             10,
			FetchTimeout:         time.Second,
			RankingTimeout:       time.Second,
			ReconcileConcurrency: 2,
		},
	}

	dir := directory.NewMemory()
	repo := repository.NewRepository(dir)
	agg := service.NewFeedAggregator(repo.Post, cfg.Feed, zap.NewNop())
	feeds := service.NewFeedRegistry(agg, cfg.Feed, zap.NewNop())
	t.Cleanup(feeds.Close)

	th := &testHandlers{
		dir:     dir,
		ranking: new(MockRankingService),
		posts:   new(MockPostService),
		users:   new(MockUserService),
		notices: new(MockNoticeService),
	}
	th.Handlers = &Handlers{
		Feeds:         feeds,
		Ranking:       th.ranking,
		PostService:   th.posts,
		UserService:   th.users,
		NoticeService: th.notices,
		Photos:        prefixLinker{},
		Cfg:           cfg,
		Validate:      validator.New(),
		log:           zap.NewNop(),
	}

	return th
}

func (th *testHandlers) serve(req *http.Request, viewerID string) *httptest.ResponseRecorder {
	if viewerID != "" {
		req = req.WithContext(WithViewerID(req.Context(), viewerID))
	}
	rec := httptest.NewRecorder()
	th.Router().ServeHTTP(rec, req)
	return rec
}

func (th *testHandlers) seedPost(t *testing.T, authorID string, timestamp int64) string {
	t.Helper()

	key, err := th.dir.Append(context.Background(), "posts", directory.Record{
		"uid":       authorID,
		"caption":   "post",
		"images":    []any{"photos/a.jpg"},
		"timestamp": timestamp,
	})
	require.NoError(t, err)
	return key
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealthHandler(t *testing.T) {
	t.Run("Хранилище доступно", func(t *testing.T) {
		th := newTestHandlers(t)
		th.Health = healthFunc(func() error { return nil })

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/health", nil), "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Хранилище недоступно", func(t *testing.T) {
		th := newTestHandlers(t)
		th.Health = healthFunc(func() error { return errors.New("down") })

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/health", nil), "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestGetFeed(t *testing.T) {
	t.Run("Без авторизации", func(t *testing.T) {
		th := newTestHandlers(t)

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Лента загружается при первом запросе", func(t *testing.T) {
		th := newTestHandlers(t)
		older := th.seedPost(t, "author", 1)
		newer := th.seedPost(t, "author", 2)

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "viewer")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[FeedResponse](t, rec)
		assert.Equal(t, 2, body.Total)
		assert.False(t, body.HasMore)
		require.Len(t, body.Posts, 2)
		assert.Equal(t, newer, body.Posts[0].PostID)
		assert.Equal(t, older, body.Posts[1].PostID)
		assert.Equal(t, []string{"https://cdn.test/photos/a.jpg"}, body.Posts[0].Photos)
	})

	t.Run("Обновление подхватывает новые посты", func(t *testing.T) {
		th := newTestHandlers(t)
		th.seedPost(t, "author", 1)
		th.serve(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "viewer")
		th.seedPost(t, "author", 2)

		cached := decodeBody[FeedResponse](t, th.serve(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "viewer"))
		fresh := decodeBody[FeedResponse](t, th.serve(httptest.NewRequest(http.MethodGet, "/api/feed?refresh=1", nil), "viewer"))

		assert.Equal(t, 1, cached.Total)
		assert.Equal(t, 2, fresh.Total)
	})

	t.Run("Кэшированная лента видит новую жалобу", func(t *testing.T) {
		th := newTestHandlers(t)
		postID := th.seedPost(t, "author", 1)
		th.serve(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "viewer")

		err := th.dir.Set(context.Background(), directory.Join("post-reports", postID, "viewer"),
			directory.Record{"timestamp": int64(1)})
		require.NoError(t, err)

		body := decodeBody[FeedResponse](t, th.serve(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "viewer"))

		require.Len(t, body.Posts, 1)
		assert.True(t, body.Posts[0].IsReported)
		assert.Equal(t, 1, body.Total)
	})

	t.Run("Подгрузка", func(t *testing.T) {
		th := newTestHandlers(t)
		th.seedPost(t, "author", 1)

		rec := th.serve(httptest.NewRequest(http.MethodPost, "/api/feed/more", nil), "viewer")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[FeedResponse](t, rec).Posts, 1)
	})
}

func TestGetRanking(t *testing.T) {
	users := make([]models.User, 0, 5)
	for i := 5; i >= 1; i-- {
		users = append(users, models.User{UID: fmt.Sprintf("u%d", i), Point: i * 10})
	}

	t.Run("Общий рейтинг", func(t *testing.T) {
		th := newTestHandlers(t)
		computedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		th.ranking.On("ComputeRanking", mock.Anything, models.RankingAll).Return(users, nil)
		th.ranking.On("Snapshot", models.RankingAll).Return(models.Ranking{ComputedAt: computedAt}, true)

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/ranking", nil), "viewer")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[RankingResponse](t, rec)
		assert.Equal(t, 5, body.Total)
		assert.Len(t, body.Podium, 3)
		assert.Equal(t, []models.RankEntry{{Rank: 4, User: users[3]}, {Rank: 5, User: users[4]}}, body.Entries)
		assert.True(t, computedAt.Equal(body.ComputedAt))
	})

	t.Run("Рейтинг по своему типу", func(t *testing.T) {
		th := newTestHandlers(t)
		filter := models.RankingByType("vegan")
		th.ranking.On("FilterForViewer", mock.Anything, "viewer").Return(filter, nil)
		th.ranking.On("ComputeRanking", mock.Anything, filter).Return([]models.User{}, nil)
		th.ranking.On("Snapshot", filter).Return(models.Ranking{}, true)

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/ranking?filter=mine", nil), "viewer")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[RankingResponse](t, rec)
		assert.Equal(t, filter, body.Filter)
		assert.Empty(t, body.Podium)
	})

	tests := []struct {
		name           string
		query          string
		mockSetup      func(*MockRankingService)
		expectedStatus int
	}{
		{
			name:           "Тип не указан",
			query:          "?filter=type",
			mockSetup:      func(*MockRankingService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Неизвестный фильтр",
			query:          "?filter=friends",
			mockSetup:      func(*MockRankingService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "Тип пользователя не выбран",
			query: "?filter=mine",
			mockSetup: func(m *MockRankingService) {
				m.On("FilterForViewer", mock.Anything, "viewer").Return(models.RankingFilter{}, service.ErrTypeNotSet)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "Неполные данные",
			query: "?filter=type&type=keto",
			mockSetup: func(m *MockRankingService) {
				m.On("ComputeRanking", mock.Anything, models.RankingByType("keto")).
					Return(nil, fmt.Errorf("%w: получено 3 из 5", service.ErrIncompleteSnapshot))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandlers(t)
			tt.mockSetup(th.ranking)

			rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/ranking"+tt.query, nil), "viewer")

			assert.Equal(t, tt.expectedStatus, rec.Code)
			th.ranking.AssertExpectations(t)
		})
	}
}

func multipartBody(t *testing.T, caption string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("caption", caption))
	for name, content := range files {
		part, err := writer.CreateFormFile("photos", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestUploadPost(t *testing.T) {
	t.Run("Успешная загрузка", func(t *testing.T) {
		th := newTestHandlers(t)
		body, contentType := multipartBody(t, "salad", map[string][]byte{"a.jpg": []byte("jpeg")})
		th.posts.On("UploadPost", mock.Anything, mock.MatchedBy(func(req service.UploadPostRequest) bool {
			return req.AuthorID == "viewer" && req.Caption == "salad" &&
				len(req.Photos) == 1 && req.Photos[0].FileName == "a.jpg" && req.Photos[0].Size == 4
		})).Return(&models.Post{PostID: "p1", AuthorID: "viewer", Caption: "salad"}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
		req.Header.Set("Content-Type", contentType)
		rec := th.serve(req, "viewer")

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "p1", decodeBody[models.Post](t, rec).PostID)
		th.posts.AssertExpectations(t)
	})

	t.Run("Некорректный пост", func(t *testing.T) {
		th := newTestHandlers(t)
		body, contentType := multipartBody(t, "no photos", nil)
		th.posts.On("UploadPost", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: нужно от 1 до 10 фото", service.ErrInvalidPost))

		req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
		req.Header.Set("Content-Type", contentType)
		rec := th.serve(req, "viewer")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "нужно от 1 до 10 фото")
	})

	t.Run("Слишком большой файл", func(t *testing.T) {
		th := newTestHandlers(t)
		th.Cfg.MaxUploadSize = 1024
		body, contentType := multipartBody(t, "big", map[string][]byte{"a.jpg": bytes.Repeat([]byte("x"), 4096)})

		req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
		req.Header.Set("Content-Type", contentType)
		rec := th.serve(req, "viewer")

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "1.0 KiB")
		th.posts.AssertNotCalled(t, "UploadPost", mock.Anything, mock.Anything)
	})
}

func TestAmendPost(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockSetup      func(*MockPostService)
		expectedStatus int
	}{
		{
			name: "Автор меняет подпись",
			body: `{"caption":"new"}`,
			mockSetup: func(m *MockPostService) {
				m.On("AmendPost", mock.Anything, service.AmendPostRequest{PostID: "p1", ViewerID: "viewer", Caption: "new"}).
					Return(&models.Post{PostID: "p1", Caption: "new"}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Неверный JSON",
			body:           `{`,
			mockSetup:      func(*MockPostService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Длинная подпись",
			body:           `{"caption":"` + strings.Repeat("a", models.MaxCaptionLength+1) + `"}`,
			mockSetup:      func(*MockPostService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Чужой пост",
			body: `{"caption":"new"}`,
			mockSetup: func(m *MockPostService) {
				m.On("AmendPost", mock.Anything, mock.Anything).Return(nil, service.ErrForbidden)
			},
			expectedStatus: http.StatusForbidden,
		},
		{
			name: "Пост не найден",
			body: `{"caption":"new"}`,
			mockSetup: func(m *MockPostService) {
				m.On("AmendPost", mock.Anything, mock.Anything).Return(nil, directory.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandlers(t)
			tt.mockSetup(th.posts)

			rec := th.serve(httptest.NewRequest(http.MethodPut, "/api/posts/p1", strings.NewReader(tt.body)), "viewer")

			assert.Equal(t, tt.expectedStatus, rec.Code)
			th.posts.AssertExpectations(t)
		})
	}
}

func TestReportPost(t *testing.T) {
	t.Run("Жалоба отмечается в ленте", func(t *testing.T) {
		th := newTestHandlers(t)
		postID := th.seedPost(t, "author", 1)
		th.serve(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "viewer")
		th.posts.On("ReportPost", mock.Anything, postID, "viewer").Return(nil)

		rec := th.serve(httptest.NewRequest(http.MethodPost, "/api/posts/"+postID+"/report", nil), "viewer")

		require.Equal(t, http.StatusOK, rec.Code)
		posts := th.Feeds.Get("viewer").Posts()
		require.Len(t, posts, 1)
		assert.True(t, posts[0].IsReported)
	})

	t.Run("Сервис недоступен", func(t *testing.T) {
		th := newTestHandlers(t)
		th.posts.On("ReportPost", mock.Anything, "p1", "viewer").
			Return(fmt.Errorf("%w: отправка жалобы: %w", service.ErrFetchFailed, errors.New("timeout")))

		rec := th.serve(httptest.NewRequest(http.MethodPost, "/api/posts/p1/report", nil), "viewer")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestUserHandlers(t *testing.T) {
	th := newTestHandlers(t)
	th.users.On("FetchUser", mock.Anything, "viewer").Return(&models.User{UID: "viewer", Username: "kim", Point: 7}, nil)
	th.users.On("FetchUser", mock.Anything, "ghost").Return(nil, fmt.Errorf("пользователь с ID ghost не найден: %w", directory.ErrNotFound))
	th.users.On("FetchUser", mock.Anything, "broken").Return(nil, errors.New("unexpected"))

	t.Run("Текущий пользователь", func(t *testing.T) {
		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/me", nil), "viewer")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 7, decodeBody[models.User](t, rec).Point)
	})

	t.Run("Пользователь не найден", func(t *testing.T) {
		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/users/ghost", nil), "viewer")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Очки текущего пользователя", func(t *testing.T) {
		th.users.On("FetchUserPoint", mock.Anything, "viewer").Return(12, nil).Once()

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/me/point", nil), "viewer")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 12, decodeBody[PointResponse](t, rec).Point)
	})

	t.Run("Тип текущего пользователя", func(t *testing.T) {
		th.users.On("FetchUserType", mock.Anything, "viewer").Return("vegan", nil).Once()

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/me/type", nil), "viewer")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "vegan", decodeBody[TypeResponse](t, rec).Type)
	})

	t.Run("Очки недоступны", func(t *testing.T) {
		th.users.On("FetchUserPoint", mock.Anything, "slow").
			Return(0, fmt.Errorf("%w: загрузка пользователя: %w", service.ErrFetchFailed, context.DeadlineExceeded)).Once()

		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/me/point", nil), "slow")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("Внутренняя ошибка скрывается", func(t *testing.T) {
		rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/users/broken", nil), "viewer")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Внутренняя ошибка сервера", decodeBody[ErrorResponse](t, rec).Error)
	})
}

func TestGetNotices(t *testing.T) {
	th := newTestHandlers(t)
	th.notices.On("FetchNotices", mock.Anything).Return([]models.Notice{{NoticeID: "n1", Title: "hello"}}, nil)

	rec := th.serve(httptest.NewRequest(http.MethodGet, "/api/notices", nil), "viewer")

	require.Equal(t, http.StatusOK, rec.Code)
	notices := decodeBody[[]models.Notice](t, rec)
	require.Len(t, notices, 1)
	assert.Equal(t, "hello", notices[0].Title)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	th := newTestHandlers(t)

	rec := th.serve(httptest.NewRequest(http.MethodDelete, "/api/feed", nil), "viewer")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
