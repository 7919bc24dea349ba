package handlers

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"vridge/internal/config"
	"vridge/internal/service"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck() error
}

type PhotoLinker interface {
	PhotoURL(ctx context.Context, objectName string) (string, error)
}

type Handlers struct {
	Feeds         *service.FeedRegistry
	Ranking       service.RankingService
	PostService   service.PostService
	UserService   service.UserService
	NoticeService service.NoticeService
	Health        HealthChecker
	Photos        PhotoLinker
	Cfg           *config.Config
	Validate      *validator.Validate
	log           *zap.Logger
}

func NewHandlers(services *service.Service, health HealthChecker, photos PhotoLinker, cfg *config.Config, log *zap.Logger) *Handlers {
	return &Handlers{
		Feeds:         services.Feeds,
		Ranking:       services.Ranking,
		PostService:   services.Post,
		UserService:   services.User,
		NoticeService: services.Notice,
		Health:        health,
		Photos:        photos,
		Cfg:           cfg,
		Validate:      validator.New(),
		log:           log,
	}
}

func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/feed", h.GetFeed).Methods(http.MethodGet)
	api.HandleFunc("/feed/more", h.MoreFeed).Methods(http.MethodPost)
	api.HandleFunc("/ranking", h.GetRanking).Methods(http.MethodGet)
	api.HandleFunc("/posts", h.UploadPost).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", h.AmendPost).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id}/report", h.ReportPost).Methods(http.MethodPost)
	api.HandleFunc("/me", h.GetCurrentUser).Methods(http.MethodGet)
	api.HandleFunc("/me/point", h.GetCurrentUserPoint).Methods(http.MethodGet)
	api.HandleFunc("/me/type", h.GetCurrentUserType).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet)
	api.HandleFunc("/notices", h.GetNotices).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, "Не найдено", http.StatusNotFound)
	})

	return r
}

type viewerKey struct{}

// WithViewerID stores the authenticated user ID in ctx.
func WithViewerID(ctx context.Context, viewerID string) context.Context {
	return context.WithValue(ctx, viewerKey{}, viewerID)
}

func ViewerID(ctx context.Context) (string, bool) {
	viewerID, ok := ctx.Value(viewerKey{}).(string)
	return viewerID, ok && viewerID != ""
}

// requireViewer writes 401 and returns false when the request is anonymous.
func requireViewer(w http.ResponseWriter, r *http.Request) (string, bool) {
	viewerID, ok := ViewerID(r.Context())
	if !ok {
		WriteError(w, "Требуется аутентификация", http.StatusUnauthorized)
		return "", false
	}
	return viewerID, true
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.HealthCheck(); err != nil {
			h.log.Warn("Проверка здоровья не пройдена", zap.Error(err))
			WriteError(w, "Хранилище недоступно", http.StatusServiceUnavailable)
			return
		}
	}

	WriteSuccess(w, map[string]string{"status": "ok"}, http.StatusOK)
}
