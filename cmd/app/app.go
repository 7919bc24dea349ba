package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vridge/internal/config"
	"vridge/internal/database"
	"vridge/internal/directory"
	"vridge/internal/repository"
	"vridge/internal/service"
	"vridge/internal/storage"
)

// App holds everything main needs to serve and shut down.
type App struct {
	DB        *database.DB
	Directory directory.Directory
	Storage   *storage.MinIOClient
	Services  *service.Service
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{}

	switch cfg.DirectoryDriver {
	case "postgres":
		db, err := database.ConnectDB(cfg, log.Named("database"))
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Directory = directory.NewPostgres(db.DB, cfg.DB.ConnString(), cfg.Feed.StreamPollInterval, log.Named("directory"))
	case "memory":
		log.Warn("Используется хранилище в памяти, данные не сохраняются")
		a.Directory = directory.NewMemory()
	default:
		return nil, fmt.Errorf("неизвестный DIRECTORY_DRIVER: %s", cfg.DirectoryDriver)
	}

	minioClient, err := storage.NewMinIOClient(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("не удалось инициализировать MinIO: %w", err)
	}
	a.Storage = minioClient

	repo := repository.NewRepository(a.Directory)
	a.Services = service.NewService(repo, cfg, minioClient, log)

	return a, nil
}

// HealthCheck pings the database when there is one.
func (a *App) HealthCheck() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.HealthCheck()
}

func (a *App) Close() error {
	if a.Services != nil {
		a.Services.Close()
	}
	if a.DB != nil {
		return a.DB.CloseDB()
	}
	return nil
}
