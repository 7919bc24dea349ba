package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vridge/cmd/app"
	"vridge/internal/config"
	handlers "vridge/internal/handler"
	"vridge/internal/logger"
	"vridge/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// setting up config
	cfg := config.LoadConfig()

	logg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Не удалось создать логгер: %v", err)
	}
	defer logg.Sync()

	if cfg.JWTSecretKey == "" {
		logg.Fatal("JWT_SECRET_KEY не установлен в .env файле")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logg)
	if err != nil {
		logg.Fatal("Не удалось запустить приложение", zap.Error(err))
	}
	defer application.Close()

	handler := handlers.NewHandlers(application.Services, application, application.Storage, cfg, logg.Named("http"))

	handlerChain := middleware.Chain(
		handler.Router(),
		middleware.AuthMiddleware(cfg),
		middleware.CORSMiddleware,
		middleware.LoggingMiddleware(logg.Named("http")),
		middleware.RecoverMiddleware(logg),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           handlerChain,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logg.Info("Сервер запущен",
			zap.String("addr", server.Addr),
			zap.String("directory", cfg.DirectoryDriver))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		application.Services.Feeds.Run(gctx, cfg.Feed.SweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logg.Info("Останавливаем сервер")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logg.Error("Сервер остановлен с ошибкой", zap.Error(err))
	}
}
