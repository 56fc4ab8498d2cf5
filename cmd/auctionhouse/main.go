// Package main запускает HTTP-сервер аукционного сервиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/auctionhouse/internal/auction"
	"github.com/mmeshcher/auctionhouse/internal/config"
	"github.com/mmeshcher/auctionhouse/internal/handler"
	"github.com/mmeshcher/auctionhouse/internal/logger"
	"github.com/mmeshcher/auctionhouse/internal/middleware"
	"github.com/mmeshcher/auctionhouse/internal/notify"
	"github.com/mmeshcher/auctionhouse/internal/repository"
	"github.com/mmeshcher/auctionhouse/internal/service"
)

const eventQueueSize = 1024

type store interface {
	service.Repository
	auction.Store
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	var repo store
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI, cfg.LockTimeout)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	} else {
		sugar.Warn("DATABASE_URI is empty, state is kept in memory")
		repo = repository.NewMemoryRepository(cfg.LockTimeout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var sink auction.EventSink = notify.NewLogSink(log)
	if cfg.NotificationServiceAddress != "" {
		dispatcher := notify.NewDispatcher(notify.NewClient(cfg.NotificationServiceAddress), log, eventQueueSize)
		sink = dispatcher

		// Доставка событий во внешний сервис уведомлений
		g.Go(func() error {
			return dispatcher.Run(ctx)
		})
	}

	engine := auction.NewEngine(repo, sink, auction.Options{
		BidIncrement:     cfg.Increment(),
		EndingSoonWindow: cfg.EndingSoonWindow,
		Logger:           log,
	})

	svc := service.NewService(repo, engine, log)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, log, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Закрытие истёкших аукционов
	g.Go(func() error {
		return engine.RunSweeper(ctx, cfg.SweepInterval, func() time.Time { return time.Now().UTC() })
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting auction server", "addr", cfg.RunAddress, "bid_increment", cfg.Increment().String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
		_ = log.Sync()
		os.Exit(1)
	}
}
