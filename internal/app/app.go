package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"discord-insight-go/internal/cache"
	"discord-insight-go/internal/config"
	"discord-insight-go/internal/database"
	"discord-insight-go/internal/handlers"
	"discord-insight-go/internal/importer"
	"discord-insight-go/internal/membership"
	"discord-insight-go/internal/merger"
	"discord-insight-go/internal/metrics"
	"discord-insight-go/internal/query"
	"discord-insight-go/internal/report"
	"discord-insight-go/internal/resolver"
	"discord-insight-go/internal/scheduler"
	"discord-insight-go/internal/server"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Discord Insight Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()

	res := resolver.New(db)
	mrg := merger.New(db)
	trk := membership.New(db)
	imp := importer.New(db, res, mrg, trk, m)

	q := query.New(db)
	ch := cache.New(db, m)
	rep := report.New(q, ch, cfg.Report, cfg.Cache.TTL())

	sched := scheduler.New(cfg, imp, ch, rep, m)

	h := handlers.NewHandlers(db, q, ch, imp, sched, cfg, m)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
