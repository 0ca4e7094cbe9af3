package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oraculo/oraculo/app"
	"oraculo/oraculo/config"
	"oraculo/oraculo/routes"
	"oraculo/oraculo/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	logging.InitLogger()
	defer logging.Sync()
	cfg := config.LoadConfig()
	if cfg.JWTSecret == "" {
		logging.ErrorLogger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Janitor.Start(); err != nil {
		logging.ErrorLogger.Error("retention schedule rejected", zap.Error(err))
		os.Exit(1)
	}
	defer a.Janitor.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// model replies can take a while, streams included
	r.Use(middleware.Timeout(3 * time.Minute))

	r.Mount("/oraculo", routes.OraculoRoutes(a.Oraculo, cfg))
	r.Mount("/health", routes.HealthRoutes(a.Health))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	go func() {
		logging.AppLogger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	logging.AppLogger.Info("server shutdown complete")
}
