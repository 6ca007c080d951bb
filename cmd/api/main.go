package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"liquiflow/auth"
	"liquiflow/config"
	"liquiflow/db"
	"liquiflow/fundrequest"
	"liquiflow/liquidation"
	"liquiflow/logger"
	"liquiflow/reminder"
	"liquiflow/report"
	"liquiflow/school"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer zlog.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.DSN())
	if err != nil {
		zlog.Fatal("bootstrap database pool", zap.Error(err))
	}
	defer pool.Close()

	fundRequestSvc := fundrequest.NewService(pool, nil)
	liquidationSvc := liquidation.NewService(pool, nil).WithRequestMarker(fundRequestSvc)

	server := &Server{
		authService:        auth.NewService(auth.NewRepository(pool), cfg.JWT.Secret),
		schoolService:      school.NewService(school.NewRepository(pool)),
		fundRequestService: fundRequestSvc,
		liquidationService: liquidationSvc,
		reminderGate:       reminder.NewGate(reminder.NewPGStore(pool), liquidationSvc),
		reportService:      report.NewService(report.NewRepository(pool)),
		logger:             zlog,
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      server.routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		zlog.Info("listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.App.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
