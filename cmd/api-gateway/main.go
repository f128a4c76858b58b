package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/api-gateway/router"
	"github.com/radieske/objective-bet-platform/internal/shared/config"
	"github.com/radieske/objective-bet-platform/internal/shared/logger"
	"github.com/radieske/objective-bet-platform/internal/shared/metrics"
)

func main() {
	cfg, err := config.Load("api-gateway")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// targets
	h, err := router.NewRouter(log, router.Targets{
		LedgerURL:  cfg.LedgerURL,
		BettingURL: cfg.BettingURL,
	}, cfg.AllowedOrigins, cfg.AuthJWTSecret)
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info("api-gateway listening", zap.String("addr", srv.Addr),
			zap.String("ledger", cfg.LedgerURL), zap.String("betting", cfg.BettingURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("gateway failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
