package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	lhttp "github.com/radieske/objective-bet-platform/internal/ledger-service/http"
	kpub "github.com/radieske/objective-bet-platform/internal/ledger-service/producer"
	"github.com/radieske/objective-bet-platform/internal/ledger-service/repo"
	"github.com/radieske/objective-bet-platform/internal/ledger-service/service"
	sharedcache "github.com/radieske/objective-bet-platform/internal/shared/cache"
	"github.com/radieske/objective-bet-platform/internal/shared/config"
	"github.com/radieske/objective-bet-platform/internal/shared/db"
	"github.com/radieske/objective-bet-platform/internal/shared/kafka"
	"github.com/radieske/objective-bet-platform/internal/shared/logger"
	"github.com/radieske/objective-bet-platform/internal/shared/metrics"
	"github.com/radieske/objective-bet-platform/internal/shared/settings"
)

func main() {
	cfg, err := config.Load("ledger-service")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres: saldos, depósitos, saques e settings
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: cache das settings
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka producer: ledger_events (chave = userID)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicLedgerEvents)
	defer writer.Close()

	// Métricas Prometheus por operação e resultado
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "operações do ledger por resultado",
	}, []string{"op", "result"})
	prometheus.MustRegister(ops)

	store := settings.NewStore(pg, rdb, 5*time.Minute)
	ledgerRepo := repo.NewPostgres(pg)
	ledger := service.New(log, ledgerRepo, kpub.NewKafkaPublisher(writer), store)
	ledger.OnOp = func(op, result string) { ops.WithLabelValues(op, result).Inc() }

	// papel vem de users.role; debit/credit/void exigem INTERNAL_TOKEN
	api := lhttp.NewServer(log, ledger, store, ledgerRepo, cfg.InternalToken)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "postgres", Check: pg.PingContext},
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info("ledger-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("ledger-service shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
