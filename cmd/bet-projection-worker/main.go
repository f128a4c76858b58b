package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/bet-projection/consumer"
	"github.com/radieske/objective-bet-platform/internal/bet-projection/reconcile"
	"github.com/radieske/objective-bet-platform/internal/bet-projection/repository"
	sharedcache "github.com/radieske/objective-bet-platform/internal/shared/cache"
	"github.com/radieske/objective-bet-platform/internal/shared/config"
	"github.com/radieske/objective-bet-platform/internal/shared/db"
	"github.com/radieske/objective-bet-platform/internal/shared/kafka"
	"github.com/radieske/objective-bet-platform/internal/shared/logger"
	"github.com/radieske/objective-bet-platform/internal/shared/metrics"
	"github.com/radieske/objective-bet-platform/internal/shared/pubsub"
)

func main() {
	cfg, err := config.Load("bet-projection-worker")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	repo := repository.NewPostgresRepo(pg)

	// Configura o consumer Kafka (consumer group bet-projection)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBetPlaced, "bet-projection")
	defer reader.Close()

	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlacedDLQ)
	defer dlqWriter.Close()

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "projection_messages_consumed_total", Help: "mensagens consumidas"})
	projected := prometheus.NewCounter(prometheus.CounterOpts{Name: "projection_bets_applied_total", Help: "apostas somadas ao pote"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "projection_duplicates_total", Help: "eventos repetidos ignorados"})
	dlq := prometheus.NewCounter(prometheus.CounterOpts{Name: "projection_dlq_total", Help: "mensagens enviadas para a DLQ"})
	corrected := prometheus.NewCounter(prometheus.CounterOpts{Name: "projection_reconcile_corrected_total", Help: "objetivos corrigidos pela reconciliação"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "projection_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, projected, duplicates, dlq, corrected, errorsBy)

	// Instancia o processor, conectando callbacks de métricas e broadcast
	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Repo:        repo,
		Broadcast:   pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
		DLQ:         dlqWriter,
		Retries:     3,
		Backoff:     300 * time.Millisecond,
		OnConsumed:  func() { consumed.Inc() },
		OnProjected: func() { projected.Inc() },
		OnDuplicate: func() { duplicates.Inc() },
		OnDLQ:       func() { dlq.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "postgres", Check: pg.PingContext},
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	)

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Reconciliação periódica de total_bets
	sched := reconcile.NewScheduler(log, repo)
	sched.OnCorrected = func(n int64) { corrected.Add(float64(n)) }
	if err := sched.Start(ctx, cfg.ReconcileSchedule); err != nil {
		log.Fatal("reconcile schedule", zap.Error(err))
	}
	defer sched.Stop()

	log.Info("bet-projection-worker started", zap.String("consume", cfg.TopicBetPlaced))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("bet-projection-worker stopped")
}
