package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	bhttp "github.com/radieske/objective-bet-platform/internal/betting-service/http"
	"github.com/radieske/objective-bet-platform/internal/betting-service/ledger"
	"github.com/radieske/objective-bet-platform/internal/betting-service/odds"
	kpub "github.com/radieske/objective-bet-platform/internal/betting-service/producer"
	"github.com/radieske/objective-bet-platform/internal/betting-service/repo"
	"github.com/radieske/objective-bet-platform/internal/betting-service/service"
	"github.com/radieske/objective-bet-platform/internal/betting-service/ws"
	sharedcache "github.com/radieske/objective-bet-platform/internal/shared/cache"
	"github.com/radieske/objective-bet-platform/internal/shared/config"
	"github.com/radieske/objective-bet-platform/internal/shared/db"
	"github.com/radieske/objective-bet-platform/internal/shared/kafka"
	"github.com/radieske/objective-bet-platform/internal/shared/logger"
	"github.com/radieske/objective-bet-platform/internal/shared/metrics"
	"github.com/radieske/objective-bet-platform/internal/shared/pubsub"
	"github.com/radieske/objective-bet-platform/internal/shared/settings"
)

func main() {
	cfg, err := config.Load("betting-service")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: cache de odds, settings e Pub/Sub do websocket
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topic bet_placed, chave = matchID)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer writer.Close()

	bets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betting_bets_total",
		Help: "apostas por resultado",
	}, []string{"result"})
	wsSubs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "betting_ws_connections",
		Help: "conexões websocket abertas",
	})
	prometheus.MustRegister(bets, wsSubs)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// WebSocket: Hub local + assinatura do canal Redis compartilhado entre instâncias
	hub := ws.NewHub(log, allowOrigins(cfg.AllowedOrigins))
	hub.OnConnect = func(delta int) { wsSubs.Add(float64(delta)) }
	ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)

	store := repo.NewPostgres(pg)
	b := &service.Betting{
		Log:       log,
		Store:     store,
		Ledger:    ledger.New(cfg.LedgerURL, cfg.InternalToken, cfg.LedgerClientTimeout),
		Pub:       kpub.NewKafkaPublisher(writer),
		Broadcast: pubsub.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel),
		Odds:      odds.NewCache(rdb, cfg.OddsCacheTTL),
		Settings:  settings.NewStore(pg, rdb, 5*time.Minute),
		OnBet:     func(result string) { bets.WithLabelValues(result).Inc() },

		DebitRetries: cfg.DebitRetries,
		DebitBackoff: cfg.DebitBackoff,
	}

	api := bhttp.NewServer(log, b, store, hub.HandleWS)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "postgres", Check: pg.PingContext},
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	go func() {
		log.Info("betting-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("betting-service shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// allowOrigins aceita qualquer origem com "*" (ambiente local)
func allowOrigins(origins []string) func(r *http.Request) bool {
	if slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
