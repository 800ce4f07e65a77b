package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/hottakes/internal/broker"
	"github.com/hitoshi/hottakes/internal/config"
	"github.com/hitoshi/hottakes/internal/database"
	"github.com/hitoshi/hottakes/internal/handler"
	"github.com/hitoshi/hottakes/internal/metrics"
	"github.com/hitoshi/hottakes/internal/middleware"
	"github.com/hitoshi/hottakes/internal/ranking"
	"github.com/hitoshi/hottakes/internal/ratelimit"
	"github.com/hitoshi/hottakes/internal/realtime"
	"github.com/hitoshi/hottakes/internal/repository"
	"github.com/hitoshi/hottakes/internal/security"
	"github.com/hitoshi/hottakes/internal/take"
)

const (
	shutdownTimeout = 30 * time.Second
	startupPingWait = 5 * time.Second
)

// server はワイヤリング済みのHTTPハンドラーとリアルタイム系の後始末をまとめる。
type server struct {
	handler  http.Handler
	cancelWS context.CancelFunc
	feed     *realtime.Registry
	comments *realtime.Registry
}

// close はWebSocket接続を閉じてからレジストリを破棄する（リスナーも停止する）。
func (s *server) close() {
	s.cancelWS()
	s.feed.Close()
	s.comments.Close()
}

// newServer は全依存関係をワイヤリングする。接続確認は行わない。
func newServer(cfg *config.Config, db *sql.DB, rdb *redis.Client, log *slog.Logger, reg *prometheus.Registry) *server {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. リポジトリ
	takeRepo := repository.NewPostgresTakeRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	reportRepo := repository.NewPostgresReportRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)

	// 3. Redis（カウンタストア、pub/sub）
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisCounterStore(rdb), ratelimit.Options{
		Policy:   ratelimit.Policy(cfg.RateLimitFailurePolicy),
		Bypass:   cfg.Debug,
		Logger:   log,
		Recorder: collector,
	})
	publisher := broker.NewPublisher(rdb, log, collector)
	bridge := broker.NewBridge(rdb, log, collector)
	source := realtime.SourceFunc(func(ctx context.Context, topic string) (realtime.Stream, error) {
		sub, err := bridge.Subscribe(ctx, topic)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})

	// 4. リアルタイム配信
	feedRegistry := realtime.NewRegistry(source, realtime.Options{Logger: log, Recorder: collector.Realtime("feed")})
	commentsRegistry := realtime.NewRegistry(source, realtime.Options{Logger: log, Recorder: collector.Realtime("comments")})

	// 5. ドメインサービス
	engine := ranking.NewEngine(takeRepo, ranking.WithCandidateCap(cfg.HotCandidateCap))
	takeService := take.NewService(
		takeRepo, commentRepo, reportRepo, userRepo,
		publisher, security.NewTextSanitizer(),
		take.WithFeedTopic(cfg.FeedTopic),
		take.WithLogger(log),
	)

	// 6. ルーター
	wsCtx, cancelWS := context.WithCancel(context.Background())
	wsHandler := handler.NewWSHandler(wsCtx, realtime.NewHub(feedRegistry, cfg.FeedTopic), commentsRegistry, handler.WSConfig{
		AllowedOrigin: cfg.CORSAllowedOrigin,
		WriteTimeout:  cfg.WSWriteTimeout,
		PingInterval:  cfg.WSPingInterval,
		ReadTimeout:   cfg.WSReadTimeout,
		InboundRate:   cfg.WSInboundRate,
		InboundBurst:  cfg.WSInboundBurst,
	}, log)

	health := handler.NewHealthHandler(2*time.Second,
		handler.HealthCheck{Name: "postgres", Check: db.PingContext},
		handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		SessionVerifier:   middleware.NewSessionVerifier(cfg.JWTSecret),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HTTPRecorder:      collector,
		RateLimiter:       limiter,
		WriteRule:         ratelimit.Rule{Action: "write", Max: cfg.RateLimitWrites, Window: cfg.RateLimitWritesWindow},
		ReportRule:        ratelimit.Rule{Action: "report", Max: cfg.RateLimitReports, Window: cfg.RateLimitReportsWindow},
		TakeService:       takeService,
		ReportService:     takeService,
		FeedRanker:        engine,
		WSHandler:         wsHandler,
		HealthHandler:     health,
		MetricsHandler:    metrics.Handler(reg),
	})

	return &server{
		handler:  router,
		cancelWS: cancelWS,
		feed:     feedRegistry,
		comments: commentsRegistry,
	}
}

// newMetricsRegistry はランタイムとプロセスのメトリクスを含むレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// PostgreSQLとRedisに接続し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// ctxがキャンセルされるとHTTPサーバー、レジストリ、Redis、PostgreSQLの順に停止する。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolOptions)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db, startupPingWait); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	// 2. Redis接続
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, startupPingWait)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("redis connection established")

	// 3. ワイヤリング
	srv := newServer(cfg, db, rdb, log, newMetricsRegistry())

	// 4. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down API server...")
	case serveErr = <-errCh:
		log.Error("server listen error", slog.String("error", serveErr.Error()))
	}

	// 5. グレースフルシャットダウン（HTTP → レジストリ → Redis/PostgreSQLはdeferで閉じる）
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	srv.close()

	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	log.Info("API server stopped gracefully")
	return nil
}
