package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hottakes/internal/middleware"
	"github.com/hitoshi/hottakes/internal/ratelimit"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionVerifier   *middleware.SessionVerifier
	CORSAllowedOrigin string
	HTTPRecorder      middleware.HTTPRecorder
	RateLimiter       middleware.RateLimitChecker
	WriteRule         ratelimit.Rule
	ReportRule        ratelimit.Rule

	// テイク・コメント・通報
	TakeService   TakeServiceInterface
	ReportService ReportServiceInterface
	FeedRanker    FeedRankerInterface

	// リアルタイム
	WSHandler *WSHandler

	// 運用
	HealthHandler  *HealthHandler
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → CORS → SecurityHeaders → (Session → RateLimit)
//
// 読み取りルートはセッション任意、書き込みルートはセッション必須でユーザー単位のレート制限を受ける。
// 通報は匿名でも受け付け、クライアントIP単位で制限する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	takeHandler := NewTakeHandler(deps.TakeService, deps.FeedRanker)
	reportHandler := NewReportHandler(deps.ReportService)

	// --- 運用エンドポイント ---
	if deps.HealthHandler != nil {
		r.Get("/health", deps.HealthHandler.Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	optionalSession := middleware.NewOptionalSessionMiddleware(deps.SessionVerifier)
	writeLimit := middleware.NewRateLimitMiddleware(deps.RateLimiter, deps.WriteRule, middleware.ByUserOrIP)

	r.Route("/takes", func(r chi.Router) {
		// 読み取り（セッション任意）
		r.Group(func(r chi.Router) {
			r.Use(optionalSession)
			r.Get("/", takeHandler.ListTakes)
			r.Get("/top", takeHandler.TopTakes)
			r.Get("/{id}", takeHandler.GetTake)
			r.Get("/{id}/comments", takeHandler.ListComments)
		})

		// 書き込み（セッション必須）
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier))
			r.Use(writeLimit)
			r.Post("/", takeHandler.CreateTake)
			r.Delete("/{id}", takeHandler.DeleteTake)
			r.Post("/{id}/like", takeHandler.LikeTake)
			r.Delete("/{id}/like", takeHandler.UnlikeTake)
			r.Post("/{id}/comments", takeHandler.CreateComment)
		})
	})

	// POST /reports - 通報（匿名可、IP単位で制限）
	r.With(
		optionalSession,
		middleware.NewRateLimitMiddleware(deps.RateLimiter, deps.ReportRule, middleware.ByClientIP),
	).Post("/reports", reportHandler.CreateReport)

	// --- WebSocket ---
	if deps.WSHandler != nil {
		r.Get("/ws/feed", deps.WSHandler.Feed)
		r.Get("/ws/takes/{id}/comments", deps.WSHandler.Comments)
	}

	return r
}
