package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/hottakes/internal/middleware"
	"github.com/hitoshi/hottakes/internal/model"
	"github.com/hitoshi/hottakes/internal/ranking"
	"github.com/hitoshi/hottakes/internal/ratelimit"
)

const (
	testSecret = "handler-test-secret"
	aliceID    = "3b1f0c9e-2d4a-4e6b-8c7d-1a2b3c4d5e6f"
	takeID     = "01J8ZK3Q4V5W6X7Y8Z9A0B1C2D"
)

var testCreatedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// --- モック定義 ---

// mockTakeService はTakeServiceInterfaceのモック実装。
type mockTakeService struct {
	createTakeFn    func(ctx context.Context, userID, content string) (*model.TakeView, error)
	deleteTakeFn    func(ctx context.Context, userID, takeID string) error
	likeFn          func(ctx context.Context, userID, takeID string) (*model.LikeResult, error)
	unlikeFn        func(ctx context.Context, userID, takeID string) (*model.LikeResult, error)
	getTakeFn       func(ctx context.Context, viewerID, takeID string) (*model.TakeView, error)
	listCommentsFn  func(ctx context.Context, takeID string) ([]model.Comment, error)
	createCommentFn func(ctx context.Context, userID, takeID, content string) (*model.Comment, error)
}

func (m *mockTakeService) CreateTake(ctx context.Context, userID, content string) (*model.TakeView, error) {
	if m.createTakeFn != nil {
		return m.createTakeFn(ctx, userID, content)
	}
	return &model.TakeView{Take: model.Take{ID: takeID, Content: content, CreatedAt: testCreatedAt}}, nil
}

func (m *mockTakeService) DeleteTake(ctx context.Context, userID, takeID string) error {
	if m.deleteTakeFn != nil {
		return m.deleteTakeFn(ctx, userID, takeID)
	}
	return nil
}

func (m *mockTakeService) Like(ctx context.Context, userID, takeID string) (*model.LikeResult, error) {
	if m.likeFn != nil {
		return m.likeFn(ctx, userID, takeID)
	}
	return &model.LikeResult{TakeID: takeID, LikeCount: 1, Changed: true}, nil
}

func (m *mockTakeService) Unlike(ctx context.Context, userID, takeID string) (*model.LikeResult, error) {
	if m.unlikeFn != nil {
		return m.unlikeFn(ctx, userID, takeID)
	}
	return &model.LikeResult{TakeID: takeID, LikeCount: 0, Changed: true}, nil
}

func (m *mockTakeService) GetTake(ctx context.Context, viewerID, takeID string) (*model.TakeView, error) {
	if m.getTakeFn != nil {
		return m.getTakeFn(ctx, viewerID, takeID)
	}
	return nil, model.NewTakeNotFoundError(takeID)
}

func (m *mockTakeService) ListComments(ctx context.Context, takeID string) ([]model.Comment, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, takeID)
	}
	return nil, nil
}

func (m *mockTakeService) CreateComment(ctx context.Context, userID, takeID, content string) (*model.Comment, error) {
	if m.createCommentFn != nil {
		return m.createCommentFn(ctx, userID, takeID, content)
	}
	return &model.Comment{ID: "01J8ZK3Q4V5W6X7Y8Z9A0B1C2E", TakeID: takeID, Content: content, CreatedAt: testCreatedAt}, nil
}

// mockRanker はFeedRankerInterfaceのモック実装。
type mockRanker struct {
	listFn     func(ctx context.Context, req ranking.ListRequest) (*ranking.Page, error)
	topOfDayFn func(ctx context.Context, viewerID string) ([]model.TakeView, error)
}

func (m *mockRanker) List(ctx context.Context, req ranking.ListRequest) (*ranking.Page, error) {
	if m.listFn != nil {
		return m.listFn(ctx, req)
	}
	return &ranking.Page{}, nil
}

func (m *mockRanker) TopOfDay(ctx context.Context, viewerID string) ([]model.TakeView, error) {
	if m.topOfDayFn != nil {
		return m.topOfDayFn(ctx, viewerID)
	}
	return nil, nil
}

// mockReportService はReportServiceInterfaceのモック実装。
type mockReportService struct {
	createReportFn func(ctx context.Context, reporterUserID *string, targetType model.ReportTarget, targetID, reason string) (*model.Report, error)
}

func (m *mockReportService) CreateReport(ctx context.Context, reporterUserID *string, targetType model.ReportTarget, targetID, reason string) (*model.Report, error) {
	if m.createReportFn != nil {
		return m.createReportFn(ctx, reporterUserID, targetType, targetID, reason)
	}
	return &model.Report{ID: "report-1"}, nil
}

// mockLimiter はRateLimitCheckerのモック実装。
type mockLimiter struct {
	allowFn func(ctx context.Context, rule ratelimit.Rule, actor string) error
}

func (m *mockLimiter) Allow(ctx context.Context, rule ratelimit.Rule, actor string) error {
	if m.allowFn != nil {
		return m.allowFn(ctx, rule, actor)
	}
	return nil
}

// --- ヘルパー ---

// withUserID はテスト用にコンテキストにユーザーIDを設定するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

// decodeBody はレスポンスボディをJSONとしてデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return result
}

// sessionCookie はテスト用のセッションCookieを生成するヘルパー。
func sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	return &http.Cookie{Name: middleware.SessionCookieName, Value: token}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter はモック依存でルーターを組み立てるヘルパー。
func newTestRouter(svc *mockTakeService, ranker *mockRanker, reports *mockReportService, limiter *mockLimiter) http.Handler {
	return NewRouter(&RouterDeps{
		Logger:            discardLogger(),
		SessionVerifier:   middleware.NewSessionVerifier(testSecret),
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		WriteRule:         ratelimit.Rule{Action: "write", Max: 30, Window: time.Minute},
		ReportRule:        ratelimit.Rule{Action: "report", Max: 5, Window: time.Hour},
		TakeService:       svc,
		ReportService:     reports,
		FeedRanker:        ranker,
		HealthHandler:     NewHealthHandler(time.Second),
	})
}
