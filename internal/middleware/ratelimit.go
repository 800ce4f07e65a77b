package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/hitoshi/hottakes/internal/ratelimit"
)

// RateLimitChecker はレート制限の判定インターフェース。ratelimit.Limiterが満たす。
type RateLimitChecker interface {
	Allow(ctx context.Context, rule ratelimit.Rule, actor string) error
}

// ActorFunc はリクエストからレート制限の対象（ユーザーIDまたはIP）を決める。
type ActorFunc func(r *http.Request) string

// ByUserOrIP は認証済みならユーザーID、匿名ならクライアントIPを対象とする。
// SessionMiddlewareの後に配置する。
func ByUserOrIP(r *http.Request) string {
	if userID := OptionalUserID(r.Context()); userID != "" {
		return userID
	}
	return ClientIP(r)
}

// ByClientIP はクライアントIPを対象とする。
func ByClientIP(r *http.Request) string {
	return ClientIP(r)
}

// ClientIP はX-Forwarded-Forの先頭、X-Real-IP、RemoteAddrの順にクライアントIPを決定する。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewRateLimitMiddleware はruleに従ってリクエストを制限するミドルウェアを返す。
// 超過時は429とRetry-After、カウンタストア障害時は503を返す。
func NewRateLimitMiddleware(limiter RateLimitChecker, rule ratelimit.Rule, actor ActorFunc) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who := actor(r)
			if err := limiter.Allow(r.Context(), rule, who); err != nil {
				slog.Warn("rate limit check failed",
					slog.String("action", rule.Action),
					slog.String("actor", who),
					slog.String("error", err.Error()),
				)
				WriteRateLimitError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
