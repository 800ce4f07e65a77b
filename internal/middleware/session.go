// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/hottakes/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// ErrInvalidSession はセッショントークンが不正または期限切れであることを示す。
var ErrInvalidSession = errors.New("invalid session token")

// sessionClaims はセッショントークンのクレーム。user_idはUUID形式。
type sessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionVerifier はHS256で署名されたセッショントークンを検証する。
// トークンの発行は外部の認証サービスが行う。
type SessionVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewSessionVerifier はSessionVerifierを生成する。
func NewSessionVerifier(secret string) *SessionVerifier {
	return &SessionVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify はトークンを検証し、セッション情報を返す。
func (v *SessionVerifier) Verify(token string) (*model.Session, error) {
	claims := &sessionClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: user_id is not a uuid", ErrInvalidSession)
	}

	session := &model.Session{UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// sessionFromRequest はCookieからセッションを復元する。Cookieがない場合は(nil, nil)。
func (v *SessionVerifier) sessionFromRequest(r *http.Request) (*model.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	return v.Verify(cookie.Value)
}

// NewSessionMiddleware はCookieのセッショントークンを検証し、
// 認証済みユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401を返す。
func NewSessionMiddleware(verifier *SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := verifier.sessionFromRequest(r)
			if err != nil {
				slog.Debug("session rejected", slog.String("error", err.Error()))
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithUserID(r.Context(), session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewOptionalSessionMiddleware は有効なセッションがあればユーザーIDを注入し、
// なければ匿名のまま通過させるミドルウェアを返す。
func NewOptionalSessionMiddleware(verifier *SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := verifier.sessionFromRequest(r)
			if err != nil {
				slog.Debug("session ignored", slog.String("error", err.Error()))
			}
			if session != nil {
				r = r.WithContext(ContextWithUserID(r.Context(), session.UserID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// OptionalUserID はユーザーIDを返す。匿名の場合は空文字。
func OptionalUserID(ctx context.Context) string {
	userID, _ := UserIDFromContext(ctx)
	return userID
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// アクセスログ用にも記録する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if user, ok := ctx.Value(requestUserContextKey).(*requestUser); ok {
		user.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
