package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hitoshi/hottakes/internal/model"
	"github.com/hitoshi/hottakes/internal/ratelimit"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// WriteRateLimitError はレート制限の判定エラーをレスポンスに変換する。
// 拒否は429、カウンタストア障害は503（Retry-After: 1）、それ以外は500。
func WriteRateLimitError(w http.ResponseWriter, err error) {
	var rejected *ratelimit.RejectedError
	switch {
	case errors.As(err, &rejected):
		sec := rejected.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(sec))
		WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError(sec))
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewUnavailableError())
	default:
		WriteInternalServerError(w)
	}
}
