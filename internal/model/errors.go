package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, take, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCursor     = "INVALID_CURSOR"
	ErrCodeInvalidLimit      = "INVALID_LIMIT"
	ErrCodeInvalidSort       = "INVALID_SORT"
	ErrCodeInvalidContent    = "INVALID_CONTENT"
	ErrCodeInvalidReport     = "INVALID_REPORT"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeTakeNotFound      = "TAKE_NOT_FOUND"
	ErrCodeCommentNotFound   = "COMMENT_NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeUnavailable       = "SERVICE_UNAVAILABLE"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewInvalidCursorError は不正なカーソルエラーを生成する。
// 不正なカーソルは先頭ページへのリセットではなく、必ずエラーとして扱う。
func NewInvalidCursorError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  fmt.Sprintf("無効なカーソルです: %s", reason),
		Category: "validation",
		Action:   "直前のレスポンスで返されたnext_cursorをそのまま指定してください。",
	}
}

// NewInvalidLimitError はページサイズが範囲外の場合のエラーを生成する。
func NewInvalidLimitError(limit, min, max int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLimit,
		Message:  fmt.Sprintf("無効な件数です: %d", limit),
		Category: "validation",
		Action:   fmt.Sprintf("limitには%dから%dの範囲で指定してください。", min, max),
	}
}

// NewInvalidSortError は未知のソート指定のエラーを生成する。
func NewInvalidSortError(sort string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSort,
		Message:  fmt.Sprintf("無効なソート順です: %s", sort),
		Category: "validation",
		Action:   "sortには newest、hottest_24h、hottest_7d のいずれかを指定してください。",
	}
}

// NewInvalidContentError は本文が空または長すぎる場合のエラーを生成する。
func NewInvalidContentError(maxLen int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContent,
		Message:  "本文が空、または長すぎます。",
		Category: "validation",
		Action:   fmt.Sprintf("1文字以上%d文字以内で入力してください。", maxLen),
	}
}

// NewInvalidReportError は通報内容が不正な場合のエラーを生成する。
func NewInvalidReportError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReport,
		Message:  fmt.Sprintf("無効な通報です: %s", reason),
		Category: "validation",
		Action:   "通報対象の種別（take または comment）と理由を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidTakeIDError はパスのテイクIDがULID形式でないエラーを生成する。
func NewInvalidTakeIDError(takeID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("テイクIDの形式が不正です: %s", takeID),
		Category: "validation",
		Action:   "ULID形式のテイクIDを指定してください。",
	}
}

// NewTakeNotFoundError はテイク未検出エラーを生成する。
func NewTakeNotFoundError(takeID string) *APIError {
	return &APIError{
		Code:     ErrCodeTakeNotFound,
		Message:  fmt.Sprintf("指定されたテイクが見つかりません: %s", takeID),
		Category: "take",
		Action:   "テイクIDを確認してください。削除された可能性があります。",
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "take",
		Action:   "コメントIDを確認してください。",
	}
}

// NewForbiddenError は他ユーザーのリソースを操作しようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分が投稿したテイクのみ削除できます。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  fmt.Sprintf("リクエストが多すぎます。%d秒後に再度お試しください。", retryAfterSec),
		Category: "system",
		Action:   "指定された時間待ってから再度お試しください。",
	}
}

// NewUnavailableError は外部ストアが一時的に利用できない場合のエラーを生成する。
func NewUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUnavailable,
		Message:  "一時的にサービスを利用できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
