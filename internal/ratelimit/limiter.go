// Package ratelimit は共有カウンタストア上の固定ウィンドウ方式レートリミッターを提供する。
//
// キーごとの状態はカウンタ1つとTTLのみで、ウィンドウ境界付近では一時的に
// 公称レートの約2倍まで許可されうる。ウィンドウのリセットはストアの有効期限切れに任せ、
// このパッケージが手動でカウンタを戻すことはない。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ErrStoreUnavailable はカウンタストアに到達できなかったことを表す。
// PolicyErrorの場合のみ呼び出し元に返され、リトライ可能な障害として扱う。
var ErrStoreUnavailable = errors.New("rate limit counter store unavailable")

// CounterStore はレート制限カウンタの共有ストア。
type CounterStore interface {
	// Increment はkeyのカウンタを原子的にインクリメントする。
	// インクリメントで値が1になった場合のみwindowを有効期限として設定する。
	// インクリメント後の値と残りTTLを返す。TTLが取得できない場合は0以下を返す。
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// ErrInvalidWindow はウィンドウが1ms未満であることを表す。
// カウンタの有効期限はミリ秒単位のため、この場合は制限として機能しない。
var ErrInvalidWindow = errors.New("rate limit window must be at least 1ms")

// Policy はカウンタストア障害時の振る舞いを表す。
type Policy string

const (
	// PolicyError はストア障害をErrStoreUnavailableとして返す。
	PolicyError Policy = "error"
	// PolicyOpen はストア障害時に許可する。
	PolicyOpen Policy = "open"
	// PolicyClosed はストア障害時にウィンドウ長の待機を求めて拒否する。
	PolicyClosed Policy = "closed"
)

// RejectedError はレート制限超過による拒否を表す。
type RejectedError struct {
	Key        string
	RetryAfter time.Duration
}

// Error はerrorインターフェースを実装する。
func (e *RejectedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %s", e.Key, e.RetryAfter)
}

// RetryAfterSeconds はRetry-Afterヘッダー用の秒数を返す。最小1秒。
func (e *RejectedError) RetryAfterSeconds() int {
	sec := int(math.Ceil(e.RetryAfter.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// Rule はアクションごとの制限値。
type Rule struct {
	Action string
	Max    int
	Window time.Duration
}

// Recorder はレート制限の判定結果を記録するインターフェース。
type Recorder interface {
	RecordRateLimitDecision(action, result string)
	RecordRateLimitStoreFailure(action string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRateLimitDecision(string, string) {}
func (nopRecorder) RecordRateLimitStoreFailure(string)     {}

// Options はLimiterの生成オプション。
type Options struct {
	Policy Policy
	// Bypass がtrueの場合はストアに触れずに常に許可する（デバッグ用）。
	Bypass   bool
	Logger   *slog.Logger
	Recorder Recorder
}

// Limiter は固定ウィンドウ方式のレートリミッター。
type Limiter struct {
	store    CounterStore
	policy   Policy
	bypass   bool
	logger   *slog.Logger
	recorder Recorder
}

// NewLimiter はLimiterを生成する。
func NewLimiter(store CounterStore, opts Options) *Limiter {
	if opts.Policy == "" {
		opts.Policy = PolicyError
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Limiter{
		store:    store,
		policy:   opts.Policy,
		bypass:   opts.Bypass,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
}

// Key はアクションと実行者からカウンタキーを組み立てる。
func Key(action, actor string) string {
	return action + "_limit:" + actor
}

// Allow はruleに従ってactorのリクエストを判定する。
func (l *Limiter) Allow(ctx context.Context, rule Rule, actor string) error {
	err := l.check(ctx, rule.Action, Key(rule.Action, actor), rule.Max, rule.Window)

	var rejected *RejectedError
	switch {
	case err == nil:
		l.recorder.RecordRateLimitDecision(rule.Action, "allowed")
	case errors.As(err, &rejected):
		l.recorder.RecordRateLimitDecision(rule.Action, "rejected")
	default:
		l.recorder.RecordRateLimitDecision(rule.Action, "error")
	}
	return err
}

// Check はkeyのカウンタをインクリメントし、maxRequestsを超えていれば*RejectedErrorを返す。
// ストア障害時の振る舞いはPolicyに従う。
func (l *Limiter) Check(ctx context.Context, key string, maxRequests int, window time.Duration) error {
	return l.check(ctx, "", key, maxRequests, window)
}

func (l *Limiter) check(ctx context.Context, action, key string, maxRequests int, window time.Duration) error {
	if l.bypass {
		return nil
	}
	if window < time.Millisecond {
		return fmt.Errorf("%w: %s", ErrInvalidWindow, window)
	}

	count, ttl, err := l.store.Increment(ctx, key, window)
	if err != nil {
		l.recorder.RecordRateLimitStoreFailure(action)
		return l.onStoreFailure(key, window, err)
	}

	if count > int64(maxRequests) {
		retryAfter := ttl
		if retryAfter <= 0 {
			retryAfter = window
		}
		return &RejectedError{Key: key, RetryAfter: retryAfter}
	}

	return nil
}

// onStoreFailure は設定されたPolicyに従ってストア障害を処理する。
func (l *Limiter) onStoreFailure(key string, window time.Duration, err error) error {
	switch l.policy {
	case PolicyOpen:
		l.logger.Warn("レート制限ストアに到達できないため許可します",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil
	case PolicyClosed:
		l.logger.Warn("レート制限ストアに到達できないため拒否します",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return &RejectedError{Key: key, RetryAfter: window}
	default:
		l.logger.Error("レート制限ストアに到達できません",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
