// Package take はテイク・いいね・コメント・通報の書き込み系ドメインロジックを提供する。
//
// 永続化が成功した後にイベントを配信する。配信の失敗はログに残すのみで、
// コミット済みの書き込みを失敗扱いにはしない。
package take

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/hottakes/internal/model"
	"github.com/hitoshi/hottakes/internal/repository"
	"github.com/hitoshi/hottakes/internal/security"
)

// 本文の最大文字数（Unicodeコードポイント単位）
const (
	MaxTakeLength    = 500
	MaxCommentLength = 300
	MaxReasonLength  = 500
)

const defaultPublishTimeout = 3 * time.Second

// Publisher はトピックへのイベント配信インターフェース。broker.Publisherが満たす。
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, eventType model.EventType, data any) error
}

// Service はテイクの書き込み系操作と単体取得を提供する。
type Service struct {
	takes     repository.TakeRepository
	comments  repository.CommentRepository
	reports   repository.ReportRepository
	users     repository.UserRepository
	publisher Publisher
	sanitizer security.TextSanitizer
	ids       IDGenerator
	logger    *slog.Logger

	feedTopic      string
	now            func() time.Time
	publishTimeout time.Duration
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithFeedTopic はフィードイベントの配信先トピックを変更する。
func WithFeedTopic(topic string) Option {
	return func(s *Service) { s.feedTopic = topic }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator はID生成器を差し替える。
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Service) { s.ids = ids }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService はServiceを生成する。
func NewService(
	takes repository.TakeRepository,
	comments repository.CommentRepository,
	reports repository.ReportRepository,
	users repository.UserRepository,
	publisher Publisher,
	sanitizer security.TextSanitizer,
	opts ...Option,
) *Service {
	s := &Service{
		takes:          takes,
		comments:       comments,
		reports:        reports,
		users:          users,
		publisher:      publisher,
		sanitizer:      sanitizer,
		ids:            NewULIDGenerator(),
		logger:         slog.Default(),
		feedTopic:      model.FeedTopic,
		now:            time.Now,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp はPostgreSQLの精度（マイクロ秒）に丸めた現在時刻を返す。
// 配信イベントと後続の一覧で同じ時刻になる。
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// FeedTopic はフィードイベントの配信先トピック名を返す。
func (s *Service) FeedTopic() string {
	return s.feedTopic
}

// CreateTake はテイクを投稿し、new_takeイベントを配信する。
func (s *Service) CreateTake(ctx context.Context, userID, content string) (*model.TakeView, error) {
	text, err := s.cleanText(content, MaxTakeLength)
	if err != nil {
		return nil, err
	}

	user, err := s.author(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	t := &model.Take{
		ID:        s.ids.NewID(now),
		UserID:    userID,
		Username:  user.Username,
		Content:   text,
		CreatedAt: now,
	}
	if err := s.takes.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("テイクの投稿に失敗しました: %w", err)
	}

	view := &model.TakeView{Take: *t}
	s.publish(ctx, s.feedTopic, model.EventNewTake, model.NewTakePayload(*view))
	return view, nil
}

// DeleteTake は投稿者本人のテイクを非表示にし、delete_takeイベントを配信する。
func (s *Service) DeleteTake(ctx context.Context, userID, takeID string) error {
	t, err := s.takes.FindVisibleByID(ctx, takeID)
	if err != nil {
		return fmt.Errorf("テイクの取得に失敗しました: %w", err)
	}
	if t == nil {
		return model.NewTakeNotFoundError(takeID)
	}
	if t.UserID != userID {
		return model.NewForbiddenError()
	}

	if err := s.takes.Hide(ctx, takeID); err != nil {
		return fmt.Errorf("テイクの削除に失敗しました: %w", err)
	}

	s.publish(ctx, s.feedTopic, model.EventDeleteTake, model.DeleteTakePayload{ID: takeID})
	return nil
}

// Like はいいねを冪等に追加する。件数が変化した場合のみlike_updateを配信する。
func (s *Service) Like(ctx context.Context, userID, takeID string) (*model.LikeResult, error) {
	return s.changeLike(ctx, takeID, func() (*model.LikeResult, error) {
		return s.takes.Like(ctx, takeID, userID)
	})
}

// Unlike はいいねを冪等に取り消す。件数が変化した場合のみlike_updateを配信する。
func (s *Service) Unlike(ctx context.Context, userID, takeID string) (*model.LikeResult, error) {
	return s.changeLike(ctx, takeID, func() (*model.LikeResult, error) {
		return s.takes.Unlike(ctx, takeID, userID)
	})
}

func (s *Service) changeLike(ctx context.Context, takeID string, op func() (*model.LikeResult, error)) (*model.LikeResult, error) {
	res, err := op()
	if err != nil {
		return nil, fmt.Errorf("いいねの更新に失敗しました: %w", err)
	}
	if res == nil {
		return nil, model.NewTakeNotFoundError(takeID)
	}
	if res.Changed {
		s.publish(ctx, s.feedTopic, model.EventLikeUpdate, model.LikeUpdatePayload{ID: takeID, LikeCount: res.LikeCount})
	}
	return res, nil
}

// GetTake は非表示でないテイクを閲覧ユーザーのいいね状態とコメント数付きで返す。
// viewerIDが空の場合は匿名として扱う。
func (s *Service) GetTake(ctx context.Context, viewerID, takeID string) (*model.TakeView, error) {
	t, err := s.takes.FindVisibleByID(ctx, takeID)
	if err != nil {
		return nil, fmt.Errorf("テイクの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTakeNotFoundError(takeID)
	}

	ids := []string{t.ID}
	counts, err := s.takes.FetchCommentCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("コメント数の取得に失敗しました: %w", err)
	}
	view := &model.TakeView{Take: *t}
	view.CommentCount = counts[t.ID]

	if viewerID != "" {
		liked, err := s.takes.FetchUserLikes(ctx, viewerID, ids)
		if err != nil {
			return nil, fmt.Errorf("いいね状態の取得に失敗しました: %w", err)
		}
		view.UserLiked = liked[t.ID]
	}
	return view, nil
}

// ListComments はテイクの非表示でないコメントを投稿順に返す。
func (s *Service) ListComments(ctx context.Context, takeID string) ([]model.Comment, error) {
	if err := s.requireVisibleTake(ctx, takeID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTake(ctx, takeID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// CreateComment はコメントを投稿し、comments:<takeID> にnew_commentを配信する。
func (s *Service) CreateComment(ctx context.Context, userID, takeID, content string) (*model.Comment, error) {
	text, err := s.cleanText(content, MaxCommentLength)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisibleTake(ctx, takeID); err != nil {
		return nil, err
	}
	user, err := s.author(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	c := &model.Comment{
		ID:        s.ids.NewID(now),
		TakeID:    takeID,
		UserID:    userID,
		Username:  user.Username,
		Content:   text,
		CreatedAt: now,
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗しました: %w", err)
	}

	s.publish(ctx, model.CommentsTopic(takeID), model.EventNewComment, model.NewCommentPayload(*c))
	return c, nil
}

// CreateReport は通報を記録する。対象は存在し非表示でない必要がある。
// reporterUserIDがnilの場合は匿名通報。
func (s *Service) CreateReport(ctx context.Context, reporterUserID *string, targetType model.ReportTarget, targetID, reason string) (*model.Report, error) {
	if targetType != model.ReportTargetTake && targetType != model.ReportTargetComment {
		return nil, model.NewInvalidReportError("target_type は take または comment を指定してください")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" || utf8.RuneCountInString(reason) > MaxReasonLength {
		return nil, model.NewInvalidReportError(fmt.Sprintf("理由は1文字以上%d文字以内で入力してください", MaxReasonLength))
	}

	switch targetType {
	case model.ReportTargetTake:
		if err := s.requireVisibleTake(ctx, targetID); err != nil {
			return nil, err
		}
	case model.ReportTargetComment:
		c, err := s.comments.FindVisibleByID(ctx, targetID)
		if err != nil {
			return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
		}
		if c == nil {
			return nil, model.NewCommentNotFoundError(targetID)
		}
	}

	now := s.timestamp()
	r := &model.Report{
		ID:             s.ids.NewID(now),
		TargetType:     targetType,
		TargetID:       targetID,
		Reason:         reason,
		ReporterUserID: reporterUserID,
		CreatedAt:      now,
	}
	if err := s.reports.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("通報の記録に失敗しました: %w", err)
	}

	s.logger.Info("通報を受け付けました",
		slog.String("report_id", r.ID),
		slog.String("target_type", string(targetType)),
		slog.String("target_id", targetID),
	)
	return r, nil
}

func (s *Service) requireVisibleTake(ctx context.Context, takeID string) error {
	t, err := s.takes.FindVisibleByID(ctx, takeID)
	if err != nil {
		return fmt.Errorf("テイクの取得に失敗しました: %w", err)
	}
	if t == nil {
		return model.NewTakeNotFoundError(takeID)
	}
	return nil
}

func (s *Service) author(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}
	return user, nil
}

// cleanText はHTMLを除去し、1文字以上maxLen文字以内であることを検証する。
func (s *Service) cleanText(raw string, maxLen int) (string, error) {
	text := s.sanitizer.Sanitize(raw)
	if text == "" || utf8.RuneCountInString(text) > maxLen {
		return "", model.NewInvalidContentError(maxLen)
	}
	return text, nil
}

// publish はリクエストのキャンセルに影響されないコンテキストでイベントを配信する。
func (s *Service) publish(ctx context.Context, topic string, eventType model.EventType, data any) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.PublishEvent(pubCtx, topic, eventType, data); err != nil {
		s.logger.Warn("イベント配信に失敗しましたが書き込みは完了しています",
			slog.String("topic", topic),
			slog.String("type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}
