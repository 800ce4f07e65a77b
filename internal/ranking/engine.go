package ranking

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/hitoshi/hottakes/internal/model"
)

const (
	// MinLimit と MaxLimit は1ページあたりの件数の範囲。
	MinLimit = 1
	MaxLimit = 100
	// DefaultLimit はlimit未指定時の件数。
	DefaultLimit = 20
	// DefaultCandidateCap は減衰モードでスコア計算する候補数の上限。
	// 期間内のテイクがこれを超える場合は新しい順に上限件数だけを対象とする近似になる。
	DefaultCandidateCap = 500
	// TopOfDayCount は「今日のトップ」の件数。
	TopOfDayCount = 3
)

// CandidateQuery は候補テイクの取得条件。非表示のテイクは常に除外される。
type CandidateQuery struct {
	// Before が指定された場合、(created_at, id) がそれより前のテイクのみを返す。
	Before *Cursor
	// Since がゼロ値でない場合、created_at >= Since のテイクのみを返す。
	Since time.Time
	// Limit は最大件数。結果は created_at DESC, id DESC で並ぶ。
	Limit int
}

// Store はランキングに必要な読み取り操作。
type Store interface {
	FetchCandidates(ctx context.Context, q CandidateQuery) ([]model.Take, error)
	FetchUserLikes(ctx context.Context, userID string, takeIDs []string) (map[string]bool, error)
	FetchCommentCounts(ctx context.Context, takeIDs []string) (map[string]int, error)
}

// Engine はテイク一覧の並び替えとページネーションを行う。
type Engine struct {
	store        Store
	now          func() time.Time
	candidateCap int
}

// Option はEngineの設定を変更する。
type Option func(*Engine)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCandidateCap は減衰モードの候補数上限を設定する。0以下は無視する。
func WithCandidateCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.candidateCap = n
		}
	}
}

// NewEngine はEngineを生成する。
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		now:          time.Now,
		candidateCap: DefaultCandidateCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListRequest はList の入力。
type ListRequest struct {
	Sort   Sort
	Limit  int
	Cursor string
	// ViewerID が空の場合、UserLikedは常にfalse。
	ViewerID string
}

// Page は一覧の1ページ。
type Page struct {
	Takes      []model.TakeView
	NextCursor string
	HasMore    bool
}

// List は指定の並び順でテイク一覧を返す。
// カーソルは新着順でのみ有効で、減衰モードでは無視する。
func (e *Engine) List(ctx context.Context, req ListRequest) (*Page, error) {
	if req.Limit < MinLimit || req.Limit > MaxLimit {
		return nil, model.NewInvalidLimitError(req.Limit, MinLimit, MaxLimit)
	}

	switch req.Sort {
	case SortNewest:
		return e.listNewest(ctx, req)
	case SortHottest24h, SortHottest7d:
		return e.listHottest(ctx, req)
	default:
		return nil, model.NewInvalidSortError(string(req.Sort))
	}
}

func (e *Engine) listNewest(ctx context.Context, req ListRequest) (*Page, error) {
	q := CandidateQuery{Limit: req.Limit + 1}
	if req.Cursor != "" {
		c, err := DecodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		q.Before = &c
	}

	// limit+1件を取得してHasMoreを判定する
	takes, err := e.store.FetchCandidates(ctx, q)
	if err != nil {
		return nil, err
	}

	hasMore := len(takes) > req.Limit
	if hasMore {
		takes = takes[:req.Limit]
	}

	views, err := e.enrich(ctx, req.ViewerID, takes)
	if err != nil {
		return nil, err
	}

	page := &Page{Takes: views, HasMore: hasMore}
	if hasMore {
		last := takes[len(takes)-1]
		page.NextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (e *Engine) listHottest(ctx context.Context, req ListRequest) (*Page, error) {
	now := e.now()
	candidates, err := e.store.FetchCandidates(ctx, CandidateQuery{
		Since: now.Add(-req.Sort.window()),
		Limit: e.candidateCap,
	})
	if err != nil {
		return nil, err
	}

	ranked := rankByScore(candidates, now)

	hasMore := len(ranked) > req.Limit
	if hasMore {
		ranked = ranked[:req.Limit]
	}

	views, err := e.enrich(ctx, req.ViewerID, ranked)
	if err != nil {
		return nil, err
	}
	return &Page{Takes: views, HasMore: hasMore}, nil
}

// TopOfDay は直近24時間のテイクを いいね数+コメント数 の降順で並べた上位3件を返す。
func (e *Engine) TopOfDay(ctx context.Context, viewerID string) ([]model.TakeView, error) {
	now := e.now()
	candidates, err := e.store.FetchCandidates(ctx, CandidateQuery{
		Since: now.Add(-24 * time.Hour),
		Limit: e.candidateCap,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []model.TakeView{}, nil
	}

	// 並び替えのキーにコメント数を使うため、候補全体の件数を先に取得する
	counts, err := e.store.FetchCommentCounts(ctx, takeIDs(candidates))
	if err != nil {
		return nil, err
	}

	type entry struct {
		take       model.Take
		engagement int
		score      float64
	}
	entries := make([]entry, len(candidates))
	for i, t := range candidates {
		t.CommentCount = counts[t.ID]
		entries[i] = entry{
			take:       t,
			engagement: t.LikeCount + t.CommentCount,
			score:      Score(t.LikeCount, t.CreatedAt, now),
		}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(b.engagement, a.engagement); c != 0 {
			return c
		}
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.take.ID, b.take.ID)
	})

	if len(entries) > TopOfDayCount {
		entries = entries[:TopOfDayCount]
	}

	top := make([]model.Take, len(entries))
	for i, en := range entries {
		top[i] = en.take
	}

	likes, err := e.userLikes(ctx, viewerID, takeIDs(top))
	if err != nil {
		return nil, err
	}

	views := make([]model.TakeView, len(top))
	for i, t := range top {
		views[i] = model.TakeView{Take: t, UserLiked: likes[t.ID]}
	}
	return views, nil
}

// rankByScore はスコア降順、同点はcreated_at降順、さらにid昇順で並べる。
func rankByScore(takes []model.Take, now time.Time) []model.Take {
	type scored struct {
		take  model.Take
		score float64
	}
	entries := make([]scored, len(takes))
	for i, t := range takes {
		entries[i] = scored{take: t, score: Score(t.LikeCount, t.CreatedAt, now)}
	}
	slices.SortFunc(entries, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := b.take.CreatedAt.Compare(a.take.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.take.ID, b.take.ID)
	})

	ranked := make([]model.Take, len(entries))
	for i, en := range entries {
		ranked[i] = en.take
	}
	return ranked
}

// enrich は返却するページのテイクにコメント数と閲覧ユーザーのいいね状態を付与する。
func (e *Engine) enrich(ctx context.Context, viewerID string, takes []model.Take) ([]model.TakeView, error) {
	views := make([]model.TakeView, len(takes))
	if len(takes) == 0 {
		return views, nil
	}

	ids := takeIDs(takes)
	counts, err := e.store.FetchCommentCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	likes, err := e.userLikes(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}

	for i, t := range takes {
		t.CommentCount = counts[t.ID]
		views[i] = model.TakeView{Take: t, UserLiked: likes[t.ID]}
	}
	return views, nil
}

func (e *Engine) userLikes(ctx context.Context, viewerID string, ids []string) (map[string]bool, error) {
	if viewerID == "" || len(ids) == 0 {
		return map[string]bool{}, nil
	}
	return e.store.FetchUserLikes(ctx, viewerID, ids)
}

func takeIDs(takes []model.Take) []string {
	ids := make([]string, len(takes))
	for i, t := range takes {
		ids[i] = t.ID
	}
	return ids
}
