package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/hottakes/internal/model"
	"github.com/hitoshi/hottakes/internal/ranking"
)

// PostgresTakeRepo はPostgreSQLを使用したテイクリポジトリ。
type PostgresTakeRepo struct {
	db *sql.DB
}

// NewPostgresTakeRepo はPostgresTakeRepoを生成する。
func NewPostgresTakeRepo(db *sql.DB) *PostgresTakeRepo {
	return &PostgresTakeRepo{db: db}
}

const takeColumns = `t.id, t.user_id, u.username, t.content, t.like_count, t.created_at, t.is_hidden`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTake(row rowScanner) (model.Take, error) {
	var t model.Take
	err := row.Scan(&t.ID, &t.UserID, &t.Username, &t.Content, &t.LikeCount, &t.CreatedAt, &t.IsHidden)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, err
}

// buildCandidateQuery は候補取得のSQLと引数を組み立てる。
func buildCandidateQuery(q ranking.CandidateQuery) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + takeColumns + `
		 FROM takes t
		 INNER JOIN users u ON u.id = t.user_id
		 WHERE t.is_hidden = false`)

	if !q.Since.IsZero() {
		args = append(args, q.Since)
		fmt.Fprintf(&sb, " AND t.created_at >= $%d", len(args))
	}
	if q.Before != nil {
		args = append(args, q.Before.CreatedAt, q.Before.ID)
		fmt.Fprintf(&sb, " AND (t.created_at, t.id) < ($%d, $%d)", len(args)-1, len(args))
	}

	sb.WriteString(" ORDER BY t.created_at DESC, t.id DESC")

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args
}

// FetchCandidates は条件に合う非表示でないテイクをcreated_at降順で返す。
func (r *PostgresTakeRepo) FetchCandidates(ctx context.Context, q ranking.CandidateQuery) ([]model.Take, error) {
	query, args := buildCandidateQuery(q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("テイク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	takes := make([]model.Take, 0, q.Limit)
	for rows.Next() {
		t, err := scanTake(rows)
		if err != nil {
			return nil, fmt.Errorf("テイクのスキャンに失敗しました: %w", err)
		}
		takes = append(takes, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("テイク一覧の読み取りに失敗しました: %w", err)
	}
	return takes, nil
}

// FetchUserLikes はtakeIDsのうちuserIDがいいね済みのものを返す。
func (r *PostgresTakeRepo) FetchUserLikes(ctx context.Context, userID string, takeIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if len(takeIDs) == 0 {
		return liked, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT take_id FROM likes WHERE user_id = $1 AND take_id = ANY($2)`,
		userID, pq.Array(takeIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("いいね状態の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("いいね状態のスキャンに失敗しました: %w", err)
		}
		liked[id] = true
	}
	return liked, rows.Err()
}

// FetchCommentCounts はtakeIDsごとの非表示でないコメント数を返す。コメントがないIDは含まない。
func (r *PostgresTakeRepo) FetchCommentCounts(ctx context.Context, takeIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(takeIDs) == 0 {
		return counts, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT take_id, count(*) FROM comments
		 WHERE take_id = ANY($1) AND is_hidden = false
		 GROUP BY take_id`,
		pq.Array(takeIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("コメント数の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("コメント数のスキャンに失敗しました: %w", err)
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// FindVisibleByID は非表示でないテイクを取得する。見つからない場合はnilを返す。
func (r *PostgresTakeRepo) FindVisibleByID(ctx context.Context, id string) (*model.Take, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+takeColumns+`
		 FROM takes t
		 INNER JOIN users u ON u.id = t.user_id
		 WHERE t.id = $1 AND t.is_hidden = false`,
		id,
	)
	t, err := scanTake(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("テイクの取得に失敗しました: %w", err)
	}
	return &t, nil
}

// Create はテイクを作成する。
func (r *PostgresTakeRepo) Create(ctx context.Context, take *model.Take) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO takes (id, user_id, content, like_count, created_at, is_hidden)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		take.ID, take.UserID, take.Content, take.LikeCount, take.CreatedAt, take.IsHidden,
	)
	if err != nil {
		return fmt.Errorf("テイクの作成に失敗しました: %w", err)
	}
	return nil
}

// Hide はテイクを非表示にする。
func (r *PostgresTakeRepo) Hide(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE takes SET is_hidden = true WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("テイクの非表示化に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("take not found: %s", id)
	}
	return nil
}

// Like はいいねを冪等に追加する。
func (r *PostgresTakeRepo) Like(ctx context.Context, takeID, userID string) (*model.LikeResult, error) {
	return r.changeLike(ctx, takeID,
		`INSERT INTO likes (take_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		`UPDATE takes SET like_count = like_count + 1 WHERE id = $1 RETURNING like_count`,
		userID,
	)
}

// Unlike はいいねを冪等に取り消す。
func (r *PostgresTakeRepo) Unlike(ctx context.Context, takeID, userID string) (*model.LikeResult, error) {
	return r.changeLike(ctx, takeID,
		`DELETE FROM likes WHERE take_id = $1 AND user_id = $2`,
		`UPDATE takes SET like_count = GREATEST(like_count - 1, 0) WHERE id = $1 RETURNING like_count`,
		userID,
	)
}

// changeLike はテイク行をロックした上でlikesを変更し、変更があった場合のみいいね数を更新する。
func (r *PostgresTakeRepo) changeLike(ctx context.Context, takeID, mutateSQL, counterSQL, userID string) (*model.LikeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var likeCount int
	err = tx.QueryRowContext(ctx,
		`SELECT like_count FROM takes WHERE id = $1 AND is_hidden = false FOR UPDATE`,
		takeID,
	).Scan(&likeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("テイクのロックに失敗しました: %w", err)
	}

	result, err := tx.ExecContext(ctx, mutateSQL, takeID, userID)
	if err != nil {
		return nil, fmt.Errorf("いいねの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	changed := rowsAffected > 0
	if changed {
		if err := tx.QueryRowContext(ctx, counterSQL, takeID).Scan(&likeCount); err != nil {
			return nil, fmt.Errorf("いいね数の更新に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &model.LikeResult{TakeID: takeID, LikeCount: likeCount, Changed: changed}, nil
}

// compile-time interface check
var _ TakeRepository = (*PostgresTakeRepo)(nil)
