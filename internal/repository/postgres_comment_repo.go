package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/hottakes/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

const commentColumns = `c.id, c.take_id, c.user_id, u.username, c.content, c.created_at, c.is_hidden`

func scanComment(row rowScanner) (model.Comment, error) {
	var c model.Comment
	err := row.Scan(&c.ID, &c.TakeID, &c.UserID, &c.Username, &c.Content, &c.CreatedAt, &c.IsHidden)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

// ListByTake はテイクの非表示でないコメントをcreated_at昇順で返す。
func (r *PostgresCommentRepo) ListByTake(ctx context.Context, takeID string) ([]model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+`
		 FROM comments c
		 INNER JOIN users u ON u.id = c.user_id
		 WHERE c.take_id = $1 AND c.is_hidden = false
		 ORDER BY c.created_at ASC, c.id ASC`,
		takeID,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("コメントのスキャンに失敗しました: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の読み取りに失敗しました: %w", err)
	}
	return comments, nil
}

// FindVisibleByID は非表示でないコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindVisibleByID(ctx context.Context, id string) (*model.Comment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+`
		 FROM comments c
		 INNER JOIN users u ON u.id = c.user_id
		 WHERE c.id = $1 AND c.is_hidden = false`,
		id,
	)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return &c, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, take_id, user_id, content, created_at, is_hidden)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		comment.ID, comment.TakeID, comment.UserID, comment.Content, comment.CreatedAt, comment.IsHidden,
	)
	if err != nil {
		return fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
