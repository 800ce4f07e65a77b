// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/hottakes/internal/model"
	"github.com/hitoshi/hottakes/internal/ranking"
)

// UserRepository はユーザーデータの参照インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TakeRepository はテイクといいねの永続化インターフェース。
// ランキングの読み取り操作（ranking.Store）を含む。
type TakeRepository interface {
	ranking.Store

	// FindVisibleByID は非表示でないテイクを取得する。見つからない場合はnilを返す。
	FindVisibleByID(ctx context.Context, id string) (*model.Take, error)

	// Create はテイクを作成する。
	Create(ctx context.Context, take *model.Take) error

	// Hide はテイクを非表示にする。行は削除しない。
	Hide(ctx context.Context, id string) error

	// Like はいいねを冪等に追加し、いいね数を同一トランザクションで更新する。
	// 対象のテイクが存在しないか非表示の場合はnilを返す。
	Like(ctx context.Context, takeID, userID string) (*model.LikeResult, error)

	// Unlike はいいねを冪等に取り消す。いいね数は0未満にならない。
	// 対象のテイクが存在しないか非表示の場合はnilを返す。
	Unlike(ctx context.Context, takeID, userID string) (*model.LikeResult, error)
}

// CommentRepository はコメントの永続化インターフェース。
type CommentRepository interface {
	// ListByTake はテイクの非表示でないコメントをcreated_at昇順で返す。
	ListByTake(ctx context.Context, takeID string) ([]model.Comment, error)

	// FindVisibleByID は非表示でないコメントを取得する。見つからない場合はnilを返す。
	FindVisibleByID(ctx context.Context, id string) (*model.Comment, error)

	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error
}

// ReportRepository は通報の永続化インターフェース。
type ReportRepository interface {
	// Create は通報を作成する。
	Create(ctx context.Context, report *model.Report) error
}
