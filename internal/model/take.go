// Package model はドメインモデルを定義する。
package model

import "time"

// Take はフィードに投稿された短文（ホットテイク）の読み取り用射影を表す。
// IDはULIDであり、辞書順と生成順が一致する。
type Take struct {
	ID           string
	UserID       string
	Username     string
	Content      string
	LikeCount    int
	CommentCount int
	CreatedAt    time.Time // UTC
	IsHidden     bool
}

// TakeView は閲覧ユーザーごとの付加情報を結合したテイク。
type TakeView struct {
	Take
	UserLiked bool
}

// Comment はテイクに対するコメントを表す。
type Comment struct {
	ID        string
	TakeID    string
	UserID    string
	Username  string
	Content   string
	CreatedAt time.Time
	IsHidden  bool
}

// ReportTarget は通報対象の種別を表す。
type ReportTarget string

const (
	// ReportTargetTake はテイクへの通報。
	ReportTargetTake ReportTarget = "take"
	// ReportTargetComment はコメントへの通報。
	ReportTargetComment ReportTarget = "comment"
)

// Report はモデレーション用の通報を表す。
// 匿名通報の場合ReporterUserIDはnil。
type Report struct {
	ID             string
	TargetType     ReportTarget
	TargetID       string
	Reason         string
	ReporterUserID *string
	CreatedAt      time.Time
}

// LikeResult はいいね操作の結果を表す。
// Changedがfalseの場合は既にいいね済み（または未いいね）で状態が変わらなかったことを示す。
type LikeResult struct {
	TakeID    string
	LikeCount int
	Changed   bool
}
