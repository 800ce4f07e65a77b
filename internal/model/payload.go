package model

import "time"

// TakePayload はAPIレスポンスとnew_takeイベントで共通のテイク表現。
type TakePayload struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	Username     string    `json:"username"`
	UserLiked    bool      `json:"user_liked"`
}

// NewTakePayload はTakeViewからTakePayloadを生成する。
func NewTakePayload(v TakeView) TakePayload {
	return TakePayload{
		ID:           v.ID,
		Content:      v.Content,
		LikeCount:    v.LikeCount,
		CommentCount: v.CommentCount,
		CreatedAt:    v.CreatedAt.UTC(),
		Username:     v.Username,
		UserLiked:    v.UserLiked,
	}
}

// CommentPayload はAPIレスポンスとnew_commentイベントで共通のコメント表現。
type CommentPayload struct {
	ID        string    `json:"id"`
	TakeID    string    `json:"take_id"`
	Content   string    `json:"content"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCommentPayload はCommentからCommentPayloadを生成する。
func NewCommentPayload(c Comment) CommentPayload {
	return CommentPayload{
		ID:        c.ID,
		TakeID:    c.TakeID,
		Content:   c.Content,
		Username:  c.Username,
		CreatedAt: c.CreatedAt.UTC(),
	}
}

// DeleteTakePayload はdelete_takeイベントのデータ。
type DeleteTakePayload struct {
	ID string `json:"id"`
}

// LikeUpdatePayload はlike_updateイベントのデータ。
type LikeUpdatePayload struct {
	ID        string `json:"id"`
	LikeCount int    `json:"like_count"`
}
