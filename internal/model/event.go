package model

import (
	"encoding/json"
	"fmt"
)

// EventType はトピックに配信されるイベントの種別。
type EventType string

const (
	// EventNewTake は新規テイク投稿。
	EventNewTake EventType = "new_take"
	// EventDeleteTake はテイク削除（非表示化）。
	EventDeleteTake EventType = "delete_take"
	// EventLikeUpdate はいいね数の更新。
	EventLikeUpdate EventType = "like_update"
	// EventNewComment は新規コメント投稿。
	EventNewComment EventType = "new_comment"
)

// FeedTopic はグローバルフィードのトピック名。
const FeedTopic = "feed"

// CommentsTopic はテイクごとのコメントストリームのトピック名を返す。
func CommentsTopic(takeID string) string {
	return "comments:" + takeID
}

// Event はブローカー経由でクライアントに配信されるメッセージ。
// ワイヤ形式は {"type": ..., "data": {...}}。
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent はdataをJSONエンコードしてEventを生成する。
func NewEvent(eventType EventType, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("イベントデータのエンコードに失敗しました: %w", err)
	}
	return Event{Type: eventType, Data: raw}, nil
}
