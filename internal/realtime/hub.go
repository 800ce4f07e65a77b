package realtime

import (
	"context"

	"github.com/hitoshi/hottakes/internal/model"
)

// Hub は単一トピックに束縛されたRegistry。グローバルフィードのように
// トピックが固定のエントリポイントで使う。
type Hub struct {
	registry *Registry
	topic    string
}

// NewHub はregistryのtopicに束縛したHubを生成する。
func NewHub(registry *Registry, topic string) *Hub {
	return &Hub{registry: registry, topic: topic}
}

// Topic は束縛されたトピック名を返す。
func (h *Hub) Topic() string { return h.topic }

// Register はconnを登録する。
func (h *Hub) Register(conn Conn) error {
	return h.registry.Register(h.topic, conn)
}

// Unregister はconnを外す。
func (h *Hub) Unregister(conn Conn) {
	h.registry.Unregister(h.topic, conn)
}

// Broadcast はeventを全接続へ送信し、成功した数を返す。
func (h *Hub) Broadcast(ctx context.Context, event model.Event) int {
	return h.registry.Broadcast(ctx, h.topic, event)
}

// ConnectionCount は登録中の接続数を返す。
func (h *Hub) ConnectionCount() int {
	return h.registry.ConnectionCount(h.topic)
}

// Serve はconnを束縛トピックに登録して切断まで受信を続ける。Serveを参照。
func (h *Hub) Serve(ctx context.Context, conn Conn, reader Reader) error {
	return Serve(ctx, h.registry, h.topic, conn, reader)
}
