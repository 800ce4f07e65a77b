package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/hottakes/internal/middleware"
	"github.com/hitoshi/hottakes/internal/model"
	"github.com/hitoshi/hottakes/internal/realtime"
)

// errInboundFlood は受信フレームの流量制限超過を表す。
var errInboundFlood = errors.New("inbound frame rate exceeded")

// WSConfig はWebSocketエントリポイントの設定。
type WSConfig struct {
	AllowedOrigin string
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	ReadTimeout   time.Duration
	InboundRate   float64
	InboundBurst  int
}

// DefaultWSConfig はWSConfigの既定値を返す。
func DefaultWSConfig() WSConfig {
	return WSConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  75 * time.Second,
		InboundRate:  5,
		InboundBurst: 10,
	}
}

// WSHandler はフィードとコメントストリームのWebSocketエントリポイント。
type WSHandler struct {
	feed     *realtime.Hub
	comments *realtime.Registry
	cfg      WSConfig
	upgrader websocket.Upgrader
	baseCtx  context.Context
	logger   *slog.Logger
}

// NewWSHandler はWSHandlerを生成する。baseCtxがキャンセルされると全接続を閉じる。
func NewWSHandler(baseCtx context.Context, feed *realtime.Hub, comments *realtime.Registry, cfg WSConfig, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WSHandler{
		feed:     feed,
		comments: comments,
		cfg:      cfg,
		baseCtx:  baseCtx,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.SameOrigin(r, cfg.AllowedOrigin)
		},
	}
	return h
}

// Feed はグローバルフィードを購読する。
// GET /ws/feed
func (h *WSHandler) Feed(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.feed.Topic(), func(ctx context.Context, c *wsConn) error {
		return h.feed.Serve(ctx, c, c)
	})
}

// Comments はテイクのコメントストリームを購読する。テイクの存在は確認しない。
// GET /ws/takes/{id}/comments
func (h *WSHandler) Comments(w http.ResponseWriter, r *http.Request) {
	takeID := chi.URLParam(r, "id")
	if _, err := ulid.ParseStrict(takeID); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidTakeIDError(takeID))
		return
	}

	topic := model.CommentsTopic(takeID)
	h.serve(w, r, topic, func(ctx context.Context, c *wsConn) error {
		return realtime.Serve(ctx, h.comments, topic, c, c)
	})
}

func (h *WSHandler) serve(w http.ResponseWriter, r *http.Request, topic string, run func(context.Context, *wsConn) error) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		h.logger.Debug("websocket upgrade failed", slog.String("topic", topic), slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()

	conn := newWSConn(ws, h.cfg)
	defer conn.close()

	// サーバー停止時はブロック中の読み込みを解除するためトランスポートを閉じる
	stop := context.AfterFunc(ctx, conn.close)
	defer stop()

	go conn.pingLoop(ctx)

	logger := h.logger.With(slog.String("topic", topic), slog.String("conn_id", conn.ID()))
	logger.Debug("websocket connected")

	err = run(ctx, conn)
	switch {
	case errors.Is(err, errInboundFlood):
		conn.closeWith(websocket.ClosePolicyViolation, "too many messages")
		logger.Warn("websocket closed: inbound flood")
	case errors.Is(err, realtime.ErrRegistryClosed):
		conn.closeWith(websocket.CloseGoingAway, "server shutting down")
	case err == nil, ctx.Err() != nil, isExpectedClose(err):
		logger.Debug("websocket disconnected")
	default:
		logger.Info("websocket closed", slog.String("error", err.Error()))
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, websocket.ErrCloseSent)
}

// wsConn はgorilla/websocketの接続をrealtime.Connとrealtime.Readerに適合させる。
// 書き込みはmuで直列化する。
type wsConn struct {
	id      string
	ws      *websocket.Conn
	cfg     WSConfig
	limiter *rate.Limiter

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, cfg WSConfig) *wsConn {
	c := &wsConn{
		id:      uuid.NewString(),
		ws:      ws,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.InboundRate), cfg.InboundBurst),
	}
	c.extendReadDeadline()
	ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
	return c
}

// ID はrealtime.Connを実装する。
func (c *wsConn) ID() string { return c.id }

// Send はイベントをJSONテキストフレームで送信する。
func (c *wsConn) Send(ctx context.Context, event model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(event)
}

// ReadFrame は受信フレームを1つ読み捨てる。受信のたびに読み込み期限を延長する。
func (c *wsConn) ReadFrame(ctx context.Context) error {
	if _, _, err := c.ws.NextReader(); err != nil {
		return err
	}
	c.extendReadDeadline()
	if !c.limiter.Allow() {
		return errInboundFlood
	}
	return nil
}

func (c *wsConn) extendReadDeadline() {
	if c.cfg.ReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}

// pingLoop はctxが終わるまで定期的にpingを送る。失敗したら接続を閉じる。
func (c *wsConn) pingLoop(ctx context.Context) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.mu.Unlock()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

// closeWith はクローズフレームを送ってから接続を閉じる。
func (c *wsConn) closeWith(code int, text string) {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(c.cfg.WriteTimeout))
	c.mu.Unlock()
	c.close()
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() { _ = c.ws.Close() })
}
