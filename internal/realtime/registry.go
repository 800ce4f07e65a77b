// Package realtime はトピックごとのリアルタイム接続の登録と配信を管理する。
//
// トピックに最初の接続が登録されるとブローカー購読リスナーを起動し、
// 最後の接続が外れるとリスナーを停止してトピックを破棄する。
// ロック順序は Registry.mu → topicState.mu で、ロック保持中にI/Oは行わない。
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/hottakes/internal/model"
)

// ErrRegistryClosed はClose済みのRegistryへの登録を表す。
var ErrRegistryClosed = errors.New("realtime registry is closed")

// Conn はイベントを送信できるクライアント接続。
// トランスポートのクローズは接続の所有者が行い、Registryは閉じない。
type Conn interface {
	ID() string
	Send(ctx context.Context, event model.Event) error
}

// Stream はトピックのイベントストリーム。
type Stream interface {
	Messages() <-chan model.Event
	Close() error
}

// Source はトピックを購読してStreamを返す。
type Source interface {
	Subscribe(ctx context.Context, topic string) (Stream, error)
}

// SourceFunc は関数をSourceとして使うためのアダプター。
type SourceFunc func(ctx context.Context, topic string) (Stream, error)

// Subscribe はf(ctx, topic)を呼ぶ。
func (f SourceFunc) Subscribe(ctx context.Context, topic string) (Stream, error) {
	return f(ctx, topic)
}

// Recorder は接続数や配信結果を記録するインターフェース。
type Recorder interface {
	RecordConnectionAdded()
	RecordConnectionRemoved(evicted bool)
	RecordBroadcastDelivered(count int)
	RecordListenerFailure()
	// RecordListenerActive は購読中のリスナー数をdeltaだけ増減する。
	RecordListenerActive(delta int)
}

type nopRecorder struct{}

func (nopRecorder) RecordConnectionAdded()       {}
func (nopRecorder) RecordConnectionRemoved(bool) {}
func (nopRecorder) RecordBroadcastDelivered(int) {}
func (nopRecorder) RecordListenerFailure()       {}
func (nopRecorder) RecordListenerActive(int)     {}

// Options はRegistryの生成オプション。
type Options struct {
	Logger   *slog.Logger
	Recorder Recorder
}

// topicState は1トピック分の状態。破棄後はclosedになり、再利用されない。
type topicState struct {
	mu      sync.Mutex
	conns   map[string]Conn
	running bool
	closed  bool
	cancel  context.CancelFunc
}

// Registry はトピックごとの接続集合とリスナーを管理する。
type Registry struct {
	source   Source
	logger   *slog.Logger
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	topics map[string]*topicState
	closed bool
}

// NewRegistry はRegistryを生成する。
func NewRegistry(source Source, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		source:   source,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		ctx:      ctx,
		cancel:   cancel,
		topics:   make(map[string]*topicState),
	}
}

// Register はconnをtopicに登録する。
// リスナーが動いていなければ起動する（購読失敗後の再起動を含む）。
func (r *Registry) Register(topic string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	st, ok := r.topics[topic]
	if !ok {
		st = &topicState{conns: make(map[string]Conn)}
		r.topics[topic] = st
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.conns[conn.ID()]; !exists {
		st.conns[conn.ID()] = conn
		r.recorder.RecordConnectionAdded()
	}

	if !st.running {
		if st.cancel != nil {
			st.cancel()
		}
		ctx, cancel := context.WithCancel(r.ctx)
		st.running = true
		st.cancel = cancel
		r.wg.Add(1)
		go r.listen(ctx, topic, st)
	}

	return nil
}

// Unregister はconnをtopicから外す。最後の接続であればリスナーを停止してトピックを破棄する。
// 未登録の接続に対しては何もしない。
func (r *Registry) Unregister(topic string, conn Conn) {
	r.mu.Lock()
	st := r.topics[topic]
	r.mu.Unlock()
	if st == nil {
		return
	}
	r.remove(topic, st, conn.ID(), false)
}

// remove はst上の接続を外す。stがすでに破棄・置換されていれば何もしない。
func (r *Registry) remove(topic string, st *topicState, connID string, evicted bool) {
	var cancel context.CancelFunc

	r.mu.Lock()
	if r.topics[topic] != st {
		r.mu.Unlock()
		return
	}
	st.mu.Lock()
	if _, ok := st.conns[connID]; ok {
		delete(st.conns, connID)
		r.recorder.RecordConnectionRemoved(evicted)
	}
	if len(st.conns) == 0 {
		st.closed = true
		cancel = st.cancel
		delete(r.topics, topic)
	}
	st.mu.Unlock()
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Broadcast はtopicの全接続へeventを並行送信し、送信に成功した数を返す。
// 送信に失敗した接続はUnregisterと同じ経路で除外する。
func (r *Registry) Broadcast(ctx context.Context, topic string, event model.Event) int {
	r.mu.Lock()
	st := r.topics[topic]
	r.mu.Unlock()
	if st == nil {
		return 0
	}
	return r.broadcastTo(ctx, topic, st, event)
}

func (r *Registry) broadcastTo(ctx context.Context, topic string, st *topicState, event model.Event) int {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return 0
	}
	conns := make([]Conn, 0, len(st.conns))
	for _, c := range st.conns {
		conns = append(conns, c)
	}
	st.mu.Unlock()

	errs := make([]error, len(conns))
	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Send(ctx, event)
		}()
	}
	wg.Wait()

	delivered := 0
	for i, err := range errs {
		if err == nil {
			delivered++
			continue
		}
		r.logger.Debug("送信に失敗した接続を除外します",
			slog.String("topic", topic),
			slog.String("conn_id", conns[i].ID()),
			slog.String("error", err.Error()),
		)
		r.remove(topic, st, conns[i].ID(), true)
	}

	r.recorder.RecordBroadcastDelivered(delivered)
	return delivered
}

// listen はtopicを購読し、受信したイベントをstの接続へ配信する。
func (r *Registry) listen(ctx context.Context, topic string, st *topicState) {
	defer r.wg.Done()

	stream, err := r.source.Subscribe(ctx, topic)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("トピックの購読に失敗しました",
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
		}
		r.stopped(st)
		return
	}
	r.recorder.RecordListenerActive(1)
	defer func() {
		r.recorder.RecordListenerActive(-1)
		if err := stream.Close(); err != nil {
			r.logger.Warn("購読の解除に失敗しました",
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
		}
	}()

	r.logger.Debug("リスナーを開始しました", slog.String("topic", topic))

	messages := stream.Messages()
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("リスナーを停止しました", slog.String("topic", topic))
			return
		case event, ok := <-messages:
			if !ok {
				r.logger.Warn("購読ストリームが終了しました", slog.String("topic", topic))
				r.stopped(st)
				return
			}
			r.broadcastTo(ctx, topic, st, event)
		}
	}
}

// stopped はリスナーが異常終了したことを記録し、次のRegisterで再起動できるようにする。
func (r *Registry) stopped(st *topicState) {
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
	r.recorder.RecordListenerFailure()
}

// ConnectionCount はtopicに登録中の接続数を返す。
func (r *Registry) ConnectionCount(topic string) int {
	r.mu.Lock()
	st := r.topics[topic]
	r.mu.Unlock()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.conns)
}

// Close は全トピックを破棄し、リスナーの終了を待つ。接続のトランスポートは閉じない。
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for topic, st := range r.topics {
		st.mu.Lock()
		for range st.conns {
			r.recorder.RecordConnectionRemoved(false)
		}
		st.conns = nil
		st.closed = true
		st.mu.Unlock()
		delete(r.topics, topic)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
