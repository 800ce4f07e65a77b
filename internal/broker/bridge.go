// Package broker はRedis pub/subとイベントストリームの間をつなぐ。
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/hottakes/internal/model"
)

// PubSub は購読中のRedisチャネル。*redis.PubSubが満たす。
type PubSub interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// SubscribeFunc はtopicを購読し、購読確認まで待ってからPubSubを返す。
type SubscribeFunc func(ctx context.Context, topic string) (PubSub, error)

// DropRecorder は破棄したメッセージを記録するインターフェース。
type DropRecorder interface {
	RecordBrokerMessageDropped(topic string)
}

type nopDropRecorder struct{}

func (nopDropRecorder) RecordBrokerMessageDropped(string) {}

// Bridge はトピックの購読を生成する。
type Bridge struct {
	subscribe SubscribeFunc
	logger    *slog.Logger
	recorder  DropRecorder
}

// NewBridge はRedisクライアントを使用するBridgeを生成する。
func NewBridge(client *redis.Client, logger *slog.Logger, recorder DropRecorder) *Bridge {
	return NewBridgeWithSubscriber(func(ctx context.Context, topic string) (PubSub, error) {
		ps := client.Subscribe(ctx, topic)
		// 最初の受信は購読確認。ここでエラーになれば接続できていない。
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		return ps, nil
	}, logger, recorder)
}

// NewBridgeWithSubscriber は任意のSubscribeFuncを使用するBridgeを生成する。
func NewBridgeWithSubscriber(subscribe SubscribeFunc, logger *slog.Logger, recorder DropRecorder) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopDropRecorder{}
	}
	return &Bridge{subscribe: subscribe, logger: logger, recorder: recorder}
}

// Subscribe はtopicを購読し、デコード済みイベントを流すSubscriptionを返す。
// ストリームはctxのキャンセルかCloseまで終わらない。再開はできず、
// 再購読には新たにSubscribeを呼ぶ。
func (b *Bridge) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps, err := b.subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("トピック %s の購読に失敗しました: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		topic:    topic,
		ps:       ps,
		messages: make(chan model.Event),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(subCtx, b.logger, b.recorder)
	return s, nil
}

// Subscription は単一トピックの購読。
type Subscription struct {
	topic    string
	ps       PubSub
	messages chan model.Event
	cancel   context.CancelFunc
	done     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Messages はデコード済みイベントのチャネルを返す。購読終了時にクローズされる。
func (s *Subscription) Messages() <-chan model.Event {
	return s.messages
}

// Close は購読を解除する。複数回呼んでもよい。
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return s.closeErr
}

func (s *Subscription) run(ctx context.Context, logger *slog.Logger, recorder DropRecorder) {
	defer close(s.done)
	defer close(s.messages)
	defer s.closePubSub()

	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, err := decodeMessage(msg.Payload)
			if err != nil {
				logger.Warn("不正なメッセージを破棄しました",
					slog.String("topic", s.topic),
					slog.String("error", err.Error()),
				)
				recorder.RecordBrokerMessageDropped(s.topic)
				continue
			}
			select {
			case s.messages <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Subscription) closePubSub() {
	s.closeOnce.Do(func() {
		s.closeErr = s.ps.Close()
	})
}

var errMissingType = errors.New("event type is missing")

// decodeMessage はペイロードをイベントにデコードする。typeのないペイロードは不正とみなす。
func decodeMessage(payload string) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return model.Event{}, err
	}
	if ev.Type == "" {
		return model.Event{}, errMissingType
	}
	return ev, nil
}
