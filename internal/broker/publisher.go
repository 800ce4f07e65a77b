package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/hottakes/internal/model"
)

// PublishClient はPUBLISHを発行するクライアント。*redis.Clientが満たす。
type PublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PublishRecorder はイベント配信の結果を記録する。resultは "ok" または "error"。
type PublishRecorder interface {
	RecordEventPublished(eventType, result string)
}

type nopPublishRecorder struct{}

func (nopPublishRecorder) RecordEventPublished(string, string) {}

// Publisher はトピックへイベントを配信する。配信は一度きりで、再送や保存は行わない。
type Publisher struct {
	client   PublishClient
	logger   *slog.Logger
	recorder PublishRecorder
}

// NewPublisher はPublisherを生成する。recorderがnilの場合は記録しない。
func NewPublisher(client PublishClient, logger *slog.Logger, recorder PublishRecorder) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopPublishRecorder{}
	}
	return &Publisher{client: client, logger: logger, recorder: recorder}
}

// Publish はeventをJSONにしてtopicへ配信する。
func (p *Publisher) Publish(ctx context.Context, topic string, event model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("イベントのエンコードに失敗しました: %w", err)
	}

	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		p.logger.Warn("イベントの配信に失敗しました",
			slog.String("topic", topic),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
		p.recorder.RecordEventPublished(string(event.Type), "error")
		return fmt.Errorf("トピック %s への配信に失敗しました: %w", topic, err)
	}
	p.recorder.RecordEventPublished(string(event.Type), "ok")
	return nil
}

// PublishEvent はイベントを組み立ててtopicへ配信する。
func (p *Publisher) PublishEvent(ctx context.Context, topic string, eventType model.EventType, data any) error {
	event, err := model.NewEvent(eventType, data)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, event)
}
