// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hottakes"

// Collector はPrometheusメトリクスを収集する実装。
// ratelimit.Recorder、broker.DropRecorder、broker.PublishRecorderを満たし、
// realtime.RecorderはRealtimeで登録種別ごとに取得する。
type Collector struct {
	connections      *prometheus.GaugeVec
	listeners        *prometheus.GaugeVec
	listenerFailures *prometheus.CounterVec
	delivered        *prometheus.CounterVec
	evicted          *prometheus.CounterVec
	brokerDropped    *prometheus.CounterVec
	published        *prometheus.CounterVec
	rateLimit        *prometheus.CounterVec
	rateLimitStore   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "登録中のリアルタイム接続数",
		}, []string{"kind"}),
		listeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_listeners",
			Help:      "購読中のトピックリスナー数",
		}, []string{"kind"}),
		listenerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_listener_failures_total",
			Help:      "購読失敗または購読ストリームの異常終了の合計数",
		}, []string{"kind"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_broadcast_delivered_total",
			Help:      "接続へ送信できたイベントの合計数",
		}, []string{"kind"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_evicted_connections_total",
			Help:      "送信失敗により除外された接続の合計数",
		}, []string{"kind"}),
		brokerDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_dropped_messages_total",
			Help:      "デコードできず破棄したブローカーメッセージの合計数",
		}, []string{"topic_kind"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_published_events_total",
			Help:      "配信したイベントの合計数",
		}, []string{"type", "result"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "レート制限の判定結果の合計数",
		}, []string{"action", "result"}),
		rateLimitStore: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_store_failures_total",
			Help:      "カウンタストア障害の合計数",
		}, []string{"action"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "ルート・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTPリクエストの処理時間（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.connections,
		c.listeners,
		c.listenerFailures,
		c.delivered,
		c.evicted,
		c.brokerDropped,
		c.published,
		c.rateLimit,
		c.rateLimitStore,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordRateLimitDecision はレート制限の判定結果を記録する。
func (c *Collector) RecordRateLimitDecision(action, result string) {
	c.rateLimit.WithLabelValues(action, result).Inc()
}

// RecordRateLimitStoreFailure はカウンタストア障害を記録する。
func (c *Collector) RecordRateLimitStoreFailure(action string) {
	c.rateLimitStore.WithLabelValues(action).Inc()
}

// RecordBrokerMessageDropped は破棄したメッセージを記録する。
// ラベルの濃度を抑えるため、トピックは "comments:<id>" を "comments" にまとめる。
func (c *Collector) RecordBrokerMessageDropped(topic string) {
	c.brokerDropped.WithLabelValues(topicKind(topic)).Inc()
}

// RecordEventPublished はイベント配信の結果を記録する。
func (c *Collector) RecordEventPublished(eventType, result string) {
	c.published.WithLabelValues(eventType, result).Inc()
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
// routeにはURLではなくルートパターンを渡す。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Realtime はkind（"feed" または "comments"）ラベル付きのrealtime.Recorderを返す。
func (c *Collector) Realtime(kind string) *RealtimeRecorder {
	return &RealtimeRecorder{c: c, kind: kind}
}

// RealtimeRecorder はRegistry1つ分の接続メトリクスを記録する。
type RealtimeRecorder struct {
	c    *Collector
	kind string
}

func (r *RealtimeRecorder) RecordConnectionAdded() {
	r.c.connections.WithLabelValues(r.kind).Inc()
}

func (r *RealtimeRecorder) RecordConnectionRemoved(evicted bool) {
	r.c.connections.WithLabelValues(r.kind).Dec()
	if evicted {
		r.c.evicted.WithLabelValues(r.kind).Inc()
	}
}

func (r *RealtimeRecorder) RecordBroadcastDelivered(count int) {
	r.c.delivered.WithLabelValues(r.kind).Add(float64(count))
}

func (r *RealtimeRecorder) RecordListenerFailure() {
	r.c.listenerFailures.WithLabelValues(r.kind).Inc()
}

func (r *RealtimeRecorder) RecordListenerActive(delta int) {
	r.c.listeners.WithLabelValues(r.kind).Add(float64(delta))
}

func topicKind(topic string) string {
	kind, _, _ := strings.Cut(topic, ":")
	return kind
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
