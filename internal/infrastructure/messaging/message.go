// Package messaging 回合事件与记忆重建任务的 Redis Streams 投递。
// 消息信封携带 W3C trace context，消费端接续同一条链路。
package messaging

import (
	"encoding/json"
	"math"
	"time"
)

// Stream 流名称；每个流对应一个死信流
type Stream string

const (
	StreamTurnCompleted Stream = "stream:turn:completed"
	StreamMemoryReindex Stream = "stream:memory:reindex"
)

// DLQStream 超过重试上限的消息转入 dlq:<stream>
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 同一组内的成员分摊消息
type ConsumerGroup string

const (
	ConsumerGroupMemoryWorker ConsumerGroup = "cg-memory-worker"
	ConsumerGroupArchiver     ConsumerGroup = "cg-turn-archiver"
)

// 消息类型，消费端按类型分发
const (
	TypeTurnCompleted = "turn_completed"
	TypeMemoryReindex = "memory_reindex"
)

const metaRequestID = "request_id"

// Message 写入流中 data 字段的信封
type Message struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	CampaignID string            `json:"campaign_id"`
	Payload    json.RawMessage   `json:"payload"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewMessage payload 以 JSON 编码
func NewMessage(id, msgType, campaignID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:         id,
		Type:       msgType,
		CampaignID: campaignID,
		Payload:    raw,
		Metadata:   map[string]string{},
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// SetMeta 也作为 otel propagation.MapCarrier 的底层 map
func (m *Message) SetMeta(key, value string) {
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}
	m.Metadata[key] = value
}

// Meta 缺失时返回空串
func (m *Message) Meta(key string) string {
	return m.Metadata[key]
}

// Decode 把 payload 解到 v
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// BackoffConfig 指数退避，Max 为上限
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 1s 起步，翻倍，最长 1 分钟
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// Delay 第 attempt 次重试前的等待，attempt 从 0 开始
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return min(c.Initial, c.Max)
	}
	d := float64(c.Initial) * math.Pow(c.Multiplier, float64(attempt))
	if d >= float64(c.Max) || math.IsInf(d, 0) {
		return c.Max
	}
	return time.Duration(d)
}
