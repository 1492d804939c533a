package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"rpg-narrative-api/pkg/logger"
	"rpg-narrative-api/pkg/metrics"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

// Consumer 消费者组中的一个成员。
// 失败的消息留在 PEL 中，按退避时间重新认领；超过重试上限的转入死信流。
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig

	// reclaimIdle 其他成员持有的消息空闲超过该时长即视为其已宕机
	reclaimIdle time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	stop     chan struct{}
	done     chan struct{}
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	reclaimIdle := 5 * time.Minute
	if d := cfg.Backoff.Max * 2; d > reclaimIdle {
		reclaimIdle = d
	}

	return &Consumer{
		client:      client,
		cfg:         cfg,
		reclaimIdle: reclaimIdle,
		handlers:    make(map[string]MessageHandler),
	}
}

// RegisterHandler 注册消息处理器，按 Message.Type 分发
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 创建消费者组（已存在则忽略）并在后台开始消费
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return fmt.Errorf("consumer already running")
	}

	err := c.client.XGroupCreateMkStream(ctx, string(c.cfg.Stream), string(c.cfg.Group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(ctx, c.stop, c.done)
	return nil
}

// Stop 停止消费并等待正在处理的消息结束
func (c *Consumer) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Consumer) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	log := logger.FromContext(ctx).With(
		"stream", c.cfg.Stream,
		"group", c.cfg.Group,
		"consumer", c.cfg.ConsumerName,
	)
	log.Info("consumer started")

	var lastReclaim time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info("consumer stopped due to context cancellation")
			return
		case <-stop:
			log.Info("consumer stopped")
			return
		default:
		}

		c.retryOwnPending(ctx)
		if time.Since(lastReclaim) >= c.cfg.ClaimInterval {
			c.reclaimFromOthers(ctx)
			lastReclaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.cfg.Group),
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{string(c.cfg.Stream), ">"},
			Count:    10,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to read from stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, xmsg := range s.Messages {
				c.handle(ctx, xmsg)
			}
		}
	}
}

// decode 取出 data 字段中的消息信封
func decode(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no data field", xmsg.ID)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", xmsg.ID, err)
	}
	return &msg, nil
}

// handle 处理一条消息；成功或无法恢复时确认，失败时留在 PEL 等待重试
func (c *Consumer) handle(ctx context.Context, xmsg redis.XMessage) {
	msg, err := decode(xmsg)
	if err != nil {
		logger.Error(ctx, "dropping malformed message", err, "stream_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		return
	}

	ctx = messageContext(ctx, msg)
	ctx, span := msgTracer.Start(ctx, "consumer.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("stream", string(c.cfg.Stream)),
			attribute.String("stream.message_id", xmsg.ID),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
			attribute.String("campaign_id", msg.CampaignID),
		))
	defer span.End()

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.cfg.Stream), "error").Inc()
		logger.Error(ctx, "handler failed", err, "message_id", msg.ID)
		c.onFailure(ctx, xmsg.ID, msg, err)
		return
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(c.cfg.Stream), "success").Inc()
	c.ack(ctx, xmsg.ID)
}

// messageContext 接续生产端的 trace，并把战役与请求标识带入日志上下文
func messageContext(ctx context.Context, msg *Message) context.Context {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, sc.TraceID().String())
	}
	if msg.CampaignID != "" {
		ctx = logger.WithContext(ctx, logger.CampaignIDKey, msg.CampaignID)
	}
	if v := msg.Meta(metaRequestID); v != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, v)
	}
	return ctx
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.cfg.Stream), string(c.cfg.Group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}

func (c *Consumer) onFailure(ctx context.Context, id string, msg *Message, cause error) {
	deliveries := c.deliveries(ctx, id)
	if deliveries < c.cfg.RetryLimit {
		logger.Info(ctx, "message left pending for retry", "message_id", msg.ID, "deliveries", deliveries)
		return
	}
	logger.Warn(ctx, "message moved to DLQ after max retries", "message_id", msg.ID, "deliveries", deliveries)
	c.bury(ctx, id, msg, cause)
}

// deliveries 消息的投递次数（XPENDING）
func (c *Consumer) deliveries(ctx context.Context, id string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.cfg.Stream),
		Group:  string(c.cfg.Group),
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// bury 写入死信流并确认原消息；写入失败时保留原消息
func (c *Consumer) bury(ctx context.Context, id string, msg *Message, cause error) {
	data, _ := json.Marshal(map[string]interface{}{
		"original_stream": string(c.cfg.Stream),
		"data":            msg,
		"error":           cause.Error(),
		"failed_at":       time.Now().Unix(),
	})
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream.DLQStream(),
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		logger.Error(ctx, "failed to write DLQ message", err, "message_id", msg.ID)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.cfg.Stream), "dead_letter").Inc()
	c.ack(ctx, id)
}

// pending 列出 PEL 中的消息，consumer 为空表示整个组
func (c *Consumer) pending(ctx context.Context, consumer string) []redis.XPendingExt {
	entries, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: consumer,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Error(ctx, "failed to query pending messages", err)
	}
	return entries
}

// claim 把消息转到本成员名下，随后处理或转入死信流
func (c *Consumer) claim(ctx context.Context, p redis.XPendingExt, minIdle time.Duration) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Consumer: c.cfg.ConsumerName,
		MinIdle:  minIdle,
		Messages: []string{p.ID},
	}).Result()
	if err != nil {
		logger.Error(ctx, "failed to claim pending message", err, "message_id", p.ID)
		return
	}

	exhausted := int(p.RetryCount) >= c.cfg.RetryLimit
	for _, xmsg := range claimed {
		if !exhausted {
			c.handle(ctx, xmsg)
			continue
		}
		msg, err := decode(xmsg)
		if err != nil {
			c.ack(ctx, xmsg.ID)
			continue
		}
		c.bury(ctx, xmsg.ID, msg, fmt.Errorf("message exceeded max retries"))
	}
}

// retryOwnPending 重试本成员名下退避已到期的消息
func (c *Consumer) retryOwnPending(ctx context.Context) {
	for _, p := range c.pending(ctx, c.cfg.ConsumerName) {
		if int(p.RetryCount) >= c.cfg.RetryLimit {
			c.claim(ctx, p, 0)
			continue
		}
		wait := c.cfg.Backoff.Delay(int(p.RetryCount))
		if p.Idle >= wait {
			c.claim(ctx, p, wait)
		}
	}
}

// reclaimFromOthers 接管其他成员长时间未确认的消息
func (c *Consumer) reclaimFromOthers(ctx context.Context) {
	for _, p := range c.pending(ctx, "") {
		if p.Consumer == c.cfg.ConsumerName || p.Idle < c.reclaimIdle {
			continue
		}
		c.claim(ctx, p, c.reclaimIdle)
	}
}

// WatchDeadLetters 每分钟检查死信流长度，超过阈值时告警，直到 ctx 结束
func (c *Consumer) WatchDeadLetters(ctx context.Context, threshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	dlq := c.cfg.Stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.client.XLen(ctx, dlq).Result()
			if err != nil {
				continue
			}
			if n > threshold {
				logger.Warn(ctx, "dead letter stream is growing", "stream", dlq, "count", n)
			}
		}
	}
}
