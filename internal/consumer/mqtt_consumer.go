package consumer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	mqttcommon "scenescape-counter/common/mqtt"
	"scenescape-counter/internal/aggregator"
	"scenescape-counter/internal/models"
)

// Broker MQTT 订阅接口（*mqttcommon.Client 实现）
type Broker interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Observer 聚合更新的下游（控制台输出、指标、Redis Streams）
type Observer interface {
	OnUpdate(ev *models.SceneEvent, snap aggregator.Snapshot)
}

// DropRecorder 记录丢弃的消息
type DropRecorder interface {
	PayloadDropped()
}

// MQTTConsumer live 事件消费者
// 消息按到达顺序逐条处理：解析 -> 聚合 -> 通知 Observer
type MQTTConsumer struct {
	topic      string
	qos        byte
	broker     Broker
	aggregator *aggregator.Aggregator
	observers  []Observer
	drops      DropRecorder
	logger     *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	topic string,
	broker Broker,
	agg *aggregator.Aggregator,
	drops DropRecorder,
	logger *zap.Logger,
	observers ...Observer,
) *MQTTConsumer {
	return &MQTTConsumer{
		topic:      topic,
		broker:     broker,
		aggregator: agg,
		observers:  observers,
		drops:      drops,
		logger:     logger,
	}
}

// Start 订阅 live 主题；订阅失败返回错误（启动时致命）
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if c.topic == "" {
		return fmt.Errorf("live event topic not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.broker.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to live topic: %w", err)
	}

	c.logger.Info("Subscribed to topic",
		zap.String("topic", c.topic),
		zap.String("category", c.aggregator.Category()),
	)
	c.logger.Info("Waiting for live object data...")
	return nil
}

// Stop 取消订阅，等待时间不超过 ctx 的截止时间
// 超时返回 ctx 错误，调用方随后直接断开连接
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- c.broker.Unsubscribe(c.topic)
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Error("Failed to unsubscribe", zap.String("topic", c.topic), zap.Error(err))
			return err
		}
	case <-ctx.Done():
		c.logger.Warn("Unsubscribe abandoned at shutdown deadline", zap.String("topic", c.topic))
		return fmt.Errorf("unsubscribe from %s: %w", c.topic, ctx.Err())
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理单条 live 消息
// 格式错误的消息记录 warn 后丢弃，返回 *errs.PayloadError
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	ev, err := models.ParseSceneEvent(topic, payload)
	if err != nil {
		c.logger.Warn("Dropping malformed message",
			zap.String("topic", topic),
			zap.String("payload", truncate(payload, 100)),
			zap.Error(err),
		)
		if c.drops != nil {
			c.drops.PayloadDropped()
		}
		return err
	}

	snap := c.aggregator.Apply(ev)
	for _, o := range c.observers {
		o.OnUpdate(ev, snap)
	}

	return nil
}

func truncate(payload []byte, n int) string {
	if len(payload) <= n {
		return string(payload)
	}
	return string(payload[:n]) + "..."
}
