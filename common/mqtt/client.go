package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"scenescape-counter/common/config"
	"scenescape-counter/internal/errs"
)

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte) error

// State 连接状态
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateSubscribed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// 自动重连的初始间隔，paho 每次失败后翻倍直到 MaxReconnectInterval
const minReconnectInterval = time.Second

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Option 客户端可选项
type Option func(*Client)

// WithStateListener 状态变化回调
func WithStateListener(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

// WithReconnectListener 每次重连尝试前回调，attempt 从 1 开始
func WithReconnectListener(fn func(attempt int)) Option {
	return func(c *Client) { c.onReconnect = fn }
}

// Client MQTT客户端封装
// 连接断开后由 paho 自动重连，并在重连成功后恢复所有订阅
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription

	state       atomic.Int32
	attempts    atomic.Int32
	onState     func(State)
	onReconnect func(attempt int)
}

// NewClient 创建MQTT客户端并连接 broker
// 启动阶段连接失败（不可达、认证被拒）返回 *errs.SubscriptionError，不重试
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	c := newClient(cfg, logger, opts...)
	c.client = mqtt.NewClient(c.buildOptions())

	token := c.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, &errs.SubscriptionError{Broker: cfg.BrokerURL(), Reason: "connect timed out"}
	}
	if err := token.Error(); err != nil {
		return nil, &errs.SubscriptionError{Broker: cfg.BrokerURL(), Reason: "failed to connect to MQTT broker", Err: err}
	}

	c.compareAndSetState(StateDisconnected, StateConnected)
	return c, nil
}

func newClient(cfg *config.MQTTConfig, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		config: cfg,
		logger: logger,
		subs:   make(map[string]subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) buildOptions() *mqtt.ClientOptions {
	cfg := c.config

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // 由 SCENESCAPE_MQTT_INSECURE_SKIP_VERIFY 显式控制
			MinVersion:         tls.VersionTLS12,
		})
	}

	opts.SetCleanSession(true)
	// 按到达顺序逐条回调
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	maxInterval := cfg.MaxReconnectInterval
	if maxInterval < minReconnectInterval {
		maxInterval = minReconnectInterval
	}
	opts.SetMaxReconnectInterval(maxInterval)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	return opts
}

// onConnect 首次连接与每次重连成功后调用
func (c *Client) onConnect(_ mqtt.Client) {
	if c.State() == StateStopped {
		return
	}
	if c.attempts.Swap(0) > 0 {
		c.logger.Info("Reconnected to MQTT broker", zap.String("broker", c.config.BrokerURL()))
	}
	c.setState(StateConnected)

	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		if err := c.subscribe(topic, sub); err != nil {
			c.logger.Error("Failed to restore subscription", zap.String("topic", topic), zap.Error(err))
			continue
		}
		c.setState(StateSubscribed)
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	if c.State() == StateStopped {
		return
	}
	c.setState(StateDisconnected)
	c.logger.Warn("Lost connection to MQTT broker",
		zap.String("broker", c.config.BrokerURL()),
		zap.Error(err),
	)
}

func (c *Client) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	attempt := int(c.attempts.Add(1))
	c.logger.Warn("Reconnecting to MQTT broker",
		zap.String("broker", c.config.BrokerURL()),
		zap.Int("attempt", attempt),
	)
	if c.onReconnect != nil {
		c.onReconnect(attempt)
	}
}

// Subscribe 订阅主题；重连后自动恢复
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	sub := subscription{qos: qos, handler: handler}
	if err := c.subscribe(topic, sub); err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[topic] = sub
	c.mu.Unlock()

	c.setState(StateSubscribed)
	return nil
}

func (c *Client) subscribe(topic string, sub subscription) error {
	token := c.client.Subscribe(topic, sub.qos, c.dispatch(sub.handler))
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return &errs.SubscriptionError{Broker: c.config.BrokerURL(), Reason: fmt.Sprintf("subscribe to %s timed out", topic)}
	}
	if err := token.Error(); err != nil {
		return &errs.SubscriptionError{Broker: c.config.BrokerURL(), Reason: fmt.Sprintf("failed to subscribe to topic %s", topic), Err: err}
	}
	return nil
}

// dispatch 将 paho 回调适配为 MessageHandler；处理错误与 panic 都不会中断订阅
func (c *Client) dispatch(handler MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Recovered from panic in MQTT handler",
					zap.String("topic", msg.Topic()),
					zap.Any("panic", r),
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Debug("MQTT message handler returned error",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}
}

// Unsubscribe 取消订阅，最多等待 ConnectTimeout
// 需要更短的期限时由调用方在外层用 ctx 截断
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("unsubscribe timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	if c.State() == StateSubscribed {
		c.setState(StateConnected)
	}
	return nil
}

// Disconnect 断开连接，进入终止状态，不再重连
func (c *Client) Disconnect() {
	c.setState(StateStopped)
	c.client.Disconnect(250) // 250ms等待时间
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// State 当前状态
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s && c.onState != nil {
		c.onState(s)
	}
}

func (c *Client) compareAndSetState(from, to State) {
	if c.state.CompareAndSwap(int32(from), int32(to)) && c.onState != nil {
		c.onState(to)
	}
}
