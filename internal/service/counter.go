package service

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	commonconfig "scenescape-counter/common/config"
	mqttcommon "scenescape-counter/common/mqtt"
	rediscommon "scenescape-counter/common/redis"
	"scenescape-counter/internal/aggregator"
	"scenescape-counter/internal/client"
	"scenescape-counter/internal/config"
	"scenescape-counter/internal/consumer"
	"scenescape-counter/internal/metrics"
	"scenescape-counter/internal/models"
	"scenescape-counter/internal/publisher"
	"scenescape-counter/internal/reporter"
)

// Broker 已连接的 MQTT 会话
type Broker interface {
	consumer.Broker
	Disconnect()
}

// BrokerDialer 连接 broker，失败返回 *errs.SubscriptionError
type BrokerDialer func(cfg *commonconfig.MQTTConfig, logger *zap.Logger, opts ...mqttcommon.Option) (Broker, error)

// SceneDirectory 场景目录
type SceneDirectory interface {
	ListScenes(ctx context.Context) ([]models.SceneSummary, error)
}

// Option 服务可选项
type Option func(*CounterService)

// WithBrokerDialer 替换 MQTT 连接方式
func WithBrokerDialer(dial BrokerDialer) Option {
	return func(s *CounterService) { s.dial = dial }
}

// WithSceneDirectory 替换场景目录来源
func WithSceneDirectory(dir SceneDirectory) Option {
	return func(s *CounterService) { s.directory = dir }
}

// WithOutput 控制台输出目标，默认 os.Stdout
func WithOutput(w io.Writer) Option {
	return func(s *CounterService) { s.out = w }
}

func dialMQTT(cfg *commonconfig.MQTTConfig, logger *zap.Logger, opts ...mqttcommon.Option) (Broker, error) {
	c, err := mqttcommon.NewClient(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CounterService 人数统计服务
type CounterService struct {
	config *config.Config
	logger *zap.Logger
	out    io.Writer

	dial      BrokerDialer
	directory SceneDirectory

	aggregator *aggregator.Aggregator
	reporter   *reporter.Reporter
	metrics    *metrics.Metrics
	metricsSrv *metrics.Server
	publisher  *publisher.StreamPublisher

	broker   Broker
	consumer *consumer.MQTTConsumer
}

// NewCounterService 创建人数统计服务，不做任何网络调用
func NewCounterService(cfg *config.Config, logger *zap.Logger, opts ...Option) *CounterService {
	s := &CounterService{
		config: cfg,
		logger: logger,
		out:    os.Stdout,
		dial:   dialMQTT,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.directory == nil {
		s.directory = client.NewSceneClient(cfg.REST.URL, cfg.REST.Token, cfg.REST.VerifySSL, cfg.REST.Timeout, logger)
	}

	s.aggregator = aggregator.New(cfg.Counter.TargetCategory)
	s.reporter = reporter.New(s.out, reporter.Options{
		Interactive: cfg.Counter.Interactive,
		Interval:    cfg.Counter.SummaryInterval,
		StatusEvery: cfg.Counter.StatusEvery,
		SummaryXLSX: cfg.Counter.SummaryXLSX,
		Category:    s.aggregator.Category(),
	}, logger)

	if cfg.Metrics.Addr != "" {
		s.metrics = metrics.NewMetrics()
		s.metricsSrv = metrics.NewServer(cfg.Metrics.Addr, s.metrics, logger)
	}

	return s
}

// Start 拉取场景目录、连接 broker 并订阅 live 主题
// 任一步失败都直接返回，由调用方退出进程
func (s *CounterService) Start(ctx context.Context) error {
	s.logger.Info("Fetching scene directory", zap.String("url", s.config.REST.URL))
	scenes, err := s.directory.ListScenes(ctx)
	if err != nil {
		return err
	}
	s.aggregator.SetDirectory(scenes)
	for _, sc := range scenes {
		s.logger.Info("Scene available",
			zap.String("scene_id", sc.ID),
			zap.String("name", sc.DisplayName()),
			zap.String("status", sc.Status),
		)
	}
	s.logger.Info("Scene directory loaded", zap.Int("scenes", len(scenes)))

	s.logger.Info("Connecting to MQTT broker",
		zap.String("broker", s.config.MQTT.BrokerURL()),
		zap.String("client_id", s.config.MQTT.ClientID),
	)
	broker, err := s.dial(&s.config.MQTT, s.logger,
		mqttcommon.WithStateListener(s.metrics.SetBrokerState),
		mqttcommon.WithReconnectListener(s.metrics.ReconnectAttempt),
	)
	if err != nil {
		return err
	}
	s.broker = broker
	s.logger.Info("Connected to MQTT broker", zap.String("broker", s.config.MQTT.BrokerURL()))

	observers := []consumer.Observer{s.reporter}
	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}
	if p := s.newPublisher(ctx); p != nil {
		s.publisher = p
		observers = append(observers, p)
	}

	s.consumer = consumer.NewMQTTConsumer(s.config.Counter.Topic, broker, s.aggregator, s.metrics, s.logger, observers...)
	if err := s.consumer.Start(ctx); err != nil {
		broker.Disconnect()
		s.broker = nil
		return err
	}

	if s.metricsSrv != nil {
		s.metricsSrv.Start()
	}

	s.reporter.PrintBanner()
	return nil
}

// newPublisher Redis 可用时创建 Streams 发布器；不可用只记录告警
func (s *CounterService) newPublisher(ctx context.Context) *publisher.StreamPublisher {
	if !s.config.Redis.Enabled() {
		return nil
	}

	rdb := rediscommon.NewRedisClient(&s.config.Redis)
	if err := rediscommon.Ping(ctx, rdb); err != nil {
		s.logger.Warn("Redis unavailable, occupancy stream disabled",
			zap.String("addr", s.config.Redis.Addr),
			zap.Error(err),
		)
		rediscommon.Close(rdb)
		return nil
	}

	s.logger.Info("Publishing occupancy to Redis Streams",
		zap.String("addr", s.config.Redis.Addr),
		zap.String("stream", s.config.Publisher.Stream),
	)
	return publisher.NewStreamPublisher(rdb, s.config.Publisher.Stream, s.config.Publisher.MaxLen, s.logger)
}

// Stop 停止接收、断开连接并输出峰值汇总
func (s *CounterService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping counter service")

	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	if s.broker != nil {
		s.broker.Disconnect()
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("Error closing Redis", zap.Error(err))
		}
	}

	if s.metricsSrv != nil {
		if err := s.metricsSrv.Stop(ctx); err != nil {
			s.logger.Warn("Error stopping metrics endpoint", zap.Error(err))
		}
	}

	if err := s.reporter.Final(s.aggregator.Snapshot()); err != nil {
		return fmt.Errorf("failed to write peak summary: %w", err)
	}

	s.logger.Info("Counter service stopped")
	return nil
}

// Snapshot 当前聚合状态
func (s *CounterService) Snapshot() aggregator.Snapshot {
	return s.aggregator.Snapshot()
}
