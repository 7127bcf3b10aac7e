package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	mqttcommon "scenescape-counter/common/mqtt"
	"scenescape-counter/internal/aggregator"
	"scenescape-counter/internal/models"
)

const namespace = "scenescape_counter"

// Metrics 计数器与占用人数指标
// 所有方法对 nil 接收者安全，未启用指标时直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived *prometheus.CounterVec
	SceneOccupancy   *prometheus.GaugeVec
	ScenePeak        *prometheus.GaugeVec
	GlobalOccupancy  prometheus.Gauge
	GlobalPeak       prometheus.Gauge
	BrokerState      prometheus.Gauge
	Reconnects       prometheus.Counter
}

// NewMetrics 创建指标并注册到独立 registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Live event messages received, by outcome (processed, dropped)",
			},
			[]string{"status"},
		),

		SceneOccupancy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scene",
				Name:      "occupancy",
				Help:      "Current number of target-category entities per scene",
			},
			[]string{"scene_id", "scene_name"},
		),

		ScenePeak: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scene",
				Name:      "occupancy_peak",
				Help:      "Peak number of target-category entities per scene since start",
			},
			[]string{"scene_id", "scene_name"},
		),

		GlobalOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "occupancy",
			Help:      "Current number of target-category entities across all scenes",
		}),

		GlobalPeak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "occupancy_peak",
			Help:      "Peak number of target-category entities across all scenes since start",
		}),

		BrokerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "state",
			Help:      "MQTT connection state (0=disconnected, 1=connected, 2=subscribed, 3=stopped)",
		}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "reconnect_attempts_total",
			Help:      "MQTT reconnect attempts",
		}),
	}

	m.registry.MustRegister(
		m.MessagesReceived,
		m.SceneOccupancy,
		m.ScenePeak,
		m.GlobalOccupancy,
		m.GlobalPeak,
		m.BrokerState,
		m.Reconnects,
	)
	return m
}

// OnUpdate 聚合更新后刷新占用人数指标
func (m *Metrics) OnUpdate(_ *models.SceneEvent, snap aggregator.Snapshot) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues("processed").Inc()
	for _, sc := range snap.Scenes {
		m.SceneOccupancy.WithLabelValues(sc.SceneID, sc.Name).Set(float64(sc.Current))
		m.ScenePeak.WithLabelValues(sc.SceneID, sc.Name).Set(float64(sc.Peak))
	}
	m.GlobalOccupancy.Set(float64(snap.GlobalCurrent))
	m.GlobalPeak.Set(float64(snap.GlobalPeak))
}

// PayloadDropped 记录被丢弃的消息
func (m *Metrics) PayloadDropped() {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues("dropped").Inc()
}

// SetBrokerState 记录 MQTT 连接状态
func (m *Metrics) SetBrokerState(s mqttcommon.State) {
	if m == nil {
		return
	}
	m.BrokerState.Set(float64(s))
}

// ReconnectAttempt 记录重连尝试
func (m *Metrics) ReconnectAttempt(int) {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server 指标 HTTP 服务
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer 创建指标服务，监听 addr 的 /metrics
func NewServer(addr string, m *Metrics, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start 后台启动监听
func (s *Server) Start() {
	go func() {
		s.logger.Info("Metrics endpoint listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()
}

// Stop 关闭监听
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
