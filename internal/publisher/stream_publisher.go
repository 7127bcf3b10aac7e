package publisher

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "scenescape-counter/common/redis"
	"scenescape-counter/internal/aggregator"
	"scenescape-counter/internal/models"
)

const publishTimeout = 2 * time.Second

// OccupancyUpdate 发布到 Redis Streams 的单条记录
type OccupancyUpdate struct {
	SceneID       string    `json:"scene_id"`
	SceneName     string    `json:"scene_name"`
	Current       int       `json:"current"`
	Peak          int       `json:"peak"`
	GlobalCurrent int       `json:"global_current"`
	GlobalPeak    int       `json:"global_peak"`
	EventTime     time.Time `json:"event_time"`
	MessageCount  int64     `json:"message_count"`
}

// StreamPublisher 每次聚合更新后把场景占用人数写入 Redis Streams
// 下游可自行消费；发布失败只记录日志，不影响计数
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamPublisher 创建发布器
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// OnUpdate 发布本次更新的场景
func (p *StreamPublisher) OnUpdate(ev *models.SceneEvent, snap aggregator.Snapshot) {
	sc, ok := snap.Scene(ev.SceneID)
	if !ok {
		return
	}

	update := OccupancyUpdate{
		SceneID:       sc.SceneID,
		SceneName:     sc.Name,
		Current:       sc.Current,
		Peak:          sc.Peak,
		GlobalCurrent: snap.GlobalCurrent,
		GlobalPeak:    snap.GlobalPeak,
		EventTime:     ev.Timestamp,
		MessageCount:  snap.MessageCount,
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	streamID, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, update)
	if err != nil {
		p.logger.Warn("Failed to publish occupancy to Redis Streams",
			zap.String("stream", p.stream),
			zap.String("scene_id", sc.SceneID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("Published occupancy to Redis Streams",
		zap.String("scene_id", sc.SceneID),
		zap.String("stream", p.stream),
		zap.String("stream_id", streamID),
	)
}

// Close 关闭 Redis 连接
func (p *StreamPublisher) Close() error {
	return rediscommon.Close(p.client)
}
