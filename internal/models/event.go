package models

import (
	"encoding/json"
	"fmt"
	"time"

	"scenescape-counter/internal/errs"
)

// Vector3 三维向量（位置 / 速度）
type Vector3 [3]float64

// TrackedEntity 事件中的单个跟踪对象
// 每条消息携带完整对象列表，不跨消息跟踪身份
type TrackedEntity struct {
	Category   string
	Type       string
	Confidence float64
	ID         string
	Position   Vector3
	Velocity   Vector3
	Sources    []string
	FirstSeen  time.Time
}

// Matches category 或 type 任一等于目标类别即匹配
func (e TrackedEntity) Matches(category string) bool {
	return e.Category == category || e.Type == category
}

// SceneEvent 一条 live 消息对应一个场景事件
type SceneEvent struct {
	Timestamp   time.Time
	SceneID     string
	SceneName   string
	SceneRate   float64
	SourceRates map[string]float64
	Entities    []TrackedEntity
}

// CountCategory 统计匹配目标类别的对象数
func (ev *SceneEvent) CountCategory(category string) int {
	n := 0
	for _, e := range ev.Entities {
		if e.Matches(category) {
			n++
		}
	}
	return n
}

// rawSceneEvent 线上 JSON 格式；指针字段用于区分缺失与零值
type rawSceneEvent struct {
	Timestamp *string            `json:"timestamp"`
	ID        *string            `json:"id"`
	Name      string             `json:"name"`
	SceneRate float64            `json:"scene_rate"`
	Rate      map[string]float64 `json:"rate"`
	Objects   *[]rawEntity       `json:"objects"`
}

type rawEntity struct {
	Category    string    `json:"category"`
	Type        string    `json:"type"`
	Confidence  *float64  `json:"confidence"`
	ID          string    `json:"id"`
	Translation []float64 `json:"translation"`
	Velocity    []float64 `json:"velocity"`
	Visibility  []string  `json:"visibility"`
	FirstSeen   *string   `json:"first_seen"`
}

// ParseSceneEvent 解析 live 消息
// 任何格式问题都返回 *errs.PayloadError
func ParseSceneEvent(topic string, payload []byte) (*SceneEvent, error) {
	var raw rawSceneEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &errs.PayloadError{Topic: topic, Reason: "invalid JSON", Err: err}
	}

	if raw.ID == nil || *raw.ID == "" {
		return nil, &errs.PayloadError{Topic: topic, Reason: "missing scene 'id' field"}
	}
	if raw.Objects == nil {
		return nil, &errs.PayloadError{Topic: topic, Reason: "missing 'objects' list"}
	}

	ev := &SceneEvent{
		SceneID:     *raw.ID,
		SceneName:   raw.Name,
		SceneRate:   raw.SceneRate,
		SourceRates: raw.Rate,
		Entities:    make([]TrackedEntity, 0, len(*raw.Objects)),
	}

	if raw.Timestamp != nil {
		ts, err := parseTimestamp(*raw.Timestamp)
		if err != nil {
			return nil, &errs.PayloadError{Topic: topic, Reason: "invalid 'timestamp'", Err: err}
		}
		ev.Timestamp = ts
	}

	for i, obj := range *raw.Objects {
		entity, err := obj.toEntity()
		if err != nil {
			return nil, &errs.PayloadError{Topic: topic, Reason: fmt.Sprintf("invalid object at index %d", i), Err: err}
		}
		ev.Entities = append(ev.Entities, entity)
	}

	return ev, nil
}

func (r rawEntity) toEntity() (TrackedEntity, error) {
	e := TrackedEntity{
		Category: r.Category,
		Type:     r.Type,
		ID:       r.ID,
		Sources:  r.Visibility,
	}

	if r.Confidence != nil {
		if *r.Confidence < 0 || *r.Confidence > 1 {
			return e, fmt.Errorf("confidence %v out of range [0, 1]", *r.Confidence)
		}
		e.Confidence = *r.Confidence
	}

	var err error
	if e.Position, err = toVector3("translation", r.Translation); err != nil {
		return e, err
	}
	if e.Velocity, err = toVector3("velocity", r.Velocity); err != nil {
		return e, err
	}

	if r.FirstSeen != nil {
		if e.FirstSeen, err = parseTimestamp(*r.FirstSeen); err != nil {
			return e, fmt.Errorf("first_seen: %w", err)
		}
	}

	return e, nil
}

func toVector3(field string, values []float64) (Vector3, error) {
	var v Vector3
	if values == nil {
		return v, nil
	}
	if len(values) != 3 {
		return v, fmt.Errorf("%s must have 3 elements, got %d", field, len(values))
	}
	copy(v[:], values)
	return v, nil
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
