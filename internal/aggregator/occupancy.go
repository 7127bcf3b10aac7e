package aggregator

import (
	"sync"
	"time"

	"scenescape-counter/internal/models"
)

// DefaultTargetCategory 默认统计类别
const DefaultTargetCategory = "person"

// SceneOccupancy 单个场景的当前人数与峰值
type SceneOccupancy struct {
	SceneID string `json:"scene_id"`
	Name    string `json:"scene_name"`
	Current int    `json:"current"`
	Peak    int    `json:"peak"`
}

// Snapshot 聚合状态的只读副本
// Scenes 按首次出现顺序排列
type Snapshot struct {
	Scenes        []SceneOccupancy `json:"scenes"`
	GlobalCurrent int              `json:"global_current"`
	GlobalPeak    int              `json:"global_peak"`
	MessageCount  int64            `json:"message_count"`
	LastUpdate    time.Time        `json:"last_update"`
}

// Scene 按 ID 查找场景
func (s Snapshot) Scene(sceneID string) (SceneOccupancy, bool) {
	for _, sc := range s.Scenes {
		if sc.SceneID == sceneID {
			return sc, true
		}
	}
	return SceneOccupancy{}, false
}

// Aggregator 占用人数聚合器，独占 OccupancyState
//
// 全局峰值策略：历史上观测到的全局当前人数的最大值
// （而不是各场景峰值之和，各场景峰值可能出现在不同时刻）。
type Aggregator struct {
	category string
	now      func() time.Time

	// 消息按到达顺序串行处理；锁只用于关闭阶段读取快照
	mu            sync.RWMutex
	scenes        map[string]*SceneOccupancy
	order         []string
	directory     map[string]string
	globalCurrent int
	globalPeak    int
	messageCount  int64
	lastUpdate    time.Time
}

// New 创建聚合器；category 为空时使用 DefaultTargetCategory
func New(category string) *Aggregator {
	if category == "" {
		category = DefaultTargetCategory
	}
	return &Aggregator{
		category:  category,
		now:       time.Now,
		scenes:    make(map[string]*SceneOccupancy),
		directory: make(map[string]string),
	}
}

// Category 目标类别
func (a *Aggregator) Category() string {
	return a.category
}

// SetDirectory 记录目录中的场景名称，用于事件未携带名称时显示
func (a *Aggregator) SetDirectory(scenes []models.SceneSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range scenes {
		if s.Name != "" {
			a.directory[s.ID] = s.Name
		}
	}
}

// Apply 处理一条场景事件并返回更新后的快照
func (a *Aggregator) Apply(ev *models.SceneEvent) Snapshot {
	count := ev.CountCategory(a.category)

	a.mu.Lock()
	defer a.mu.Unlock()

	sc, ok := a.scenes[ev.SceneID]
	if !ok {
		sc = &SceneOccupancy{SceneID: ev.SceneID}
		a.scenes[ev.SceneID] = sc
		a.order = append(a.order, ev.SceneID)
	}
	sc.Name = a.resolveName(ev)

	a.globalCurrent += count - sc.Current
	sc.Current = count
	if sc.Current > sc.Peak {
		sc.Peak = sc.Current
	}
	if a.globalCurrent > a.globalPeak {
		a.globalPeak = a.globalCurrent
	}

	a.messageCount++
	a.lastUpdate = a.now()

	return a.snapshotLocked()
}

// Snapshot 当前状态快照
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Scenes:        make([]SceneOccupancy, 0, len(a.order)),
		GlobalCurrent: a.globalCurrent,
		GlobalPeak:    a.globalPeak,
		MessageCount:  a.messageCount,
		LastUpdate:    a.lastUpdate,
	}
	for _, id := range a.order {
		snap.Scenes = append(snap.Scenes, *a.scenes[id])
	}
	return snap
}

// resolveName 事件名称 > 目录名称 > 上次已知名称 > Scene-<id>
func (a *Aggregator) resolveName(ev *models.SceneEvent) string {
	if ev.SceneName != "" {
		return ev.SceneName
	}
	if name, ok := a.directory[ev.SceneID]; ok {
		return name
	}
	if sc, ok := a.scenes[ev.SceneID]; ok && sc.Name != "" {
		return sc.Name
	}
	return models.FallbackSceneName(ev.SceneID)
}
