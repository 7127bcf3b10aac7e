package models

// SceneSummary 场景目录条目（REST /scenes）
type SceneSummary struct {
	ID     string `json:"uid"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// DisplayName 场景名称为空时使用 Scene-<uid 前 8 位>
func (s SceneSummary) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return FallbackSceneName(s.ID)
}

// SceneListResponse 场景列表响应（分页格式，仅使用第一页）
type SceneListResponse struct {
	Count   int             `json:"count"`
	Next    *string         `json:"next"`
	Results *[]SceneSummary `json:"results"`
}

// FallbackSceneName 场景名未知时的显示名
func FallbackSceneName(sceneID string) string {
	short := sceneID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Scene-" + short
}
