package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"scenescape-counter/internal/errs"
	"scenescape-counter/internal/models"
)

const scenesPath = "/scenes"

// SceneClient SceneScape REST API 客户端
// 启动时调用一次，用于确认 API 可达、Token 有效并获取场景名称
type SceneClient struct {
	httpClient *resty.Client
	baseURL    string
	logger     *zap.Logger
}

// NewSceneClient 创建场景目录客户端；不重试
func NewSceneClient(baseURL, token string, verifySSL bool, timeout time.Duration, logger *zap.Logger) *SceneClient {
	baseURL = strings.TrimRight(baseURL, "/")

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetLogger(logger.Sugar()).
		SetHeader("Authorization", "Token "+token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if !verifySSL {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // SCENESCAPE_VERIFY_SSL=false
	}

	return &SceneClient{
		httpClient: client,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// ListScenes GET /scenes
// 网络错误、非 2xx、响应无法解析均返回 *errs.ConnectivityError
func (c *SceneClient) ListScenes(ctx context.Context) ([]models.SceneSummary, error) {
	url := c.baseURL + scenesPath
	c.logger.Debug("Fetching scene information", zap.String("url", url))

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(scenesPath)
	if err != nil {
		return nil, &errs.ConnectivityError{URL: url, Reason: "request failed", Err: err}
	}

	if !resp.IsSuccess() {
		return nil, &errs.ConnectivityError{URL: url, StatusCode: resp.StatusCode(), Reason: resp.Status()}
	}

	var body models.SceneListResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, &errs.ConnectivityError{URL: url, StatusCode: resp.StatusCode(), Reason: "invalid response body", Err: err}
	}
	if body.Results == nil {
		return nil, &errs.ConnectivityError{URL: url, StatusCode: resp.StatusCode(), Reason: "invalid response format: missing 'results'"}
	}

	scenes := make([]models.SceneSummary, 0, len(*body.Results))
	for _, s := range *body.Results {
		if s.ID == "" {
			c.logger.Warn("Skipping scene without uid", zap.String("name", s.Name))
			continue
		}
		scenes = append(scenes, s)
		c.logger.Info("Found scene",
			zap.String("scene_name", s.DisplayName()),
			zap.String("scene_id", s.ID),
			zap.String("status", s.Status),
		)
	}

	if body.Next != nil && *body.Next != "" {
		c.logger.Debug("Scene listing is paginated, only the first page is used",
			zap.Int("count", body.Count),
			zap.Int("received", len(scenes)),
		)
	}

	return scenes, nil
}
