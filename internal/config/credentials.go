package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"scenescape-counter/internal/errs"
)

// Credentials MQTT 凭证文件内容
type Credentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// LoadCredentials 读取凭证文件
// 容器路径 /app/... 在本地不存在时退回相对路径
func LoadCredentials(path string) (*Credentials, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && strings.HasPrefix(path, "/app/") {
		path = strings.TrimPrefix(path, "/app/")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &errs.ConfigurationError{Key: EnvAuthFile, Reason: "auth file not found: " + path}
		}
		return nil, &errs.ConfigurationError{Key: EnvAuthFile, Reason: err.Error()}
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, &errs.ConfigurationError{Key: EnvAuthFile, Reason: "invalid JSON in auth file " + path}
	}
	if creds.User == "" || creds.Password == "" {
		return nil, &errs.ConfigurationError{Key: EnvAuthFile, Reason: "missing user or password in auth file " + path}
	}

	return &creds, nil
}
