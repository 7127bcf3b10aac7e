package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"scenescape-counter/common/config"
	"scenescape-counter/internal/errs"
)

// 必填环境变量
const (
	EnvRESTURL  = "SCENESCAPE_REST_URL"
	EnvAPIToken = "SCENESCAPE_API_TOKEN"
	EnvMQTTHost = "SCENESCAPE_MQTT_HOST"
	EnvAuthFile = "SCENESCAPE_AUTH_FILE"
)

// Config 人数统计服务配置
type Config struct {
	MQTT  config.MQTTConfig
	Redis config.RedisConfig

	// SceneScape REST API
	REST struct {
		URL       string
		Token     string
		VerifySSL bool
		Timeout   time.Duration
	}

	Counter struct {
		Topic          string // live 主题，如 "scenescape/regulated/scene/+"
		TargetCategory string
		AuthFile       string // MQTT 凭证文件 {"user": "...", "password": "..."}

		// Interactive stdout 是终端时单行刷新
		Interactive     bool
		SummaryInterval time.Duration
		StatusEvery     int // 每 N 条消息输出一次峰值状态，0 关闭
		ShutdownTimeout time.Duration
		SummaryXLSX     string // 退出时导出 Excel，空则不导出
	}

	// 占用人数快照发布到 Redis Streams（Redis.Addr 为空时关闭）
	Publisher struct {
		Stream string
		MaxLen int64
	}

	Metrics struct {
		Addr string // Prometheus 监听地址，空则关闭
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
// 先读取 .env 文件（不覆盖已有环境变量），再读取环境变量
// 缺失或无法解析的值返回 *errs.ConfigurationError
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("SCENESCAPE_ENV_FILE", ".env.local")); err != nil {
		return nil, &errs.ConfigurationError{Key: "SCENESCAPE_ENV_FILE", Reason: err.Error()}
	}

	cfg := &Config{}
	var err error

	cfg.REST.URL = strings.TrimRight(getEnv(EnvRESTURL, ""), "/")
	cfg.REST.Token = getEnv(EnvAPIToken, "")
	if cfg.REST.VerifySSL, err = getEnvBool("SCENESCAPE_VERIFY_SSL", false); err != nil {
		return nil, err
	}
	if cfg.REST.Timeout, err = getEnvSeconds("SCENESCAPE_REST_TIMEOUT", 30); err != nil {
		return nil, err
	}

	cfg.MQTT.Port = 1883
	cfg.MQTT.ClientID = "scenescape-counter-" + uuid.NewString()
	cfg.MQTT.TLS = true
	cfg.MQTT.InsecureSkipVerify = true
	cfg.MQTT.ConnectTimeout = 10 * time.Second
	cfg.MQTT.KeepAlive = 60 * time.Second
	cfg.MQTT.MaxReconnectInterval = 30 * time.Second
	if err := cfg.MQTT.LoadFromEnv("SCENESCAPE_MQTT"); err != nil {
		return nil, invalidValue(err)
	}

	if err := cfg.Redis.LoadFromEnv("REDIS"); err != nil {
		return nil, invalidValue(err)
	}
	cfg.Publisher.Stream = getEnv("OCCUPANCY_STREAM", "scenescape:occupancy:stream")
	maxLen, err := getEnvInt("OCCUPANCY_STREAM_MAXLEN", 10000)
	if err != nil {
		return nil, err
	}
	cfg.Publisher.MaxLen = int64(maxLen)

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", "")

	cfg.Counter.Topic = getEnv("SCENESCAPE_MQTT_TOPIC", "scenescape/regulated/scene/+")
	cfg.Counter.TargetCategory = getEnv("SCENESCAPE_TARGET_CATEGORY", "person")
	cfg.Counter.AuthFile = getEnv(EnvAuthFile, "secrets/controller.auth")

	// 容器内或非终端输出时降低刷新频率，逐行输出
	inContainer := os.Getenv("DOCKER_CONTAINER") != ""
	cfg.Counter.Interactive = !inContainer && isatty.IsTerminal(os.Stdout.Fd())
	defaultInterval := 3
	if cfg.Counter.Interactive {
		defaultInterval = 1
	}
	if cfg.Counter.SummaryInterval, err = getEnvSeconds("SCENESCAPE_SUMMARY_INTERVAL", defaultInterval); err != nil {
		return nil, err
	}
	if cfg.Counter.StatusEvery, err = getEnvInt("SCENESCAPE_STATUS_EVERY", 150); err != nil {
		return nil, err
	}
	if cfg.Counter.ShutdownTimeout, err = getEnvSeconds("SCENESCAPE_SHUTDOWN_TIMEOUT", 5); err != nil {
		return nil, err
	}
	cfg.Counter.SummaryXLSX = getEnv("SCENESCAPE_SUMMARY_XLSX", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "console")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// 显式用户名/密码优先，否则读取凭证文件
	if cfg.MQTT.Username == "" || cfg.MQTT.Password == "" {
		creds, err := LoadCredentials(cfg.Counter.AuthFile)
		if err != nil {
			return nil, err
		}
		cfg.MQTT.Username = creds.User
		cfg.MQTT.Password = creds.Password
	}

	return cfg, nil
}

// invalidValue 把共享配置的解析错误转换为 ConfigurationError
func invalidValue(err error) error {
	var invalid *config.InvalidValueError
	if errors.As(err, &invalid) {
		return &errs.ConfigurationError{Key: invalid.Key, Reason: fmt.Sprintf("invalid value %q: %s", invalid.Value, invalid.Reason)}
	}
	return err
}

func (c *Config) validate() error {
	var missing []string
	if c.REST.URL == "" {
		missing = append(missing, EnvRESTURL)
	}
	if c.REST.Token == "" {
		missing = append(missing, EnvAPIToken)
	}
	if c.MQTT.Host == "" {
		missing = append(missing, EnvMQTTHost)
	}
	if len(missing) > 0 {
		return &errs.ConfigurationError{
			Key:    strings.Join(missing, ", "),
			Reason: "missing required environment variables",
		}
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return &errs.ConfigurationError{Key: "SCENESCAPE_MQTT_PORT", Reason: fmt.Sprintf("invalid port %d", c.MQTT.Port)}
	}
	return nil
}

// loadDotEnv 读取 .env 文件，文件不存在时忽略
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 未设置时返回默认值；已设置必须是非负整数
func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &errs.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid value %q: expected a non-negative integer", raw)}
	}
	return v, nil
}

func getEnvSeconds(key string, defaultSeconds int) (time.Duration, error) {
	secs, err := getEnvInt(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &errs.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid value %q: expected a boolean", raw)}
	}
	return v, nil
}
