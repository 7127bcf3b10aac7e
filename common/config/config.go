package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled Addr 为空时不连接 Redis
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	QoS      byte

	// TLS 传输加密；SceneScape 在 1883 端口上同样使用 TLS
	TLS bool
	// InsecureSkipVerify 跳过证书校验（自签名证书部署）。生产环境应设为 false
	InsecureSkipVerify bool

	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	MaxReconnectInterval time.Duration
}

// BrokerURL 构造 paho 使用的 broker 地址
func (c *MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// InvalidValueError 环境变量值无法解析
type InvalidValueError struct {
	Key    string
	Value  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Key, e.Reason)
}

// LoadFromEnv 从环境变量加载Redis配置
// 已设置但无法解析的值返回 *InvalidValueError
func (c *RedisConfig) LoadFromEnv(prefix string) error {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		v, err := strconv.Atoi(db)
		if err != nil || v < 0 {
			return &InvalidValueError{Key: prefix + "_DB", Value: db, Reason: "expected a non-negative integer"}
		}
		c.DB = v
	}
	return nil
}

// LoadFromEnv 从环境变量加载MQTT配置
// 已设置但无法解析的值返回 *InvalidValueError，不回退到默认值
func (c *MQTTConfig) LoadFromEnv(prefix string) error {
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv(prefix + "_PORT"); port != "" {
		v, err := strconv.Atoi(port)
		if err != nil {
			return &InvalidValueError{Key: prefix + "_PORT", Value: port, Reason: "expected an integer"}
		}
		c.Port = v
	}
	if clientID := os.Getenv(prefix + "_CLIENT_ID"); clientID != "" {
		c.ClientID = clientID
	}
	if username := os.Getenv(prefix + "_USER"); username != "" {
		c.Username = username
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if v := os.Getenv(prefix + "_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &InvalidValueError{Key: prefix + "_TLS", Value: v, Reason: "expected a boolean"}
		}
		c.TLS = b
	}
	if v := os.Getenv(prefix + "_INSECURE_SKIP_VERIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &InvalidValueError{Key: prefix + "_INSECURE_SKIP_VERIFY", Value: v, Reason: "expected a boolean"}
		}
		c.InsecureSkipVerify = b
	}
	if v := os.Getenv(prefix + "_RECONNECT_MAX"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return &InvalidValueError{Key: prefix + "_RECONNECT_MAX", Value: v, Reason: "expected a positive number of seconds"}
		}
		c.MaxReconnectInterval = time.Duration(secs) * time.Second
	}
	return nil
}
