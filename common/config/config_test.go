package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTConfig_BrokerURL(t *testing.T) {
	cfg := MQTTConfig{Host: "broker.scenescape.intel.com", Port: 1883, TLS: true}
	assert.Equal(t, "ssl://broker.scenescape.intel.com:1883", cfg.BrokerURL())

	cfg.TLS = false
	assert.Equal(t, "tcp://broker.scenescape.intel.com:1883", cfg.BrokerURL())
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TEST_MQTT_HOST", "10.0.0.5")
	t.Setenv("TEST_MQTT_PORT", "8883")
	t.Setenv("TEST_MQTT_USER", "counter")
	t.Setenv("TEST_MQTT_PASSWORD", "secret")
	t.Setenv("TEST_MQTT_TLS", "false")
	t.Setenv("TEST_MQTT_INSECURE_SKIP_VERIFY", "false")
	t.Setenv("TEST_MQTT_RECONNECT_MAX", "12")

	cfg := MQTTConfig{Port: 1883, TLS: true, InsecureSkipVerify: true}
	require.NoError(t, cfg.LoadFromEnv("TEST_MQTT"))

	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 8883, cfg.Port)
	assert.Equal(t, "counter", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.False(t, cfg.TLS)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, 12*time.Second, cfg.MaxReconnectInterval)
}

func TestMQTTConfig_LoadFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port", "TEST_MQTT_PORT", "88x3"},
		{"tls", "TEST_MQTT_TLS", "sometimes"},
		{"insecure skip verify", "TEST_MQTT_INSECURE_SKIP_VERIFY", "no"},
		{"reconnect max not a number", "TEST_MQTT_RECONNECT_MAX", "soon"},
		{"reconnect max zero", "TEST_MQTT_RECONNECT_MAX", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg := MQTTConfig{Port: 1883, TLS: true, InsecureSkipVerify: true}
			err := cfg.LoadFromEnv("TEST_MQTT")

			var invalid *InvalidValueError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.key, invalid.Key)
			assert.Equal(t, tt.value, invalid.Value)
			assert.Equal(t, 1883, cfg.Port)
			assert.True(t, cfg.InsecureSkipVerify)
		})
	}
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	cfg := RedisConfig{}
	assert.False(t, cfg.Enabled())

	t.Setenv("TEST_REDIS_ADDR", "localhost:6380")
	t.Setenv("TEST_REDIS_DB", "2")
	require.NoError(t, cfg.LoadFromEnv("TEST_REDIS"))

	assert.True(t, cfg.Enabled())
	assert.Equal(t, "localhost:6380", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)

	t.Setenv("TEST_REDIS_DB", "two")
	var invalid *InvalidValueError
	require.ErrorAs(t, cfg.LoadFromEnv("TEST_REDIS"), &invalid)
	assert.Equal(t, "TEST_REDIS_DB", invalid.Key)
}
