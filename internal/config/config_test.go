package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenescape-counter/internal/errs"
)

var knownEnv = []string{
	"SCENESCAPE_REST_URL", "SCENESCAPE_API_TOKEN", "SCENESCAPE_VERIFY_SSL", "SCENESCAPE_REST_TIMEOUT",
	"SCENESCAPE_MQTT_HOST", "SCENESCAPE_MQTT_PORT", "SCENESCAPE_MQTT_USER", "SCENESCAPE_MQTT_PASSWORD",
	"SCENESCAPE_MQTT_CLIENT_ID", "SCENESCAPE_MQTT_TLS", "SCENESCAPE_MQTT_INSECURE_SKIP_VERIFY",
	"SCENESCAPE_MQTT_RECONNECT_MAX", "SCENESCAPE_MQTT_TOPIC", "SCENESCAPE_AUTH_FILE",
	"SCENESCAPE_TARGET_CATEGORY", "SCENESCAPE_SUMMARY_INTERVAL", "SCENESCAPE_STATUS_EVERY",
	"SCENESCAPE_SHUTDOWN_TIMEOUT", "SCENESCAPE_SUMMARY_XLSX",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "OCCUPANCY_STREAM", "OCCUPANCY_STREAM_MAXLEN",
	"METRICS_ADDR", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv 空值等同于未设置；同时指向不存在的 .env 文件
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range knownEnv {
		t.Setenv(key, "")
	}
	t.Setenv("SCENESCAPE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DOCKER_CONTAINER", "1")
}

func writeAuthFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "controller.auth")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SCENESCAPE_REST_URL", "https://scenescape.local/api/v1/")
	t.Setenv("SCENESCAPE_API_TOKEN", "f1e2d3c4")
	t.Setenv("SCENESCAPE_MQTT_HOST", "scenescape.local")
	t.Setenv("SCENESCAPE_AUTH_FILE", writeAuthFile(t, t.TempDir(), `{"user": "controller", "password": "pw"}`))
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://scenescape.local/api/v1", cfg.REST.URL)
	assert.False(t, cfg.REST.VerifySSL)
	assert.Equal(t, 30*time.Second, cfg.REST.Timeout)

	assert.Equal(t, "scenescape.local", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.True(t, cfg.MQTT.TLS)
	assert.True(t, cfg.MQTT.InsecureSkipVerify)
	assert.True(t, strings.HasPrefix(cfg.MQTT.ClientID, "scenescape-counter-"))
	assert.Equal(t, "controller", cfg.MQTT.Username)
	assert.Equal(t, "pw", cfg.MQTT.Password)
	assert.Equal(t, 30*time.Second, cfg.MQTT.MaxReconnectInterval)

	assert.Equal(t, "scenescape/regulated/scene/+", cfg.Counter.Topic)
	assert.Equal(t, "person", cfg.Counter.TargetCategory)
	assert.False(t, cfg.Counter.Interactive)
	assert.Equal(t, 3*time.Second, cfg.Counter.SummaryInterval)
	assert.Equal(t, 150, cfg.Counter.StatusEvery)
	assert.Equal(t, 5*time.Second, cfg.Counter.ShutdownTimeout)
	assert.Empty(t, cfg.Counter.SummaryXLSX)

	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "scenescape:occupancy:stream", cfg.Publisher.Stream)
	assert.Equal(t, int64(10000), cfg.Publisher.MaxLen)
	assert.Empty(t, cfg.Metrics.Addr)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("SCENESCAPE_VERIFY_SSL", "true")
	t.Setenv("SCENESCAPE_MQTT_PORT", "8883")
	t.Setenv("SCENESCAPE_MQTT_INSECURE_SKIP_VERIFY", "false")
	t.Setenv("SCENESCAPE_MQTT_USER", "explicit")
	t.Setenv("SCENESCAPE_MQTT_PASSWORD", "explicit-pw")
	t.Setenv("SCENESCAPE_AUTH_FILE", "/does/not/exist.auth")
	t.Setenv("SCENESCAPE_TARGET_CATEGORY", "car")
	t.Setenv("SCENESCAPE_SUMMARY_INTERVAL", "0")
	t.Setenv("SCENESCAPE_STATUS_EVERY", "0")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("METRICS_ADDR", ":9102")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.REST.VerifySSL)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.False(t, cfg.MQTT.InsecureSkipVerify)
	// 显式凭证优先，不读取凭证文件
	assert.Equal(t, "explicit", cfg.MQTT.Username)
	assert.Equal(t, "explicit-pw", cfg.MQTT.Password)
	assert.Equal(t, "car", cfg.Counter.TargetCategory)
	assert.Equal(t, time.Duration(0), cfg.Counter.SummaryInterval)
	assert.Equal(t, 0, cfg.Counter.StatusEvery)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCENESCAPE_API_TOKEN", "f1e2d3c4")

	cfg, err := Load()
	assert.Nil(t, cfg)

	var cerr *errs.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "SCENESCAPE_REST_URL, SCENESCAPE_MQTT_HOST", cerr.Key)
}

func TestLoad_MissingAuthFile(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("SCENESCAPE_AUTH_FILE", filepath.Join(t.TempDir(), "nope.auth"))

	_, err := Load()

	var cerr *errs.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, EnvAuthFile, cerr.Key)
	assert.Contains(t, cerr.Reason, "auth file not found")
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("SCENESCAPE_MQTT_PORT", "70000")

	_, err := Load()

	var cerr *errs.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "SCENESCAPE_MQTT_PORT", cerr.Key)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	// .env 文件只填充未设置的变量
	for _, key := range []string{"SCENESCAPE_TARGET_CATEGORY", "SCENESCAPE_MQTT_TOPIC"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	envFile := filepath.Join(t.TempDir(), ".env.local")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"SCENESCAPE_TARGET_CATEGORY=vehicle\nSCENESCAPE_MQTT_TOPIC=scenescape/regulated/scene/lobby\nSCENESCAPE_MQTT_HOST=ignored\n",
	), 0o600))
	t.Setenv("SCENESCAPE_ENV_FILE", envFile)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "vehicle", cfg.Counter.TargetCategory)
	assert.Equal(t, "scenescape/regulated/scene/lobby", cfg.Counter.Topic)
	assert.Equal(t, "scenescape.local", cfg.MQTT.Host)
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()

	creds, err := LoadCredentials(writeAuthFile(t, dir, `{"user": "controller", "password": "pw"}`))
	require.NoError(t, err)
	assert.Equal(t, "controller", creds.User)
	assert.Equal(t, "pw", creds.Password)

	_, err = LoadCredentials(writeAuthFile(t, dir, `{"user": "controller"}`))
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "missing user or password")

	_, err = LoadCredentials(writeAuthFile(t, dir, `user=controller`))
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestLoadCredentials_AppPathFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "secrets"), 0o755))
	writeAuthFile(t, filepath.Join(dir, "secrets"), `{"user": "controller", "password": "pw"}`)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	creds, err := LoadCredentials("/app/secrets/controller.auth")
	require.NoError(t, err)
	assert.Equal(t, "controller", creds.User)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SCENESCAPE_MQTT_PORT", "88x3"},
		{"SCENESCAPE_VERIFY_SSL", "yes"},
		{"SCENESCAPE_MQTT_INSECURE_SKIP_VERIFY", "no"},
		{"SCENESCAPE_MQTT_TLS", "on-ish"},
		{"SCENESCAPE_MQTT_RECONNECT_MAX", "-1"},
		{"SCENESCAPE_REST_TIMEOUT", "30s"},
		{"SCENESCAPE_SHUTDOWN_TIMEOUT", "five"},
		{"SCENESCAPE_STATUS_EVERY", "-150"},
		{"REDIS_DB", "zero"},
		{"OCCUPANCY_STREAM_MAXLEN", "1e4"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			assert.Nil(t, cfg)

			var cerr *errs.ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.key, cerr.Key)
			assert.Contains(t, cerr.Reason, tt.value)
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	assert.Equal(t, "test-value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default-value", getEnv("NON_EXISTENT_VAR", "default-value"))

	v, err := getEnvInt("NON_EXISTENT_INT", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	t.Setenv("TEST_INT", "-4")
	_, err = getEnvInt("TEST_INT", 7)
	assert.True(t, errs.IsConfiguration(err))

	t.Setenv("TEST_BOOL", "maybe")
	_, err = getEnvBool("TEST_BOOL", true)
	assert.True(t, errs.IsConfiguration(err))

	t.Setenv("TEST_BOOL", "false")
	b, err := getEnvBool("TEST_BOOL", true)
	require.NoError(t, err)
	assert.False(t, b)
}
