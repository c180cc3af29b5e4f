package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Admin.Addr)
	assert.Equal(t, 10*time.Second, cfg.Admin.ReadTimeout)
	assert.Equal(t, 10, cfg.Admin.RateLimitRPS)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	assert.False(t, cfg.Auth.Enabled)

	assert.Equal(t, 1*time.Second, cfg.Poll.Interval)

	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/config.yaml"

	configContent := `
admin:
  addr: ":9090"

redis:
  enabled: true
  addr: "custom-redis:6380"
  password: "secret"
  db: 1

loglevel: "warn"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	originalDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Admin.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "custom-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestAdminConfig_Fields(t *testing.T) {
	cfg := AdminConfig{
		Addr:         ":8090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		RateLimitRPS: 10,
	}

	assert.Equal(t, ":8090", cfg.Addr)
	assert.Equal(t, 10, cfg.RateLimitRPS)
}

func TestRedisConfig_Fields(t *testing.T) {
	cfg := RedisConfig{
		Enabled:      true,
		Addr:         "redis:6379",
		Password:     "pass",
		DB:           1,
		PoolSize:     50,
		MinIdleConns: 5,
		MaxRetries:   5,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, "pass", cfg.Password)
	assert.Equal(t, 1, cfg.DB)
}

func TestPollConfig_Fields(t *testing.T) {
	cfg := PollConfig{Interval: 2 * time.Second}
	assert.Equal(t, 2*time.Second, cfg.Interval)
}
