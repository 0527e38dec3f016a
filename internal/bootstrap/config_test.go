package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMySQL, cfg.StoreDriver)
	assert.Equal(t, "mj:", cfg.KeyPrefix)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.True(t, cfg.RobotEnabled)
	assert.Equal(t, "@every 1m", cfg.RobotTickSchedule)
	assert.Equal(t, 3, cfg.Robot.MinActiveRooms)
	assert.Equal(t, 3*time.Second, cfg.Robot.WithdrawDelay)
	assert.False(t, cfg.WeChatConfigured())
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RATE_LIMIT_WINDOW", "30")
	t.Setenv("ROBOT_ENABLED", "false")
	t.Setenv("ROBOT_DWELL", "2m30s")
	t.Setenv("ROBOT_WITHDRAW_PROBABILITY", "0.5")
	t.Setenv("ROBOT_WORK_START_HOUR", "20")
	t.Setenv("ROBOT_WORK_END_HOUR", "2")
	t.Setenv("ROBOT_TIMEZONE", "UTC")
	t.Setenv("WECHAT_APP_ID", "wx123")
	t.Setenv("WECHAT_APP_SECRET", "s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.False(t, cfg.RobotEnabled)
	assert.Equal(t, 150*time.Second, cfg.Robot.Dwell)
	assert.InDelta(t, 0.5, cfg.Robot.WithdrawProbability, 1e-9)
	assert.Equal(t, 20, cfg.Robot.WorkStartHour)
	assert.Equal(t, 2, cfg.Robot.WorkEndHour)
	assert.Equal(t, time.UTC, cfg.Robot.Location)
	assert.True(t, cfg.WeChatConfigured())
}

func TestLoadConfig_InvalidNumbersFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("RATE_LIMIT_MAX", "lots")
	t.Setenv("ROBOT_CREATE_INTERVAL", "-5m")
	t.Setenv("ROBOT_ENABLED", "maybe")
	t.Setenv("LOG_LEVEL", "loud")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.RateLimitMax)
	assert.Equal(t, 10*time.Minute, cfg.Robot.CreateInterval)
	assert.True(t, cfg.RobotEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing redis", map[string]string{"REDIS_ADDR": "", "JWT_SECRET": "s"}},
		{"missing jwt secret", map[string]string{"REDIS_ADDR": "x:1", "JWT_SECRET": ""}},
		{"unknown driver", map[string]string{"REDIS_ADDR": "x:1", "JWT_SECRET": "s", "STORE_DRIVER": "sqlite"}},
		{"probability out of range", map[string]string{"REDIS_ADDR": "x:1", "JWT_SECRET": "s", "ROBOT_WITHDRAW_PROBABILITY": "1.5"}},
		{"hour out of range", map[string]string{"REDIS_ADDR": "x:1", "JWT_SECRET": "s", "ROBOT_WORK_END_HOUR": "24"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
