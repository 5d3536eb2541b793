package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestLoad(t *testing.T) {
	t.Run("requires jwt secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("SESSION_SECRET", "")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "secret", cfg.SessionSecret)
		assert.Equal(t, 8, cfg.ShareCodeLength)
		assert.Equal(t, 30*time.Second, cfg.ReminderPollInterval)
		assert.Equal(t, ":8080", cfg.Addr())
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("PORT", "9000")
		t.Setenv("REMINDER_POLL_INTERVAL_SECONDS", "5")
		t.Setenv("LOG_LEVEL", "debug")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, 5*time.Second, cfg.ReminderPollInterval)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("rejects short share codes", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("SHARE_CODE_LENGTH", "2")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	l := NewLogger(LoggingConfig{Level: "warn", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l = NewLogger(LoggingConfig{Level: "bogus"})
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  logger.LogLevel
	}{
		{"debug", logger.Info},
		{"info", logger.Warn},
		{"error", logger.Error},
		{"disabled", logger.Silent},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, GormLogLevel(LoggingConfig{Level: tt.level}))
		})
	}
}
