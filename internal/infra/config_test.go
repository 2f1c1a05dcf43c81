package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Monitor.FastInterval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.MediumInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.SlowInterval)
	assert.Equal(t, 5*time.Minute, cfg.Audit.Interval)
	assert.Equal(t, 80, cfg.Optimizer.ScoreThreshold)
	assert.Equal(t, 5, cfg.Recovery.MaxFailures)
	assert.Equal(t, []string{"header", "navigation", "main", "footer"}, cfg.Audit.ExpectedRegions)
	assert.False(t, cfg.Server.TLSEnabled())
	assert.Equal(t, ":8080", cfg.Server.Addr())
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"log level", func(c *Config) { c.Logger.Level = "verbose" }},
		{"max failures", func(c *Config) { c.Recovery.MaxFailures = 0 }},
		{"threshold", func(c *Config) { c.Optimizer.ScoreThreshold = 101 }},
		{"zero threshold", func(c *Config) { c.Optimizer.ScoreThreshold = 0 }},
		{"fast interval", func(c *Config) { c.Monitor.FastInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MONITOR_PROBE_URL", "http://probe.local/ping")
	t.Setenv("RECOVERY_MAX_FAILURES", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://probe.local/ping", cfg.Monitor.ProbeURL)
	assert.Equal(t, 7, cfg.Recovery.MaxFailures)
}

func TestLoadConfig_KeyFromEnv(t *testing.T) {
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "-----BEGIN PUBLIC KEY-----")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte("-----BEGIN PUBLIC KEY-----"), cfg.Auth.PublicKey)
	assert.Nil(t, cfg.Auth.PrivateKey)
}

func TestNewLoggerAndApplyLevel(t *testing.T) {
	logger, atom, err := NewLogger(LoggerConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.True(t, ApplyLevel(atom, "debug"))
	assert.Equal(t, zapcore.DebugLevel, atom.Level())
	assert.False(t, ApplyLevel(atom, "debug"), "same level is not a change")
	assert.False(t, ApplyLevel(atom, "loud"))
	assert.Equal(t, zapcore.DebugLevel, atom.Level())

	_, _, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewMetrics_NilRegistry(t *testing.T) {
	m := NewMetrics(nil)
	m.HealthScore.Set(90)
	m.FailureSignals.WithLabelValues("offline").Inc()
	// второй набор на отдельном реестре не конфликтует
	assert.NotPanics(t, func() { NewMetrics(nil) })
}
