package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ria-search/internal/common/config"
)

func TestZapAdapter_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"component": "engine"})

	log.Warn("path degraded", map[string]interface{}{
		"path":  "semantic",
		"cause": errors.New("deadline exceeded"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "path degraded", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "engine", ctx["component"])
	assert.Equal(t, "semantic", ctx["path"])
	assert.Equal(t, "deadline exceeded", ctx["cause"])
}

func TestWithError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewZapAdapter(zap.New(core)).WithError(errors.New("boom")).Error("failed", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["error"])
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"json warn", config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"}, zapcore.WarnLevel, zapcore.InfoLevel},
		{"console debug", config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"unknown level falls back to info", config.LoggingConfig{Level: "loud", Format: "json", Output: "stdout"}, zapcore.InfoLevel, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewFromConfig(tt.cfg)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.muted))
		})
	}
}
