package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		mode, level string
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{"development", "debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"production", "info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"production", "warn", zapcore.WarnLevel, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		logger, err := New(tt.mode, tt.level)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(tt.enabled), "%s/%s", tt.mode, tt.level)
		assert.False(t, logger.Core().Enabled(tt.disabled), "%s/%s", tt.mode, tt.level)
		Sync(logger)
	}
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New("development", "chatty")
	assert.Error(t, err)
}

func TestSync_Nil(t *testing.T) {
	assert.NotPanics(t, func() { Sync(nil) })
}
