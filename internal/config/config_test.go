package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "bleobservatory.db", cfg.StorePath)
	assert.Equal(t, 100000, cfg.MaxPacketsInMemory)
	assert.Equal(t, 10000, cfg.MaxDevicesTracked)
	assert.Equal(t, 10_000, cfg.Pipeline.ChannelCapacity)
	assert.Equal(t, 500, cfg.Writer.BatchSize)
}

func TestNewLoggerValidLevel(t *testing.T) {
	cfg := Config{LogLevel: "debug"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.True(t, formatter.FullTimestamp)
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	cfg := Config{LogLevel: "not-a-level"}
	_, err := cfg.NewLogger()
	assert.Error(t, err)
}

func TestDumpProducesYAML(t *testing.T) {
	cfg := DefaultConfig()
	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.Contains(t, out, "log_level: info")
	assert.Contains(t, out, "store_path: bleobservatory.db")
}
