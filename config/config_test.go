package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":9470", cfg.ListenAddr)
	assert.Empty(t, cfg.DatabaseDSN)
	assert.False(t, cfg.Noise)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadServerFromEnvironment(t *testing.T) {
	t.Setenv("NYXAR_LISTEN_ADDR", "0.0.0.0:9999")
	t.Setenv("NYXAR_DATABASE_DSN", "postgres://relay@localhost/nyxar")
	t.Setenv("NYXAR_NOISE", "true")
	t.Setenv("NYXAR_LOG_LEVEL", "debug")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	assert.Equal(t, "postgres://relay@localhost/nyxar", cfg.DatabaseDSN)
	assert.True(t, cfg.Noise)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadClientDataDirDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "127.0.0.1:9470", cfg.RelayAddr)
}

func TestApplyLogLevel(t *testing.T) {
	prev := logrus.GetLevel()
	defer logrus.SetLevel(prev)

	require.NoError(t, ApplyLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	assert.Error(t, ApplyLogLevel("loudest"))
}
