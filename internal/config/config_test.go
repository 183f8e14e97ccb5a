package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	logger, _ := test.NewNullLogger()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(viper.New(), Flags(), logger)
	require.NoError(t, err)

	assert.Equal(t, 46010, cfg.Server.Port)
	assert.Equal(t, "server", cfg.AddressSpaceBackend)
	require.Len(t, cfg.Simulators, 2)
	assert.Equal(t, "Temperature", cfg.Simulators[0].SensorId)
	require.Len(t, cfg.Subscriptions, 1)
	sub := cfg.Subscriptions[0]
	assert.Equal(t, 1000.0, sub.PublishingInterval)
	require.Len(t, sub.MonitoredItems, 2)
	assert.Equal(t, "ns=2;s=Temperature", sub.MonitoredItems[0].NodeId)
	assert.Equal(t, "Absolute", sub.MonitoredItems[0].Filter.DeadbandType)
	assert.Equal(t, -1.0, sub.MonitoredItems[1].SamplingInterval)
	assert.Equal(t, "log", cfg.Publisher.Backend)
	assert.Equal(t, "INFO", cfg.LoggerConfig.Level)
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"publisher": { "backend": "mqtt", "encoding": "protobuf" },
		"logger": { "level": "WARN" }
	}`), 0o644))

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--config", file, "--logger.level", "DEBUG"}))

	cfg, err := Load(viper.New(), fs, logger)
	require.NoError(t, err)

	assert.Equal(t, "mqtt", cfg.Publisher.Backend)
	assert.Equal(t, "protobuf", cfg.Publisher.Encoding)
	assert.Equal(t, "DEBUG", cfg.LoggerConfig.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 46010, cfg.Server.Port)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.json")}))

	_, err := Load(viper.New(), fs, logger)
	assert.Error(t, err)
}
