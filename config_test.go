/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.False(t, cfg.StaleCheck.Enabled)
		require.Equal(t, DefaultStaleCheckInterval, time.Duration(cfg.StaleCheck.Interval))
		require.Equal(t, DefaultStaleCheckThreshold, time.Duration(cfg.StaleCheck.Threshold))
		require.NoError(t, cfg.Validate())
	})

	t.Run("load from yaml", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
xflight:
  metrics:
    namespace: myservice
  staleCheck:
    enabled: true
    interval: 10s
    threshold: 1m30s
`)
		cfg := NewConfig()
		require.NoError(t, LoadConfigFromReader(cfgData, DataTypeYAML, cfg))
		require.Equal(t, "myservice", cfg.Metrics.Namespace)
		require.True(t, cfg.StaleCheck.Enabled)
		require.Equal(t, 10*time.Second, time.Duration(cfg.StaleCheck.Interval))
		require.Equal(t, 90*time.Second, time.Duration(cfg.StaleCheck.Threshold))
	})

	t.Run("load from json", func(t *testing.T) {
		cfgData := bytes.NewBufferString(
			`{"xflight": {"staleCheck": {"enabled": true, "interval": "5s", "threshold": "20s"}}}`)
		cfg := NewConfig()
		require.NoError(t, LoadConfigFromReader(cfgData, DataTypeJSON, cfg))
		require.True(t, cfg.StaleCheck.Enabled)
		require.Equal(t, 5*time.Second, time.Duration(cfg.StaleCheck.Interval))
		require.Equal(t, 20*time.Second, time.Duration(cfg.StaleCheck.Threshold))
	})

	t.Run("defaults are applied for missing keys", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
xflight:
  staleCheck:
    enabled: true
`)
		cfg := NewConfig()
		require.NoError(t, LoadConfigFromReader(cfgData, DataTypeYAML, cfg))
		require.True(t, cfg.StaleCheck.Enabled)
		require.Equal(t, DefaultStaleCheckInterval, time.Duration(cfg.StaleCheck.Interval))
		require.Equal(t, DefaultStaleCheckThreshold, time.Duration(cfg.StaleCheck.Threshold))
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
myservice:
  dedup:
    staleCheck:
      enabled: true
      interval: 2s
`)
		cfg := NewConfig(WithKeyPrefix("myservice.dedup"))
		require.NoError(t, LoadConfigFromReader(cfgData, DataTypeYAML, cfg))
		require.True(t, cfg.StaleCheck.Enabled)
		require.Equal(t, 2*time.Second, time.Duration(cfg.StaleCheck.Interval))
	})

	t.Run("invalid duration", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
xflight:
  staleCheck:
    enabled: true
    interval: ten-seconds
`)
		cfg := NewConfig()
		err := LoadConfigFromReader(cfgData, DataTypeYAML, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "xflight.staleCheck.interval")
	})

	t.Run("validation rejects non-positive values when enabled", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.StaleCheck.Enabled = true
		cfg.StaleCheck.Interval = 0
		require.Error(t, cfg.Validate())

		cfg = NewDefaultConfig()
		cfg.StaleCheck.Enabled = true
		cfg.StaleCheck.Threshold = TimeDuration(-time.Second)
		require.Error(t, cfg.Validate())
	})

	t.Run("direct yaml unmarshal", func(t *testing.T) {
		var cfg Config
		err := yaml.Unmarshal([]byte(`
staleCheck:
  enabled: true
  interval: 45s
  threshold: 300000000000
`), &cfg)
		require.NoError(t, err)
		require.True(t, cfg.StaleCheck.Enabled)
		require.Equal(t, 45*time.Second, time.Duration(cfg.StaleCheck.Interval))
		require.Equal(t, 5*time.Minute, time.Duration(cfg.StaleCheck.Threshold))
	})
}
