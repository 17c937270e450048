/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const cfgDefaultKeyPrefix = "xflight"

const (
	cfgKeyMetricsNamespace    = "metrics.namespace"
	cfgKeyStaleCheckEnabled   = "staleCheck.enabled"
	cfgKeyStaleCheckInterval  = "staleCheck.interval"
	cfgKeyStaleCheckThreshold = "staleCheck.threshold"
)

// Default values for the stale check.
const (
	DefaultStaleCheckInterval  = 30 * time.Second
	DefaultStaleCheckThreshold = time.Minute
)

// DataType is a type of data format in which configuration may be described.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// StaleCheckConfig configures the periodic stale-entry check
// (see Registry.RunPeriodicStaleCheck).
type StaleCheckConfig struct {
	// Enabled determines whether the periodic stale check should be run at all.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Interval is how often tracked entries are inspected.
	Interval TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`

	// Threshold is the check-time age at which an entry is reported as stale.
	Threshold TimeDuration `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
}

// MetricsConfig configures the Prometheus metrics of the registry.
type MetricsConfig struct {
	// Namespace is prepended to all metric names.
	Namespace string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
}

// Config represents a set of configuration parameters for the registry.
// Configuration can be loaded in different formats (YAML, JSON) using
// LoadConfigFromReader, viper, or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	StaleCheck StaleCheckConfig `mapstructure:"staleCheck" yaml:"staleCheck" json:"staleCheck"`

	keyPrefix string
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix: opts.keyPrefix,
		StaleCheck: StaleCheckConfig{
			Interval:  TimeDuration(DefaultStaleCheckInterval),
			Threshold: TimeDuration(DefaultStaleCheckThreshold),
		},
	}
}

// KeyPrefix returns the key prefix used for parsing configuration parameters.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

func (c *Config) key(k string) string {
	return c.KeyPrefix() + "." + k
}

// SetViperDefaults sets default configuration values for the registry in viper.
func (c *Config) SetViperDefaults(v *viper.Viper) {
	v.SetDefault(c.key(cfgKeyStaleCheckEnabled), false)
	v.SetDefault(c.key(cfgKeyStaleCheckInterval), DefaultStaleCheckInterval.String())
	v.SetDefault(c.key(cfgKeyStaleCheckThreshold), DefaultStaleCheckThreshold.String())
}

// Set sets configuration values from viper.
func (c *Config) Set(v *viper.Viper) error {
	namespace, err := cast.ToStringE(v.Get(c.key(cfgKeyMetricsNamespace)))
	if err != nil {
		return fmt.Errorf("%s: %w", c.key(cfgKeyMetricsNamespace), err)
	}
	c.Metrics.Namespace = namespace

	enabled, err := cast.ToBoolE(v.Get(c.key(cfgKeyStaleCheckEnabled)))
	if err != nil {
		return fmt.Errorf("%s: %w", c.key(cfgKeyStaleCheckEnabled), err)
	}
	c.StaleCheck.Enabled = enabled

	interval, err := cast.ToDurationE(v.Get(c.key(cfgKeyStaleCheckInterval)))
	if err != nil {
		return fmt.Errorf("%s: %w", c.key(cfgKeyStaleCheckInterval), err)
	}
	c.StaleCheck.Interval = TimeDuration(interval)

	threshold, err := cast.ToDurationE(v.Get(c.key(cfgKeyStaleCheckThreshold)))
	if err != nil {
		return fmt.Errorf("%s: %w", c.key(cfgKeyStaleCheckThreshold), err)
	}
	c.StaleCheck.Threshold = TimeDuration(threshold)

	return c.Validate()
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if !c.StaleCheck.Enabled {
		return nil
	}
	if c.StaleCheck.Interval <= 0 {
		return fmt.Errorf("%s: must be positive, got %s", c.key(cfgKeyStaleCheckInterval), c.StaleCheck.Interval)
	}
	if c.StaleCheck.Threshold <= 0 {
		return fmt.Errorf("%s: must be positive, got %s", c.key(cfgKeyStaleCheckThreshold), c.StaleCheck.Threshold)
	}
	return nil
}

// LoadConfigFromReader loads configuration values from reader
// (initializing default values before) and sets them in cfg.
func LoadConfigFromReader(reader io.Reader, dataType DataType, cfg *Config) error {
	v := viper.New()
	v.SetConfigType(string(dataType))
	cfg.SetViperDefaults(v)
	if err := v.ReadConfig(reader); err != nil {
		return err
	}
	return cfg.Set(v)
}

// TimeDuration represents a time duration that can be parsed from JSON and YAML.
// This type is intended to be used in configuration structures
// and allows parsing both integers (nanoseconds) and human-readable strings (e.g. "1h30m").
type TimeDuration time.Duration

// UnmarshalJSON allows decoding from JSON and supports both integers (nanoseconds)
// and human-readable strings. Implements json.Unmarshaler interface.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*d = TimeDuration(num)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid time duration format (%s): %w", s, err)
	}
	*d = TimeDuration(dur)
	return nil
}

// UnmarshalYAML allows decoding from YAML and supports both integers (nanoseconds)
// and human-readable strings. Implements yaml.Unmarshaler interface.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	var num int64
	if err := value.Decode(&num); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*d = TimeDuration(num)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err == nil {
		dur, parseErr := time.ParseDuration(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid time duration format (%s): %w", raw, parseErr)
		}
		*d = TimeDuration(dur)
		return nil
	}
	return fmt.Errorf("invalid time duration format: %v", value)
}

// UnmarshalText allows decoding from text.
// Implements encoding.TextUnmarshaler interface, which is used by mapstructure.TextUnmarshallerHookFunc.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	return d.UnmarshalJSON(text)
}

// String returns the human-readable string representation.
// Implements fmt.Stringer interface.
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes as a human-readable string in JSON.
// Implements json.Marshaler interface.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML encodes as a human-readable string in YAML.
// Implements yaml.Marshaler interface.
func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// MarshalText encodes as a human-readable string in text.
// Implements encoding.TextMarshaler interface.
func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
