// Package config loads the gobinder configuration from file, environment
// and defaults.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GOBINDER_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the gobinder configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Binder configures the driver client
	Binder BinderConfig `mapstructure:"binder" yaml:"binder"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the debug/status HTTP API configuration
	API APIConfig `mapstructure:"api" yaml:"api"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr" or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// BinderConfig configures the driver client.
type BinderConfig struct {
	// Device is the binder character device path
	Device string `mapstructure:"device" validate:"required" yaml:"device"`

	// MaxThreads is the driver-side thread limit set at open time
	MaxThreads uint32 `mapstructure:"max_threads" validate:"gte=1,lte=32" yaml:"max_threads"`

	// ReadBufferSize is the inbound buffer handed to each write/read ioctl
	ReadBufferSize int `mapstructure:"read_buffer_size" validate:"gte=64" yaml:"read_buffer_size"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns the metrics registry on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig contains the debug/status HTTP API configuration.
type APIConfig struct {
	// Enabled turns the HTTP server on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the address the server binds
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// DefaultConfigPath returns the default config file location,
// $XDG_CONFIG_HOME/gobinder/config.yaml.
func DefaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "gobinder", "config.yaml")
}

// Load reads the configuration. An empty path loads defaults plus
// environment overrides; a missing explicit file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GOBINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configDecodeHooks returns the combined decode hook applied during
// unmarshal, so "30s"-style strings and comma-separated lists keep working
// if such fields are added.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Validate checks the configuration against its constraint tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("config: invalid value for %s (%s)", strings.ToLower(e.Namespace()), e.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// WriteSample renders a commented sample configuration to the given path.
// Refuses to overwrite unless force is set.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal sample config: %w", err)
	}

	header := "# gobinder configuration.\n# Values can be overridden with GOBINDER_* environment variables,\n# e.g. GOBINDER_LOGGING_LEVEL=DEBUG.\n\n"
	if err := os.WriteFile(path, append([]byte(header), out...), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
