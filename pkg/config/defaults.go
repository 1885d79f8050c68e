package config

import (
	"github.com/spf13/viper"

	"github.com/marmos91/gobinder/pkg/binder"
)

// Default returns the configuration with every default applied.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Binder: BinderConfig{
			Device:         binder.DefaultDevice,
			MaxThreads:     binder.DefaultMaxThreads,
			ReadBufferSize: binder.DefaultReadBufferSize,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		API: APIConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:7680",
		},
	}
}

// setDefaults seeds viper with the default values so partial config files
// and bare environments resolve completely.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("binder.device", d.Binder.Device)
	v.SetDefault("binder.max_threads", d.Binder.MaxThreads)
	v.SetDefault("binder.read_buffer_size", d.Binder.ReadBufferSize)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.listen_addr", d.API.ListenAddr)
}
