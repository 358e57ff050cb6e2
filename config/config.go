package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/sluice"
	sluicehttp "github.com/sagarc03/sluice/http"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for sluice.
type Config struct {
	Server ServerConfig          `mapstructure:"server"`
	Static StaticConfig          `mapstructure:"static"`
	Proxy  ProxyConfig           `mapstructure:"proxy"`
	Stream StreamConfig          `mapstructure:"stream"`
	CORS   sluicehttp.CORSConfig `mapstructure:"cors"`
	Log    LogConfig             `mapstructure:"log"`
	Env    string                `mapstructure:"env" validate:"required,oneof=dev prod"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	Port int       `mapstructure:"port" validate:"required,min=1,max=65535"`
	Mode string    `mapstructure:"mode" validate:"required,oneof=static spa proxy"`
	TLS  TLSConfig `mapstructure:"tls"`
}

// TLSConfig names the certificate pair. Both empty means cleartext HTTP/2.
type TLSConfig struct {
	Cert string `mapstructure:"cert" validate:"required_with=Key"`
	Key  string `mapstructure:"key" validate:"required_with=Cert"`
}

// Enabled reports whether a certificate pair is configured.
func (c TLSConfig) Enabled() bool {
	return c.Cert != "" && c.Key != ""
}

// StaticConfig holds file serving configuration for static and spa modes.
type StaticConfig struct {
	Root                    string `mapstructure:"root" validate:"required"`
	RedirectStatus          int    `mapstructure:"redirect_status" validate:"oneof=301 302 303 307 308"`
	DirectoryRedirectStatus int    `mapstructure:"directory_redirect_status" validate:"oneof=301 302 303 307 308"`
	RangeWindow             int64  `mapstructure:"range_window" validate:"min=1"`
	MaxBodySize             int64  `mapstructure:"max_body_size" validate:"min=0"`
	ContentTable            string `mapstructure:"content_table"`
}

// ProxyConfig holds the backend table for proxy mode.
type ProxyConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Backends    []Backend     `mapstructure:"backends" validate:"dive"`
}

// Backend routes one authority to a cleartext HTTP/2 backend.
type Backend struct {
	Authority string `mapstructure:"authority" validate:"required"`
	Address   string `mapstructure:"address" validate:"required,hostname_port"`
}

// StreamConfig tunes the stream guards.
type StreamConfig struct {
	HighWaterMark    int           `mapstructure:"high_water_mark" validate:"min=1"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout"`
	HandlerWarnAfter time.Duration `mapstructure:"handler_warn_after"`
}

// LogConfig holds logging configuration. An empty format follows env:
// text in dev, json in prod.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// Mode returns the parsed server mode.
func (c *Config) Mode() (sluice.ServerMode, error) {
	return sluice.ParseServerMode(c.Server.Mode)
}

// Backends returns the proxy table keyed by authority. A later entry for
// the same authority wins.
func (c *Config) Backends() map[string]string {
	table := make(map[string]string, len(c.Proxy.Backends))
	for _, b := range c.Proxy.Backends {
		table[b.Authority] = b.Address
	}
	return table
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"port":      "server.port",
	"mode":      "server.mode",
	"cert":      "server.tls.cert",
	"key":       "server.tls.key",
	"root":      "static.root",
	"log-level": "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "static")
	v.SetDefault("server.tls.cert", "")
	v.SetDefault("server.tls.key", "")

	v.SetDefault("static.root", "./public")
	v.SetDefault("static.redirect_status", 307)
	v.SetDefault("static.directory_redirect_status", 308)
	v.SetDefault("static.range_window", sluice.DefaultRangeWindow)
	v.SetDefault("static.max_body_size", 1<<20) // 0 means no limit
	v.SetDefault("static.content_table", "")

	v.SetDefault("proxy.dial_timeout", "5s")

	v.SetDefault("stream.high_water_mark", 16384)
	v.SetDefault("stream.close_timeout", "20s")
	v.SetDefault("stream.handler_warn_after", "20s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")

	v.SetDefault("env", "dev")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("SLUICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
