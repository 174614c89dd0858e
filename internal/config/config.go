package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvToken is the environment variable holding the Vercel API token. The
// credential is read once at startup and never lives in the config file.
const EnvToken = "VERCEL_TOKEN"

// Config describes the daemon configuration loaded from YAML and ENV.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Socket  SocketConfig  `mapstructure:"socket"`
	Vercel  VercelConfig  `mapstructure:"vercel"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServiceConfig names the service; the name scopes the socket directory so
// daemons for different platforms coexist under the same base path.
type ServiceConfig struct {
	Name string `mapstructure:"name"`
}

// SocketConfig controls the local listener.
type SocketConfig struct {
	Path                 string `mapstructure:"path"`
	MaxMessageBytes      int    `mapstructure:"max_message_bytes"`
	ShutdownGraceSeconds int    `mapstructure:"shutdown_grace_seconds"`
}

// VercelConfig controls the upstream API channel.
type VercelConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TeamID         string `mapstructure:"team_id"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// MetricsConfig controls the optional Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads configuration from the provided path, or from defaults when
// the path is empty and no config file exists. Environment variables
// override file values (prefix: FGP_VERCEL_, dots replaced with
// underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FGP_VERCEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".fgp", "services", "vercel"))
		}
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file is fine; defaults plus env cover a normal start.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Socket.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for socket path: %w", err)
		}
		cfg.Socket.Path = filepath.Join(home, ".fgp", "services", cfg.Service.Name, "daemon.sock")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "vercel")

	v.SetDefault("socket.path", "")
	v.SetDefault("socket.max_message_bytes", 1<<20)
	v.SetDefault("socket.shutdown_grace_seconds", 5)

	v.SetDefault("vercel.base_url", "https://api.vercel.com")
	v.SetDefault("vercel.team_id", "")
	v.SetDefault("vercel.timeout_seconds", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9107")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.Name) == "" {
		return errors.New("service.name must not be empty")
	}

	if c.Socket.MaxMessageBytes <= 0 {
		return errors.New("socket.max_message_bytes must be > 0")
	}
	if c.Socket.ShutdownGraceSeconds <= 0 {
		return errors.New("socket.shutdown_grace_seconds must be > 0")
	}

	if !strings.HasPrefix(c.Vercel.BaseURL, "http://") && !strings.HasPrefix(c.Vercel.BaseURL, "https://") {
		return fmt.Errorf("vercel.base_url must be an http(s) URL, got %q", c.Vercel.BaseURL)
	}
	if c.Vercel.TimeoutSeconds <= 0 {
		return errors.New("vercel.timeout_seconds must be > 0")
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return errors.New("metrics.addr must be set when metrics.enabled is true")
	}

	return nil
}

// UpstreamTimeout returns the configured upstream request timeout.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Vercel.TimeoutSeconds) * time.Second
}

// ShutdownGrace returns the drain window allowed to in-flight requests.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Socket.ShutdownGraceSeconds) * time.Second
}

// Token reads the Vercel credential from the environment. An empty result
// is a fatal startup condition for the daemon, checked by the lifecycle
// manager rather than here so doctor can report it gracefully.
func Token() string {
	return strings.TrimSpace(os.Getenv(EnvToken))
}
