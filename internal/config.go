package internal

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SQLMISSION_SERVER_ADDR.
const EnvPrefix = "SQLMISSION"

type Config struct {
	AppName string `mapstructure:"app_name"`

	Server struct {
		Addr        string        `mapstructure:"addr"`
		HTTPAddr    string        `mapstructure:"http_addr"`
		Debug       bool          `mapstructure:"debug"`
		IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`

	Engine struct {
		StrictWhere bool   `mapstructure:"strict_where"`
		SeedFile    string `mapstructure:"seed_file"`
		WatchSeed   bool   `mapstructure:"watch_seed"`
	} `mapstructure:"engine"`

	Feedback struct {
		CompareJoin bool `mapstructure:"compare_join"`
	} `mapstructure:"feedback"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

var defaults = map[string]any{
	"app_name":              "sqlmission",
	"server.addr":           "127.0.0.1:7654",
	"server.http_addr":      "",
	"server.debug":          false,
	"server.idle_timeout":   10 * time.Minute,
	"engine.strict_where":   false,
	"engine.seed_file":      "",
	"engine.watch_seed":     false,
	"feedback.compare_join": false,
	"log.level":             "info",
	"log.format":            "text",
}

// flagKeys maps command line flag names onto config keys.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"http-addr":    "server.http_addr",
	"debug":        "server.debug",
	"idle-timeout": "server.idle_timeout",
	"strict-where": "engine.strict_where",
	"seed":         "engine.seed_file",
	"watch-seed":   "engine.watch_seed",
	"compare-join": "feedback.compare_join",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg, err := load(newViper())
	if err != nil {
		panic(fmt.Sprintf("config: bad defaults: %v", err))
	}
	return cfg
}

// LoadConfig reads path (YAML, optional when empty), then applies
// SQLMISSION_* environment variables and any flags set in fs.
func LoadConfig(path string, fs *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses log.level; server.debug forces debug.
func (c *Config) LogLevel() (slog.Level, error) {
	if c.Server.Debug {
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the handler described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := c.LogLevel()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
