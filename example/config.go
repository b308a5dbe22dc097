package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// config is the example server's configuration.
// Precedence: flags, then BIFROST_* environment variables, then the config
// file, then defaults.
type config struct {
	Addr    string        `mapstructure:"addr"`
	Log     logConfig     `mapstructure:"log"`
	Session sessionConfig `mapstructure:"session"`
	Backend backendConfig `mapstructure:"backend"`
	Lock    lockConfig    `mapstructure:"lock"`
	GeoIP   geoIPConfig   `mapstructure:"geoip"`
}

type logConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type sessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`
	SecureCookie  bool          `mapstructure:"secure_cookie"`
}

type backendConfig struct {
	// Driver is one of "sqlite", "mysql" or "postgres".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type lockConfig struct {
	// Driver is "memory" or "redis".
	Driver        string        `mapstructure:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type geoIPConfig struct {
	// Path to a MaxMind GeoLite2 Country or City database. Empty disables
	// country lookups.
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("session.ttl", time.Hour)
	v.SetDefault("session.sweep_schedule", "@every 10m")
	v.SetDefault("session.query_timeout", 5*time.Second)
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("backend.driver", "sqlite")
	v.SetDefault("backend.path", "bifrost.db")
	v.SetDefault("backend.dsn", "")
	v.SetDefault("lock.driver", "memory")
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("geoip.path", "")
}

// loadConfig parses args and resolves the configuration. The config file is
// optional; it comes from --config or BIFROST_CONFIG.
func loadConfig(args []string) (*config, error) {
	fs := pflag.NewFlagSet("bifrost-example", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to config file (yaml, json or toml)")
	addr := fs.String("addr", "", "listen address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BIFROST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := *configPath
	if !fs.Changed("config") {
		path = os.Getenv("BIFROST_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if fs.Changed("addr") {
		v.Set("addr", *addr)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *config) validate() error {
	switch c.Backend.Driver {
	case "sqlite":
	case "mysql", "postgres":
		if c.Backend.DSN == "" {
			return fmt.Errorf("backend.dsn is required for driver %q", c.Backend.Driver)
		}
	default:
		return fmt.Errorf("unknown backend driver %q", c.Backend.Driver)
	}

	switch c.Lock.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}
	return nil
}
