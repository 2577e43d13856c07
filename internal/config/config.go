package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"forkful.app/internal/ratelimit"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DB struct {
	DSN string `mapstructure:"dsn"`
}

type Auth struct {
	Secret        string        `mapstructure:"secret"`
	Issuer        string        `mapstructure:"issuer"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	SessionCookie string        `mapstructure:"session_cookie"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
}

type RateLimit struct {
	Retention     time.Duration               `mapstructure:"retention"`
	EdgePerSecond int                         `mapstructure:"edge_per_second"`
	EdgeBurst     int                         `mapstructure:"edge_burst"`
	Policies      map[string]ratelimit.Policy `mapstructure:"policies"`
}

type Gatekeeper struct {
	PagePrefixes []string `mapstructure:"page_prefixes"`
	LoginPath    string   `mapstructure:"login_path"`
}

type Internal struct {
	// CleanupToken authorizes the scheduled cleanup trigger; compared in
	// constant time at the endpoint.
	CleanupToken string `mapstructure:"cleanup_token"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	App        App        `mapstructure:"app"`
	Server     Server     `mapstructure:"server"`
	DB         DB         `mapstructure:"db"`
	Auth       Auth       `mapstructure:"auth"`
	RateLimit  RateLimit  `mapstructure:"rate_limit"`
	Gatekeeper Gatekeeper `mapstructure:"gatekeeper"`
	Internal   Internal   `mapstructure:"internal"`
	Log        Log        `mapstructure:"log"`
}

// Load reads configuration from an optional YAML file, applying defaults and
// FORKFUL_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetDefault("app.name", "forkful-api")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// Register secret-bearing keys so FORKFUL_* env overrides reach them.
	v.SetDefault("db.dsn", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("internal.cleanup_token", "")

	v.SetDefault("auth.issuer", "forkful")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "720h")
	v.SetDefault("auth.session_cookie", "forkful_session")
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("rate_limit.retention", "24h")
	v.SetDefault("rate_limit.edge_per_second", 50)
	v.SetDefault("rate_limit.edge_burst", 100)
	v.SetDefault("rate_limit.policies.login.limit", 5)
	v.SetDefault("rate_limit.policies.login.window", "15m")
	v.SetDefault("rate_limit.policies.register.limit", 3)
	v.SetDefault("rate_limit.policies.register.window", "1h")
	v.SetDefault("rate_limit.policies.planner.limit", 20)
	v.SetDefault("rate_limit.policies.planner.window", "24h")

	v.SetDefault("gatekeeper.page_prefixes", []string{"/app/"})
	v.SetDefault("gatekeeper.login_path", "/login")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix("FORKFUL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, errors.New("auth.secret is required")
	}
	return &cfg, nil
}
