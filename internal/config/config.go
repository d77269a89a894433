package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Sync     SyncConfig     `mapstructure:"sync"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr   string `mapstructure:"http_addr"`
	AdminToken string `mapstructure:"admin_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Enqueue string `mapstructure:"enqueue"`
	Drain   string `mapstructure:"drain"`
}

type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FetchConfig tunes the retry policies of the resilient fetch wrapper.
type FetchConfig struct {
	RateLimitBase     time.Duration `mapstructure:"rate_limit_base"`
	RateLimitCap      time.Duration `mapstructure:"rate_limit_cap"`
	RateLimitRetries  int           `mapstructure:"rate_limit_retries"`
	NonceDelay        time.Duration `mapstructure:"nonce_delay"`
	NonceRetries      int           `mapstructure:"nonce_retries"`
	NetworkInterval   time.Duration `mapstructure:"network_interval"`
	NetworkWindow     time.Duration `mapstructure:"network_window"`
	UnexpectedDelay   time.Duration `mapstructure:"unexpected_delay"`
	UnexpectedRetries int           `mapstructure:"unexpected_retries"`
}

type SyncConfig struct {
	// Allowed lists syncable collection names; the meta values ALL, PUBLIC
	// and PRIVATE expand through the schema registry.
	Allowed []string `mapstructure:"allowed"`
	// Track lists the per-symbol start points (unix ms) of the public
	// collections. Symbols not listed are not tracked. A list of structs
	// rather than nested maps: viper folds map keys to lowercase, which
	// would corrupt case-sensitive symbols.
	Track        []TrackConfig `mapstructure:"track"`
	OverallLimit int           `mapstructure:"overall_limit"`
	// WalletIdleEvery inserts WalletIdleDelay after that many consecutive
	// day-walk iterations to stay inside the shared rate budget.
	WalletIdleEvery int           `mapstructure:"wallet_idle_every"`
	WalletIdleDelay time.Duration `mapstructure:"wallet_idle_delay"`
	WalletMaxDays   int           `mapstructure:"wallet_max_days"`
}

// TrackConfig is one tracked (collection, symbol) start point.
type TrackConfig struct {
	Collection string `mapstructure:"collection"`
	Symbol     string `mapstructure:"symbol"`
	Start      int64  `mapstructure:"start"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.enqueue", "@every 1h")
	v.SetDefault("cron.drain", "@every 1m")
	v.SetDefault("upstream.base_url", "https://api.example-exchange.com")
	v.SetDefault("upstream.timeout", "25s")
	v.SetDefault("fetch.rate_limit_base", "2s")
	v.SetDefault("fetch.rate_limit_cap", "5m")
	v.SetDefault("fetch.rate_limit_retries", 100)
	v.SetDefault("fetch.nonce_delay", "1s")
	v.SetDefault("fetch.nonce_retries", 20)
	v.SetDefault("fetch.network_interval", "10s")
	v.SetDefault("fetch.network_window", "10m")
	v.SetDefault("fetch.unexpected_delay", "5s")
	v.SetDefault("fetch.unexpected_retries", 3)
	v.SetDefault("sync.allowed", []string{"ALL"})
	v.SetDefault("sync.overall_limit", 0)
	v.SetDefault("sync.wallet_idle_every", 5)
	v.SetDefault("sync.wallet_idle_delay", "2s")
	v.SetDefault("sync.wallet_max_days", 365)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
