package config

import (
	"errors"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		HTTPAddr          string `toml:"http_addr"`
		StalenessWindowMS int    `toml:"staleness_window_ms"`
		RetentionDays     int    `toml:"retention_days"`
		BroadcastEverySec int    `toml:"broadcast_every_sec"`
		LogLevel          string `toml:"log_level"`
	} `toml:"app"`

	Feed struct {
		WsURL          string   `toml:"ws_url"`
		APIKey         string   `toml:"api_key"`
		Symbols        []string `toml:"symbols"`
		DialTimeoutSec int      `toml:"dial_timeout_sec"`
		HeartbeatSec   int      `toml:"heartbeat_sec"`
		BackoffBaseSec int      `toml:"backoff_base_sec"`
		BackoffMaxSec  int      `toml:"backoff_max_sec"`
		MaxReconnects  int      `toml:"max_reconnects"`
	} `toml:"feed"`

	Storage struct {
		Driver      string `toml:"driver"`
		SQLitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
		QueueDepth  int    `toml:"queue_depth"`
		Workers     int    `toml:"workers"`
	} `toml:"storage"`

	Redis struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		Prefix  string `toml:"prefix"`
		TTLSec  int    `toml:"ttl_sec"`
	} `toml:"redis"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.HTTPAddr) == "" {
		cfg.App.HTTPAddr = ":8080"
	}
	if cfg.App.StalenessWindowMS <= 0 {
		cfg.App.StalenessWindowMS = 60_000
	}
	if cfg.App.RetentionDays <= 0 {
		cfg.App.RetentionDays = 7
	}
	if cfg.App.BroadcastEverySec <= 0 {
		cfg.App.BroadcastEverySec = 10
	}
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}

	if strings.TrimSpace(cfg.Feed.WsURL) == "" {
		cfg.Feed.WsURL = "wss://socket.polygon.io/crypto"
	}
	// api key can come from the environment instead of the file
	if strings.TrimSpace(cfg.Feed.APIKey) == "" {
		cfg.Feed.APIKey = os.Getenv("COINPULSE_API_KEY")
	}

	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
		cfg.Storage.SQLitePath = "data/coinpulse.db"
	}

	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = "coinpulse"
	}
	if cfg.Redis.TTLSec <= 0 {
		cfg.Redis.TTLSec = 300
	}
}

func validate(cfg *Config) error {
	cfg.Feed.Symbols = normalizeSymbols(cfg.Feed.Symbols)
	if len(cfg.Feed.Symbols) == 0 {
		return errors.New("feed.symbols is empty")
	}
	if strings.TrimSpace(cfg.Feed.APIKey) == "" {
		return errors.New("feed.api_key empty and COINPULSE_API_KEY unset")
	}
	if cfg.Storage.Driver == "postgres" && strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
		return errors.New("storage.postgres_dsn empty but driver is postgres")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
