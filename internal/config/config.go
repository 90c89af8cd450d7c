// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "driftwatch"
	DefaultPGSSLMode       = "disable"
	DefaultPollTimeout     = 30
	DefaultNameThreshold   = 0.85
	DefaultCheckPhoto      = true
	DefaultCooldownSeconds = 15
	DefaultPhotoDistance   = 12
	DefaultAdminCacheTTL   = 300
	DefaultFetchTimeout    = 10
	DefaultWarmupPattern   = "@every 30m"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	Postgres PostgresConfig `toml:"postgres"`
	Detector DetectorConfig `toml:"detector"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address and optional static API token.
type ServerConfig struct {
	Addr     string `toml:"addr"`
	APIToken string `toml:"api_token"`
}

// TelegramConfig holds the bot token and long-poll timeout in seconds.
// The BOT_TOKEN environment variable overrides the TOML value.
type TelegramConfig struct {
	BotToken    string `toml:"bot_token"`
	PollTimeout int    `toml:"poll_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DetectorConfig holds per-group defaults and engine tunables.
// NameThreshold is clamped to [0.70,0.98] and PhotoDistance to [0,64] when
// groups are created. AdminCacheTTLSeconds bounds the admin reference cache
// lifetime; FetchTimeoutSeconds bounds external photo and admin-list fetches.
type DetectorConfig struct {
	NameThreshold        float64 `toml:"name_threshold"`
	CheckPhoto           bool    `toml:"check_photo"`
	CooldownSeconds      int     `toml:"cooldown_seconds"`
	PhotoDistance        int     `toml:"photo_distance"`
	AdminCacheTTLSeconds int     `toml:"admin_cache_ttl_seconds"`
	FetchTimeoutSeconds  int     `toml:"fetch_timeout_seconds"`
	WarmupPattern        string  `toml:"warmup_pattern"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Telegram: TelegramConfig{
			PollTimeout: DefaultPollTimeout,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Detector: DetectorConfig{
			NameThreshold:        DefaultNameThreshold,
			CheckPhoto:           DefaultCheckPhoto,
			CooldownSeconds:      DefaultCooldownSeconds,
			PhotoDistance:        DefaultPhotoDistance,
			AdminCacheTTLSeconds: DefaultAdminCacheTTL,
			FetchTimeoutSeconds:  DefaultFetchTimeout,
			WarmupPattern:        DefaultWarmupPattern,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg), nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if token := os.Getenv("BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
	}
	return cfg
}
