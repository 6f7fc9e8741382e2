package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names an optional YAML file layered between the defaults
// and the environment.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config captures all runtime configuration. Keys match the environment
// variable names, lower-cased.
type Config struct {
	Port             string `koanf:"port"`
	AuthToken        string `koanf:"auth_token"`
	ReadTimeoutSecs  int    `koanf:"server_read_timeout"`
	WriteTimeoutSecs int    `koanf:"server_write_timeout"`
	IdleTimeoutSecs  int    `koanf:"server_idle_timeout"`

	DBURL             string `koanf:"db_url"`
	DBMaxConns        int    `koanf:"db_max_conns"`
	DBMinConns        int    `koanf:"db_min_conns"`
	DBMaxIdleSecs     int    `koanf:"db_max_conn_idle_secs"`
	DBMaxLifeSecs     int    `koanf:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs int    `koanf:"db_conn_timeout_secs"`
	DBStatementCache  int    `koanf:"db_statement_cache_capacity"`
	DBAutoMigrate     bool   `koanf:"db_auto_migrate"`

	MetadataURL         string `koanf:"metadata_url"`
	MetadataAPIKey      string `koanf:"metadata_api_key"`
	MetadataTimeoutSecs int    `koanf:"metadata_timeout_secs"`

	SuggestURL         string `koanf:"suggest_url"`
	SuggestAPIKey      string `koanf:"suggest_api_key"`
	SuggestModel       string `koanf:"suggest_model"`
	SuggestTimeoutSecs int    `koanf:"suggest_timeout_secs"`
	SuggestRateLimit   int    `koanf:"suggest_rate_limit"`

	BreakerFailures int `koanf:"breaker_failures"`
	BreakerOpenSecs int `koanf:"breaker_open_secs"`

	DiscoveryBackend    string `koanf:"discovery_backend"`
	DiscoveryHistoryMax int    `koanf:"discovery_history_max"`
	DiscoveryTTLSecs    int    `koanf:"discovery_ttl_secs"`
	RedisAddr           string `koanf:"redis_addr"`
	RedisPassword       string `koanf:"redis_password"`
	RedisDB             int    `koanf:"redis_db"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

func defaults() Config {
	return Config{
		Port:                "8080",
		ReadTimeoutSecs:     15,
		WriteTimeoutSecs:    30,
		IdleTimeoutSecs:     60,
		DBMaxConns:          20,
		DBMinConns:          2,
		DBMaxIdleSecs:       300,
		DBMaxLifeSecs:       3600,
		DBConnTimeoutSecs:   10,
		DBStatementCache:    256,
		DBAutoMigrate:       true,
		MetadataURL:         "https://www.omdbapi.com",
		MetadataTimeoutSecs: 10,
		SuggestURL:          "https://openrouter.ai/api/v1",
		SuggestModel:        "openai/gpt-3.5-turbo",
		SuggestTimeoutSecs:  20,
		SuggestRateLimit:    30,
		BreakerFailures:     5,
		BreakerOpenSecs:     30,
		DiscoveryBackend:    "memory",
		DiscoveryHistoryMax: 20,
		DiscoveryTTLSecs:    86400,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// Load reads configuration from defaults, the optional CONFIG_PATH file and
// environment variables, then validates it.
func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read layers the sources without validating. Empty environment variables
// do not override lower layers.
func Read() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// envKey maps DB_URL to db_url and drops variables that are set but empty.
func envKey(name string) string {
	if os.Getenv(name) == "" {
		return ""
	}
	return strings.ToLower(name)
}

// Validate checks everything the server needs.
func (c Config) Validate() error {
	if c.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if err := c.ValidateMetadata(); err != nil {
		return err
	}
	if c.SuggestTimeoutSecs <= 0 {
		return fmt.Errorf("SUGGEST_TIMEOUT_SECS must be positive")
	}
	if c.SuggestRateLimit < 0 {
		return fmt.Errorf("SUGGEST_RATE_LIMIT must be non-negative")
	}
	if c.BreakerFailures <= 0 {
		return fmt.Errorf("BREAKER_FAILURES must be positive")
	}
	if c.BreakerOpenSecs <= 0 {
		return fmt.Errorf("BREAKER_OPEN_SECS must be positive")
	}
	switch c.DiscoveryBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when DISCOVERY_BACKEND is redis")
		}
	default:
		return fmt.Errorf("DISCOVERY_BACKEND must be memory or redis, got %q", c.DiscoveryBackend)
	}
	if c.DiscoveryHistoryMax <= 0 {
		return fmt.Errorf("DISCOVERY_HISTORY_MAX must be positive")
	}
	if c.DiscoveryTTLSecs < 0 {
		return fmt.Errorf("DISCOVERY_TTL_SECS must be non-negative")
	}
	return nil
}

// ValidateDatabase checks the settings needed to open the pool.
func (c Config) ValidateDatabase() error {
	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if c.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	return nil
}

// ValidateMetadata checks the metadata provider settings.
func (c Config) ValidateMetadata() error {
	if c.MetadataURL == "" {
		return fmt.Errorf("METADATA_URL is required")
	}
	if c.MetadataAPIKey == "" {
		return fmt.Errorf("METADATA_API_KEY is required")
	}
	if c.MetadataTimeoutSecs <= 0 {
		return fmt.Errorf("METADATA_TIMEOUT_SECS must be positive")
	}
	return nil
}

// SuggestEnabled reports whether a suggestion provider key was configured.
func (c Config) SuggestEnabled() bool {
	return c.SuggestAPIKey != ""
}
