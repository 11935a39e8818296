package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	AI       AIConfig       `mapstructure:"ai"`
	Source   SourceConfig   `mapstructure:"source"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Warming  WarmingConfig  `mapstructure:"warming"`
	Resolver ResolverConfig `mapstructure:"resolver"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"` // sqlite file path
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SourceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	Symbols            []string      `mapstructure:"symbols"`
	MaxSymbolsPerCycle int           `mapstructure:"max_symbols_per_cycle"`
	LookbackDays       int           `mapstructure:"lookback_days"`
}

type EnrichConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type SyncConfig struct {
	IncrementalInterval time.Duration `mapstructure:"incremental_interval"`
	FullInterval        time.Duration `mapstructure:"full_interval"`
	GraceWindow         time.Duration `mapstructure:"grace_window"`
	PageSize            int           `mapstructure:"page_size"`
}

type CacheConfig struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	LocalSize int           `mapstructure:"local_size"`
	HotTTL    time.Duration `mapstructure:"hot_ttl"`
	WarmTTL   time.Duration `mapstructure:"warm_ttl"`
	ColdTTL   time.Duration `mapstructure:"cold_ttl"`
}

type WarmingConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	TopSymbols  int           `mapstructure:"top_symbols"`
	TopKeywords int           `mapstructure:"top_keywords"`
	Window      time.Duration `mapstructure:"window"`
}

type ResolverConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	LookbackDays        int     `mapstructure:"lookback_days"`
	RecentLimit         int     `mapstructure:"recent_limit"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/trendwise.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("source.base_url", "https://api.finfeed.example.com")
	v.SetDefault("source.timeout", 30*time.Second)
	v.SetDefault("ingest.interval", 10*time.Minute)
	v.SetDefault("ingest.symbols", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "TSLA", "META"})
	v.SetDefault("ingest.max_symbols_per_cycle", 100)
	v.SetDefault("ingest.lookback_days", 3)
	v.SetDefault("enrich.interval", 5*time.Minute)
	v.SetDefault("enrich.batch_size", 10)
	v.SetDefault("enrich.item_timeout", 90*time.Second)
	v.SetDefault("enrich.max_retries", 5)
	v.SetDefault("sync.incremental_interval", 3*time.Minute)
	v.SetDefault("sync.full_interval", 24*time.Hour)
	v.SetDefault("sync.grace_window", 60*time.Second)
	v.SetDefault("sync.page_size", 500)
	v.SetDefault("cache.key_prefix", "tw:cache:")
	v.SetDefault("cache.local_size", 2048)
	v.SetDefault("cache.hot_ttl", 5*time.Minute)
	v.SetDefault("cache.warm_ttl", 30*time.Minute)
	v.SetDefault("cache.cold_ttl", 6*time.Hour)
	v.SetDefault("warming.interval", 20*time.Minute)
	v.SetDefault("warming.top_symbols", 20)
	v.SetDefault("warming.top_keywords", 20)
	v.SetDefault("warming.window", 24*time.Hour)
	v.SetDefault("resolver.similarity_threshold", 0.6)
	v.SetDefault("resolver.lookback_days", 7)
	v.SetDefault("resolver.recent_limit", 1000)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("ai.api_key", "OPENAI_API_KEY")
	v.BindEnv("ai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("source.api_key", "NEWS_API_KEY")
	v.BindEnv("source.base_url", "NEWS_API_BASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DSNString returns the connection string for the configured driver.
// Parameters: none.
// Returns:
//   - string: driver-specific DSN.
func (c *DatabaseConfig) DSNString() string {
	if c.Driver == "postgres" {
		return c.DSN
	}
	return c.Path
}
