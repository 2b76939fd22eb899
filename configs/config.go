package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Admin       AdminConfig    `mapstructure:"admin"`
	Redis       RedisConfig    `mapstructure:"redis"`
	History     HistoryConfig  `mapstructure:"history"`
	Forecast    ForecastConfig `mapstructure:"forecast"`
	Pricing     PricingConfig  `mapstructure:"pricing"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	APIKey         string   `mapstructure:"api_key"`
}

// AdminConfig メンテナンスモード切替用の管理者認証情報
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HistoryConfig 販売履歴の読み込み元
type HistoryConfig struct {
	File          string `mapstructure:"file"`  // CSV or XLSX, empty = in-memory only
	Sheet         string `mapstructure:"sheet"` // XLSX sheet, empty = first sheet
	SyntheticSeed int64  `mapstructure:"synthetic_seed"`
	SyntheticDays int    `mapstructure:"synthetic_days"`
}

// ForecastConfig holds the tuned inventory constants.
type ForecastConfig struct {
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	ServiceLevelZ    float64       `mapstructure:"service_level_z"`
	HoldingCostRate  float64       `mapstructure:"holding_cost_rate"`
	OrderingCost     float64       `mapstructure:"ordering_cost"`
	MinOrderQuantity float64       `mapstructure:"min_order_quantity"`
	DefaultLeadTime  int           `mapstructure:"default_lead_time"`
	MinSampleSize    int           `mapstructure:"min_sample_size"`
}

// PricingConfig holds the tuned pricing constants.
type PricingConfig struct {
	PriceStep         float64 `mapstructure:"price_step"`
	DefaultElasticity float64 `mapstructure:"default_elasticity"`
	ElasticityScale   float64 `mapstructure:"elasticity_scale"`
	HistoryWindow     int     `mapstructure:"history_window"`
	HistoryCapacity   int     `mapstructure:"history_capacity"`
}

// LoadConfig loads .env, defaults, an optional config.yaml and environment variables.
func LoadConfig() (*Config, error) {
	// .envファイルは任意
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 既存のデプロイ環境との互換
	if err := v.BindEnv("server.port", "SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT environment variable: %w", err)
	}
	if err := v.BindEnv("server.api_key", "SERVER_API_KEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind API_KEY environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Environment = strings.ToLower(cfg.Environment)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the services cannot work without.
func (c *Config) Validate() error {
	if c.Forecast.CacheTTL <= 0 {
		return fmt.Errorf("forecast.cache_ttl must be positive, got %s", c.Forecast.CacheTTL)
	}
	if c.Forecast.ServiceLevelZ <= 0 {
		return fmt.Errorf("forecast.service_level_z must be positive, got %v", c.Forecast.ServiceLevelZ)
	}
	if c.Pricing.PriceStep <= 0 {
		return fmt.Errorf("pricing.price_step must be positive, got %v", c.Pricing.PriceStep)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.api_key", "")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("history.file", "")
	v.SetDefault("history.sheet", "")
	v.SetDefault("history.synthetic_seed", 42)
	v.SetDefault("history.synthetic_days", 90)

	v.SetDefault("forecast.cache_ttl", "1h")
	v.SetDefault("forecast.service_level_z", 1.65)
	v.SetDefault("forecast.holding_cost_rate", 0.25)
	v.SetDefault("forecast.ordering_cost", 1000.0)
	v.SetDefault("forecast.min_order_quantity", 10.0)
	v.SetDefault("forecast.default_lead_time", 3)
	v.SetDefault("forecast.min_sample_size", 30)

	v.SetDefault("pricing.price_step", 5.0)
	v.SetDefault("pricing.default_elasticity", -1.2)
	v.SetDefault("pricing.elasticity_scale", -1.5)
	v.SetDefault("pricing.history_window", 10)
	v.SetDefault("pricing.history_capacity", 100)
}
