package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Logger         `mapstructure:"logger"`
	DB        Database       `mapstructure:"database"`
	API       API            `mapstructure:"api"`
	Scheduler Scheduler      `mapstructure:"scheduler"`
	Reaper    Reaper         `mapstructure:"reaper"`
	Retention Retention      `mapstructure:"retention"`
	Gemini    Gemini         `mapstructure:"gemini"`
	Slack     SlackConfig    `mapstructure:"slack"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
	Cache     Cache          `mapstructure:"cache"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type API struct {
	Port int `mapstructure:"port"`
}

type Scheduler struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

type Reaper struct {
	Interval time.Duration `mapstructure:"interval"`
	// StaleFactor multiplies the generation timeout of the execution's
	// mode to decide when a running execution is considered stuck.
	StaleFactor int `mapstructure:"stale_factor"`
}

type Retention struct {
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
	MaxAge        time.Duration `mapstructure:"max_age"`
}

type Gemini struct {
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	QuickModel          string        `mapstructure:"quick_model"`
	DeepModel           string        `mapstructure:"deep_model"`
	QuickTimeout        time.Duration `mapstructure:"quick_timeout"`
	DeepTimeout         time.Duration `mapstructure:"deep_timeout"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
	MaxTokenPerMinute   int           `mapstructure:"max_token_per_minute"`
}

type SlackConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	AlertBotToken string        `mapstructure:"alert_bot_token"`
	AlertChatID   string        `mapstructure:"alert_chat_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

func Load() (*Config, error) {
	// Local development keeps secrets in a .env file. Missing file is fine.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("scheduler.tick_interval", time.Minute)
	viper.SetDefault("scheduler.max_concurrency", 4)
	viper.SetDefault("reaper.interval", time.Hour)
	viper.SetDefault("reaper.stale_factor", 2)
	viper.SetDefault("retention.purge_interval", 24*time.Hour)
	viper.SetDefault("retention.max_age", 30*24*time.Hour)
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/models")
	viper.SetDefault("gemini.quick_model", "gemini-2.0-flash")
	viper.SetDefault("gemini.deep_model", "gemini-2.0-flash-exp")
	viper.SetDefault("gemini.quick_timeout", 30*time.Second)
	viper.SetDefault("gemini.deep_timeout", 15*time.Minute)
	viper.SetDefault("gemini.timeout", 30*time.Second)
	viper.SetDefault("gemini.max_request_per_minute", 10)
	viper.SetDefault("gemini.max_token_per_minute", 1000000)
	viper.SetDefault("slack.timeout", 10*time.Second)
	viper.SetDefault("cache.default_expiration", 5*time.Minute)
	viper.SetDefault("cache.cleanup_interval", 10*time.Minute)
}
