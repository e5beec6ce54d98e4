package config

import (
	"log"
	"time"

	"github.com/spf13/viper"

	"crew-orchestrator/pkg/postgres"
	"crew-orchestrator/pkg/redis"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Runner   RunnerConfig    `mapstructure:"runner"`
	Webhook  WebhookConfig   `mapstructure:"webhook"`
	Stream   StreamConfig    `mapstructure:"stream"`
	Telegram TelegramConfig  `mapstructure:"telegram"`
	Database postgres.Config `mapstructure:"database"`
	Redis    redis.Config    `mapstructure:"redis"`
	Log      LogConfig       `mapstructure:"log"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Port    string
	Env     string
	BaseURL string
}

// RunnerConfig configures the external crew runner client.
type RunnerConfig struct {
	BaseURL             string
	BearerToken         string
	RequestTimeout      time.Duration
	MaxRequestPerMinute int
}

// WebhookConfig configures the inbound callbacks the runner calls back on.
// SecretToken must differ from any user session credential.
type WebhookConfig struct {
	SecretToken string
}

type StreamConfig struct {
	MaxConnectionsPerUser int
	HeartbeatInterval     time.Duration
}

// TelegramConfig configures the optional reviewer notifier. Leaving the bot
// token empty disables it.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Failed to read config file .env config try read from environment variables")
	}

	viper.SetDefault("STREAM_MAX_CONNECTIONS_PER_USER", 3)
	viper.SetDefault("STREAM_HEARTBEAT_INTERVAL", 30*time.Second)
	viper.SetDefault("RUNNER_REQUEST_TIMEOUT", 30*time.Second)

	config := &Config{
		Server: ServerConfig{
			Port:    viper.GetString("PORT"),
			Env:     viper.GetString("ENV"),
			BaseURL: viper.GetString("API_BASE_URL"),
		},
		Runner: RunnerConfig{
			BaseURL:             viper.GetString("RUNNER_API_URL"),
			BearerToken:         viper.GetString("RUNNER_BEARER_TOKEN"),
			RequestTimeout:      viper.GetDuration("RUNNER_REQUEST_TIMEOUT"),
			MaxRequestPerMinute: viper.GetInt("RUNNER_MAX_REQUEST_PER_MINUTE"),
		},
		Webhook: WebhookConfig{
			SecretToken: viper.GetString("WEBHOOK_SECRET_TOKEN"),
		},
		Stream: StreamConfig{
			MaxConnectionsPerUser: viper.GetInt("STREAM_MAX_CONNECTIONS_PER_USER"),
			HeartbeatInterval:     viper.GetDuration("STREAM_HEARTBEAT_INTERVAL"),
		},
		Telegram: TelegramConfig{
			BotToken: viper.GetString("TELEGRAM_BOT_TOKEN"),
			ChatID:   viper.GetInt64("TELEGRAM_CHAT_ID"),
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
		Database: postgres.Config{
			Host:            viper.GetString("DATABASE_HOST"),
			Port:            viper.GetInt("DATABASE_PORT"),
			User:            viper.GetString("DATABASE_USER"),
			Password:        viper.GetString("DATABASE_PASSWORD"),
			DBName:          viper.GetString("DATABASE_NAME"),
			SSLMode:         viper.GetString("DATABASE_SSL_MODE"),
			TimeZone:        viper.GetString("DATABASE_TIME_ZONE"),
			MaxIdleConns:    viper.GetInt("DATABASE_MAX_IDLE_CONNS"),
			MaxOpenConns:    viper.GetInt("DATABASE_MAX_OPEN_CONNS"),
			ConnMaxLifetime: viper.GetString("DATABASE_CONN_MAX_LIFETIME"),
			LogLevel:        viper.GetString("DATABASE_LOG_LEVEL"),
		},
		Redis: redis.Config{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetInt("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
		},
	}

	return config, nil
}
