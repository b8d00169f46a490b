package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                          string        `mapstructure:"PORT"`
	BaseURL                       string        `mapstructure:"BASE_URL"`
	DatabaseDriver                string        `mapstructure:"DATABASE_DRIVER"`
	DatabasePath                  string        `mapstructure:"DATABASE_PATH"`
	DatabaseDSN                   string        `mapstructure:"DATABASE_DSN"`
	DatabaseMaxOpenConns          int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	JWTSecret                     string        `mapstructure:"JWT_SECRET"`
	SessionDurationHours          int           `mapstructure:"SESSION_DURATION_HOURS"`
	DiscordBotToken               string        `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string        `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
	RabbitMQURL                   string        `mapstructure:"RABBITMQ_URL"`
	EventsQueue                   string        `mapstructure:"EVENTS_QUEUE"`
	RedisAddr                     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword                 string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB                       int           `mapstructure:"REDIS_DB"`
	RateLimitCapacity             int           `mapstructure:"RATE_LIMIT_CAPACITY"`
	RateLimitRefillPerSecond      float64       `mapstructure:"RATE_LIMIT_REFILL_PER_SECOND"`
	RateLimitPrefix               string        `mapstructure:"RATE_LIMIT_PREFIX"`
	CompletionSweepInterval       time.Duration `mapstructure:"COMPLETION_SWEEP_INTERVAL"`
	ShutdownTimeout               time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// SessionDuration is how long an issued token stays valid.
func (c *Config) SessionDuration() time.Duration {
	if c.SessionDurationHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.SessionDurationHours) * time.Hour
}

func LoadConfig() *Config {
	// A missing .env is fine, the environment wins anyway.
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded settings from .env")
	}

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("BASE_URL", "http://127.0.0.1:8080")
	viper.SetDefault("DATABASE_DRIVER", "sqlite")
	viper.SetDefault("DATABASE_PATH", "clasedesurf.db")
	viper.SetDefault("DATABASE_DSN", "")
	viper.SetDefault("DATABASE_MAX_OPEN_CONNS", 20)
	viper.SetDefault("SESSION_DURATION_HOURS", 24)
	viper.SetDefault("EVENTS_QUEUE", "reservations.events")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RATE_LIMIT_CAPACITY", 20)
	viper.SetDefault("RATE_LIMIT_REFILL_PER_SECOND", 1.0)
	viper.SetDefault("RATE_LIMIT_PREFIX", "ratelimit")
	viper.SetDefault("COMPLETION_SWEEP_INTERVAL", "15m")
	viper.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	viper.BindEnv("JWT_SECRET")
	viper.BindEnv("DISCORD_BOT_TOKEN")
	viper.BindEnv("DISCORD_NOTIFICATIONS_CHANNEL_ID")
	viper.BindEnv("RABBITMQ_URL")
	viper.BindEnv("REDIS_ADDR")
	viper.BindEnv("REDIS_PASSWORD")

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	if config.JWTSecret == "" {
		log.Printf("JWT_SECRET is empty, every authenticated request will be rejected")
	}

	return &config
}
