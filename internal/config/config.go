package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the chatroom service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	RedisURL     string
	NATSURL      string
	EventChannel string

	SweepInterval       time.Duration
	LastMessageCacheTTL time.Duration

	PublicMessageLimit       int
	PrivateMessageLimit      int
	PrivateInactivityTimeout time.Duration
	AwayIdleTimeout          time.Duration
	OfflineIdleTimeout       time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CHATROOM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Chatroom API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("event.channel", "chatroom")
	v.SetDefault("sweep.interval", "1m")
	v.SetDefault("cache.last_message_ttl", "30m")
	v.SetDefault("limits.public_messages", 500)
	v.SetDefault("limits.private_messages", 50)
	v.SetDefault("timeouts.private_inactivity", "6h")
	v.SetDefault("timeouts.away_idle", "5m")
	v.SetDefault("timeouts.offline_idle", "15m")

	sweep, err := time.ParseDuration(v.GetString("sweep.interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid sweep interval: %w", err)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("cache.last_message_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid last message cache ttl: %w", err)
	}

	inactivity, err := time.ParseDuration(v.GetString("timeouts.private_inactivity"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid private inactivity timeout: %w", err)
	}

	awayIdle, err := time.ParseDuration(v.GetString("timeouts.away_idle"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid away idle timeout: %w", err)
	}

	offlineIdle, err := time.ParseDuration(v.GetString("timeouts.offline_idle"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid offline idle timeout: %w", err)
	}

	cfg := Config{
		AppName:                  v.GetString("app.name"),
		AppEnv:                   v.GetString("app.env"),
		AppPort:                  v.GetString("app.port"),
		RedisURL:                 v.GetString("redis.url"),
		NATSURL:                  v.GetString("nats.url"),
		EventChannel:             v.GetString("event.channel"),
		SweepInterval:            sweep,
		LastMessageCacheTTL:      cacheTTL,
		PublicMessageLimit:       v.GetInt("limits.public_messages"),
		PrivateMessageLimit:      v.GetInt("limits.private_messages"),
		PrivateInactivityTimeout: inactivity,
		AwayIdleTimeout:          awayIdle,
		OfflineIdleTimeout:       offlineIdle,
	}

	if cfg.PublicMessageLimit <= 0 {
		cfg.PublicMessageLimit = 500
	}

	if cfg.PrivateMessageLimit <= 0 {
		cfg.PrivateMessageLimit = 50
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return cfg, nil
}
