package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends supported by the document repository.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds runtime configuration values for the store service.
type Config struct {
	AppName       string
	AppEnv        string
	AppPort       string
	StoreBackend  string
	DatabaseURL   string
	RedisURL      string
	NATSURL       string
	ChannelBase   string
	JWTSecret     string
	BodyLimit     int
	RateLimit     int
	RateWindow    time.Duration
	AllowOrigins  string
	ShutdownGrace time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JUDGING")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Judging Store")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("store.backend", BackendRedis)
	v.SetDefault("channel.base", "judging")
	v.SetDefault("body_limit", 1<<20)
	v.SetDefault("rate.limit", 120)
	v.SetDefault("rate.window", "1m")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("shutdown_grace", "10s")

	window, err := time.ParseDuration(v.GetString("rate.window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid rate window: %w", err)
	}

	grace, err := time.ParseDuration(v.GetString("shutdown_grace"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid shutdown grace: %w", err)
	}

	cfg := Config{
		AppName:       v.GetString("app.name"),
		AppEnv:        v.GetString("app.env"),
		AppPort:       v.GetString("app.port"),
		StoreBackend:  strings.ToLower(v.GetString("store.backend")),
		DatabaseURL:   v.GetString("database.url"),
		RedisURL:      v.GetString("redis.url"),
		NATSURL:       v.GetString("nats.url"),
		ChannelBase:   v.GetString("channel.base"),
		JWTSecret:     v.GetString("jwt.secret"),
		BodyLimit:     v.GetInt("body_limit"),
		RateLimit:     v.GetInt("rate.limit"),
		RateWindow:    window,
		AllowOrigins:  v.GetString("cors.origins"),
		ShutdownGrace: grace,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis url must be provided for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database url must be provided for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}

	if c.BodyLimit <= 0 {
		return fmt.Errorf("body limit must be positive")
	}

	return nil
}
