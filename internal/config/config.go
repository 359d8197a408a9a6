package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env         string
	Port        string
	DatabaseURL string // Postgres URL, or sqlite:<path> for a local file
	RedisURL    string // empty disables the FX cache
	LogLevel    string
	FxCacheTTL  time.Duration
	AutoMigrate bool

	CORSAllowedSuffix string // e.g. .folio.app; empty allows only same-origin and localhost
	HealthAdminKey    string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("FX_CACHE_TTL", "10m")
	viper.SetDefault("AUTO_MIGRATE", true)

	env := viper.GetString("APP_ENV")
	dbURL := viper.GetString("DATABASE_URL")
	if dbURL == "" && env != "production" {
		dbURL = "sqlite:folio.db"
	}

	return &Config{
		Env:         env,
		Port:        viper.GetString("PORT"),
		DatabaseURL: dbURL,
		RedisURL:    viper.GetString("REDIS_URL"),
		LogLevel:    strings.ToLower(viper.GetString("LOG_LEVEL")),
		FxCacheTTL:  viper.GetDuration("FX_CACHE_TTL"),
		AutoMigrate: viper.GetBool("AUTO_MIGRATE"),

		CORSAllowedSuffix: viper.GetString("CORS_ALLOWED_SUFFIX"),
		HealthAdminKey:    viper.GetString("HEALTH_ADMIN_KEY"),
	}, nil
}
