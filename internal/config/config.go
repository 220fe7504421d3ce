package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries the runtime configuration for the OAuth subsystem.
type Config struct {
	ListenAddr        string
	DatabasePath      string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SessionSecret     string
	SessionCookieName string
	LoginURL          string
	DefaultLogoURL    string
	DefaultAvatarURL  string
	LogoDir           string
	LogoBaseURL       string
}

// Load reads configuration from the environment, honoring a local .env
// file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DatabasePath:      getEnv("DATABASE_PATH", "classroom-oauth.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getInt("REDIS_DB", 0),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "classroom_session"),
		LoginURL:          getEnv("LOGIN_URL", "/login"),
		DefaultLogoURL:    getEnv("DEFAULT_LOGO_URL", "/static/oauth-app-logo.png"),
		DefaultAvatarURL:  getEnv("DEFAULT_AVATAR_URL", "/static/default-avatar.png"),
		LogoDir:           getEnv("LOGO_DIR", "./uploads/logos"),
		LogoBaseURL:       getEnv("LOGO_BASE_URL", "/uploads/logos"),
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
