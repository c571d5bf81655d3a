package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"activity/discordoauth"

	"github.com/joho/godotenv"
)

var ErrMissingClientID = errors.New("DISCORD_CLIENT_ID must be set")

type Config struct {
	ClientID     string
	ClientSecret string

	// PublicURL is where Discord and the browser reach this server.
	PublicURL   string
	ListenAddr  string
	PostgresURL string
	JaegerURL   string
	Environment string
	Scopes      []string

	ReadyTimeout    time.Duration
	RefreshInterval time.Duration
}

// Load reads .env files (when present) and the environment. Variables
// already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := Config{
		ClientID:     firstEnv("DISCORD_CLIENT_ID", "VITE_DISCORD_CLIENT_ID"),
		ClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
		PublicURL:    strings.TrimRight(envOr("PUBLIC_URL", "http://localhost:9000"), "/"),
		ListenAddr:   envOr("LISTEN_ADDR", ":9000"),
		PostgresURL:  os.Getenv("POSTGRESQL_URL"),
		JaegerURL:    os.Getenv("JAEGER_URL"),
		Environment:  envOr("ENVIRONMENT", "dev"),
		Scopes:       discordoauth.ParseScopes(os.Getenv("DISCORD_SCOPES")),
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = discordoauth.DefaultScopes
	}

	var err error
	if cfg.ReadyTimeout, err = durationEnv("SDK_READY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RefreshInterval, err = durationEnv("TOKEN_REFRESH_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}

	if cfg.ClientID == "" {
		return Config{}, ErrMissingClientID
	}
	return cfg, nil
}

// RedirectURL is the OAuth callback registered with Discord.
func (c Config) RedirectURL() string {
	return c.PublicURL + "/oauth/callback"
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
