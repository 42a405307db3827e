package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	// Client settings.
	ServerURL      string
	StateDir       string
	RefreshEvery   time.Duration
	MessageSecret  string

	// Dev server settings.
	Port          int
	GinMode       string
	SessionSecret string
	TokenExpiry   time.Duration
	CodeExpiry    time.Duration
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		ServerURL:     "http://localhost:5001",
		RefreshEvery:  60 * time.Second,
		MessageSecret: "pingme-super-secret-key-v1",
		Port:          5001,
		GinMode:       "release",
		TokenExpiry:   7 * 24 * time.Hour,
		CodeExpiry:    90 * time.Second,
	}

	if raw := env.Getenv("PINGME_SERVER_URL"); raw != "" {
		cfg.ServerURL = raw
	}

	cfg.StateDir = env.Getenv("PINGME_STATE_DIR")
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".pingme-link")
	}

	if raw := env.Getenv("PINGME_REFRESH_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid PINGME_REFRESH_SECONDS")
		}
		cfg.RefreshEvery = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("PINGME_MESSAGE_SECRET"); raw != "" {
		cfg.MessageSecret = raw
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.SessionSecret = env.Getenv("PINGME_SESSION_SECRET")

	if raw := env.Getenv("PINGME_TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid PINGME_TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("PINGME_CODE_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid PINGME_CODE_EXPIRY_SECONDS")
		}
		cfg.CodeExpiry = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}
