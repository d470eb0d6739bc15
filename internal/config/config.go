package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	WSAddr  string
	APIAddr string

	DatabaseURL string
	RedisURL    string

	// DevOrganizerToken enables the static organizer verifier when Redis is not configured.
	DevOrganizerToken string
	DevOrganizerID    string

	StoreTimeout    time.Duration
	RetentionTTL    time.Duration
	SweepInterval   time.Duration
	ResultsCacheTTL time.Duration
	ShutdownGrace   time.Duration

	SendQueue       int
	MaxMessageBytes int64
	AllowedOrigins  []string
	MessagesDir     string
}

// Load reads the environment, after applying an optional .env file (ARENA_ENV_FILE or ./.env).
func Load() (*AppConfig, error) {
	loadDotEnv()

	cfg := &AppConfig{
		WSAddr:          ":8080",
		APIAddr:         ":8081",
		DevOrganizerID:  "dev-organizer",
		StoreTimeout:    5 * time.Second,
		RetentionTTL:    30 * time.Minute,
		SweepInterval:   time.Minute,
		ResultsCacheTTL: 24 * time.Hour,
		ShutdownGrace:   10 * time.Second,
		SendQueue:       64,
		MaxMessageBytes: 64 << 10,
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_API_ADDR")); v != "" {
		cfg.APIAddr = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DevOrganizerToken = strings.TrimSpace(os.Getenv("ARENA_DEV_ORGANIZER_TOKEN"))
	if v := strings.TrimSpace(os.Getenv("ARENA_DEV_ORGANIZER_ID")); v != "" {
		cfg.DevOrganizerID = v
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("ARENA_MESSAGES_DIR"))

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ARENA_STORE_TIMEOUT", &cfg.StoreTimeout},
		{"ARENA_RETENTION_TTL", &cfg.RetentionTTL},
		{"ARENA_SWEEP_INTERVAL", &cfg.SweepInterval},
		{"ARENA_RESULTS_CACHE_TTL", &cfg.ResultsCacheTTL},
		{"ARENA_SHUTDOWN_GRACE", &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		if v := strings.TrimSpace(os.Getenv(d.key)); v != "" {
			if parsed, err := parseDuration(v); err == nil && parsed > 0 {
				*d.dst = parsed
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_SEND_QUEUE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendQueue = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_MAX_MESSAGE_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxMessageBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if cfg.RedisURL == "" && cfg.DevOrganizerToken == "" {
		return nil, errors.New("REDIS_URL or ARENA_DEV_ORGANIZER_TOKEN is required")
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("90s") or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func loadDotEnv() {
	path := strings.TrimSpace(os.Getenv("ARENA_ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	// existing environment wins over the file
	_ = godotenv.Load(path)
}
