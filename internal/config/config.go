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
	HTTPAddr string

	RedisURL      string
	DatabaseURL   string
	ArchiveBucket string

	RelayBaseURL string
	RelayMode    string
	RelayDryRun  bool

	PairingInterval   time.Duration
	MenuTimeout       time.Duration
	RequeueDelay      time.Duration
	FirstMoveGrace    time.Duration
	CalendarInterval  time.Duration
	LifecycleInterval time.Duration
	ChallengeTTL      time.Duration
	RematchWindow     time.Duration

	MessagesDir    string
	AllowedOrigins []string
	CreatorIDs     []string
}

// Load reads an optional .env file and then the environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the config from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:          ":8080",
		RelayMode:         "off",
		PairingInterval:   3 * time.Second,
		MenuTimeout:       15 * time.Second,
		RequeueDelay:      5 * time.Second,
		FirstMoveGrace:    20 * time.Second,
		CalendarInterval:  time.Minute,
		LifecycleInterval: 5 * time.Second,
		ChallengeTTL:      time.Minute,
		RematchWindow:     5 * time.Minute,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ArchiveBucket = strings.TrimSpace(os.Getenv("ARCHIVE_BUCKET"))

	cfg.RelayBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("RELAY_BASE_URL")), "/")
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("RELAY_MODE"))); v != "" {
		cfg.RelayMode = v
	}
	if v := strings.TrimSpace(os.Getenv("RELAY_DRYRUN")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RelayDryRun = b
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PAIRING_INTERVAL", &cfg.PairingInterval},
		{"MENU_TIMEOUT", &cfg.MenuTimeout},
		{"REQUEUE_DELAY", &cfg.RequeueDelay},
		{"FIRST_MOVE_GRACE", &cfg.FirstMoveGrace},
		{"CALENDAR_INTERVAL", &cfg.CalendarInterval},
		{"LIFECYCLE_INTERVAL", &cfg.LifecycleInterval},
		{"CHALLENGE_TTL", &cfg.ChallengeTTL},
		{"REMATCH_WINDOW", &cfg.RematchWindow},
	}
	for _, d := range durations {
		if v := strings.TrimSpace(os.Getenv(d.key)); v != "" {
			if parsed, ok := parseDuration(v); ok {
				*d.dst = parsed
			}
		}
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	cfg.CreatorIDs = splitList(os.Getenv("CREATOR_IDS"))

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.RelayMode {
	case "off", "http":
	default:
		return nil, errors.New("RELAY_MODE must be http or off")
	}
	if cfg.RelayMode == "http" && cfg.RelayBaseURL == "" {
		return nil, errors.New("RELAY_BASE_URL is required when RELAY_MODE=http")
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("3s") or bare seconds ("3").
func parseDuration(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
