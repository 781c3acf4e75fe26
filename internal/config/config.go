package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr   = ":8080"
	defaultDBPath       = "modloader.db"
	defaultResourceRoot = "."
	defaultTaskBudget   = 50 * time.Millisecond

	envListenAddr      = "MODLOADER_LISTEN_ADDR"
	envDBPath          = "MODLOADER_DB_PATH"
	envLogLevel        = "MODLOADER_LOG_LEVEL"
	envBaseURL         = "MODLOADER_BASE_URL"
	envResourceRoot    = "MODLOADER_RESOURCE_ROOT"
	envDebugSources    = "MODLOADER_DEBUG_SOURCES"
	envStrictDefine    = "MODLOADER_STRICT_DEFINE"
	envMaxTaskDuration = "MODLOADER_MAX_TASK_DURATION"
	envReexecution     = "MODLOADER_ALLOW_REEXECUTION"
	envDevAssertions   = "MODLOADER_DEV_ASSERTIONS"
	envLoaderConfig    = "MODLOADER_CONFIG"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// BaseURL is the URL of the empty resource prefix; empty keeps the
	// loader default.
	BaseURL string
	// ResourceRoot is the directory scheme-less resource URLs are read from
	// and the directory served under /resources/.
	ResourceRoot string
	// LoaderConfig is an optional YAML file of loader tables.
	LoaderConfig string

	DebugSources     bool
	StrictDefine     bool
	AllowReexecution bool
	DevAssertions    bool
	MaxTaskDuration  time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DBPath:          defaultDBPath,
		LogLevel:        slog.LevelInfo,
		ResourceRoot:    defaultResourceRoot,
		MaxTaskDuration: defaultTaskBudget,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := os.Getenv(envBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(envResourceRoot); v != "" {
		cfg.ResourceRoot = v
	}
	if v := os.Getenv(envLoaderConfig); v != "" {
		cfg.LoaderConfig = v
	}
	if v := os.Getenv(envMaxTaskDuration); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MaxTaskDuration = d
		}
	}
	cfg.DebugSources = parseBool(os.Getenv(envDebugSources))
	cfg.StrictDefine = parseBool(os.Getenv(envStrictDefine))
	cfg.AllowReexecution = parseBool(os.Getenv(envReexecution))
	cfg.DevAssertions = parseBool(os.Getenv(envDevAssertions))

	return cfg
}

// ParseLogLevel maps a level name to a slog level; unknown names are info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseBool accepts the strconv spellings; anything else is false.
func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
