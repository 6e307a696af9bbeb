package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	corelogger "github.com/kilianp07/farmbridge/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Config selects the process-wide logging backend.
type Config struct {
	// Level is debug, info, warn or error.
	Level string `json:"level"`
	// Format is json or console. Empty means console when APP_ENV=dev,
	// json otherwise.
	Format string `json:"format"`
	// Backend is zerolog or logrus.
	Backend string `json:"backend"`
}

var (
	mu      sync.RWMutex
	current = Config{Level: "info", Backend: "zerolog"}
	output  io.Writer = os.Stdout
)

// Configure validates cfg and applies it to loggers created afterwards.
func Configure(cfg Config) error {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Backend == "" {
		cfg.Backend = "zerolog"
	}
	if _, ok := levels[strings.ToLower(cfg.Level)]; !ok {
		return fmt.Errorf("unknown log level %q", cfg.Level)
	}
	switch cfg.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	switch cfg.Backend {
	case "zerolog", "logrus":
	default:
		return fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// SetOutput redirects loggers created afterwards.
func SetOutput(w io.Writer) {
	mu.Lock()
	output = w
	mu.Unlock()
}

func settings() (Config, io.Writer) {
	mu.RLock()
	defer mu.RUnlock()
	cfg := current
	if cfg.Format == "" {
		cfg.Format = "json"
		if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
			cfg.Format = "console"
		}
	}
	return cfg, output
}

type level int

const (
	debugLevel level = iota
	infoLevel
	warnLevel
	errorLevel
)

var levels = map[string]level{
	"debug": debugLevel,
	"info":  infoLevel,
	"warn":  warnLevel,
	"error": errorLevel,
}

// New returns a Logger for the given component using the configured backend.
func New(component string) Logger {
	cfg, w := settings()
	lvl := levels[strings.ToLower(cfg.Level)]
	if cfg.Backend == "logrus" {
		return newLogrusLogger(component, cfg.Format, lvl, w)
	}
	return newZerologLogger(component, cfg.Format, lvl, w)
}
