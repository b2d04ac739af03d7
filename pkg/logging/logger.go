// Package logging configures the zerolog loggers of the cache proxy.
//
// Setup installs the process-wide logger once at startup; components derive
// their own logger with NewLogger so every line carries a component field.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as accepted by LOG_LEVEL.
type LogLevel string

const (
	LevelTrace LogLevel = "trace"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DefaultService tags every line written by the proxy.
const DefaultService = "payload-cache"

// Config holds logger configuration.
type Config struct {
	Level LogLevel
	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool
	// Output defaults to os.Stderr.
	Output io.Writer
	// Service and Version are attached to every line; an empty Version is omitted.
	Service string
	Version string
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: DefaultService,
	}
}

// Setup installs the global logger described by cfg and returns it.
// Durations are written as fractional milliseconds, matching the
// X-Response-Time header and the proxy access log.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(levelFor(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = false

	var w io.Writer = os.Stderr
	if cfg.Output != nil {
		w = cfg.Output
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	service := cfg.Service
	if service == "" {
		service = DefaultService
	}
	ctx := zerolog.New(w).With().Timestamp().Str("service", service)
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}

	log.Logger = ctx.Logger()
	return log.Logger
}

// levelFor maps a level name onto zerolog. Unknown or empty names log at info.
func levelFor(level LogLevel) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(string(level)))
	if name == "warning" {
		name = string(LevelWarn)
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewLogger derives a logger for component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Levels used across the proxy:
//
//	debug  cache hit/miss with key, TTL and entry size; upstream URLs;
//	       background task completion
//	info   forced refreshes, warming runs, server start and stop
//	warn   Redis failures answered fail-open, undecodable entries,
//	       upstream errors and retry exhaustion, failed refreshes
//	error  background task panics, failed warming passes, config errors
//
// Common fields: component, key, endpoint, status, duration (ms),
// error_class (client, server, network), cache (HIT, MISS, REFRESHED), ttl.
