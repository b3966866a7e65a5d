// Package config reads process settings from the environment.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	defaultRoot            = "."
	defaultListenAddr      = ":3000"
	defaultQueueMultiplier = 2000
	defaultExecTimeout     = 30 * time.Second
	defaultMaxBodyBytes    = 10 << 20

	envRoot            = "TITAN_ROOT"
	envListenAddr      = "TITAN_LISTEN_ADDR"
	envThreads         = "TITAN_THREADS"
	envQueueMultiplier = "TITAN_QUEUE_MULTIPLIER"
	envRestartWorkers  = "TITAN_RESTART_WORKERS"
	envPinCPUs         = "TITAN_PIN_CPUS"
	envExecTimeoutMS   = "TITAN_EXEC_TIMEOUT_MS"
	envMemoryLimitMB   = "TITAN_MEMORY_LIMIT_MB"
	envMaxBodyBytes    = "TITAN_MAX_BODY_BYTES"
	envJournalPath     = "TITAN_JOURNAL_PATH"
	envLogLevel        = "TITAN_LOG_LEVEL"
	envLogDev          = "TITAN_LOG_DEV"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Root            string
	ListenAddr      string
	Threads         int
	QueueMultiplier int
	RestartWorkers  bool
	PinCPUs         bool
	ExecTimeout     time.Duration
	MemoryLimitMB   int
	MaxBodyBytes    int
	JournalPath     string // empty disables the journal
	LogLevel        zapcore.Level
	LogDev          bool
}

// Load reads configuration from environment variables with defaults.
// Unparseable or out-of-range values fall back to the default.
func Load() Config {
	cfg := Config{
		Root:            defaultRoot,
		ListenAddr:      defaultListenAddr,
		Threads:         runtime.NumCPU(),
		QueueMultiplier: defaultQueueMultiplier,
		RestartWorkers:  true,
		ExecTimeout:     defaultExecTimeout,
		MaxBodyBytes:    defaultMaxBodyBytes,
		LogLevel:        zapcore.InfoLevel,
	}

	if v := os.Getenv(envRoot); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	cfg.Threads = positiveInt(envThreads, cfg.Threads)
	cfg.QueueMultiplier = positiveInt(envQueueMultiplier, cfg.QueueMultiplier)
	cfg.RestartWorkers = boolean(envRestartWorkers, cfg.RestartWorkers)
	cfg.PinCPUs = boolean(envPinCPUs, cfg.PinCPUs)
	cfg.ExecTimeout = time.Duration(positiveInt(envExecTimeoutMS, int(cfg.ExecTimeout/time.Millisecond))) * time.Millisecond
	cfg.MemoryLimitMB = nonNegativeInt(envMemoryLimitMB, cfg.MemoryLimitMB)
	cfg.MaxBodyBytes = positiveInt(envMaxBodyBytes, cfg.MaxBodyBytes)
	cfg.JournalPath = os.Getenv(envJournalPath)
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.LogDev = boolean(envLogDev, cfg.LogDev)

	return cfg
}

func positiveInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func nonNegativeInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func boolean(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func parseLogLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
