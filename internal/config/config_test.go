package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

var allEnv = []string{
	envRoot, envListenAddr, envThreads, envQueueMultiplier, envRestartWorkers,
	envPinCPUs, envExecTimeoutMS, envMemoryLimitMB, envMaxBodyBytes,
	envJournalPath, envLogLevel, envLogDev,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnv {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	assert.Equal(t, Config{
		Root:            ".",
		ListenAddr:      ":3000",
		Threads:         runtime.NumCPU(),
		QueueMultiplier: 2000,
		RestartWorkers:  true,
		ExecTimeout:     30 * time.Second,
		MaxBodyBytes:    10 << 20,
		LogLevel:        zapcore.InfoLevel,
	}, Load())
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envRoot, "/srv/app")
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envThreads, "3")
	t.Setenv(envQueueMultiplier, "10")
	t.Setenv(envRestartWorkers, "false")
	t.Setenv(envPinCPUs, "1")
	t.Setenv(envExecTimeoutMS, "250")
	t.Setenv(envMemoryLimitMB, "64")
	t.Setenv(envMaxBodyBytes, "1024")
	t.Setenv(envJournalPath, "/tmp/j.db")
	t.Setenv(envLogLevel, "DEBUG")
	t.Setenv(envLogDev, "true")

	assert.Equal(t, Config{
		Root:            "/srv/app",
		ListenAddr:      ":9090",
		Threads:         3,
		QueueMultiplier: 10,
		RestartWorkers:  false,
		PinCPUs:         true,
		ExecTimeout:     250 * time.Millisecond,
		MemoryLimitMB:   64,
		MaxBodyBytes:    1024,
		JournalPath:     "/tmp/j.db",
		LogLevel:        zapcore.DebugLevel,
		LogDev:          true,
	}, Load())
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(envThreads, "zero")
	t.Setenv(envQueueMultiplier, "-5")
	t.Setenv(envRestartWorkers, "maybe")
	t.Setenv(envExecTimeoutMS, "0")
	t.Setenv(envMemoryLimitMB, "-1")

	cfg := Load()
	assert.Equal(t, runtime.NumCPU(), cfg.Threads)
	assert.Equal(t, 2000, cfg.QueueMultiplier)
	assert.True(t, cfg.RestartWorkers)
	assert.Equal(t, 30*time.Second, cfg.ExecTimeout)
	assert.Zero(t, cfg.MemoryLimitMB)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"Warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}
