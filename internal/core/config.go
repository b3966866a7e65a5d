package core

import "time"

// EngineConfig holds the settings every engine instance is built with.
type EngineConfig struct {
	MemoryLimitMB int           // per-engine heap limit, 0 for none
	ExecTimeout   time.Duration // wall clock budget for one action, 0 for none
	MaxBodyBytes  int           // bodies above this size are rejected by the engine, 0 for none
}

// DefaultExecTimeout is used when EngineConfig.ExecTimeout is zero and the
// engine still needs a deadline for draining timers.
const DefaultExecTimeout = 30 * time.Second

// Deadline returns the execution budget, falling back to DefaultExecTimeout.
func (c EngineConfig) Deadline() time.Duration {
	if c.ExecTimeout <= 0 {
		return DefaultExecTimeout
	}
	return c.ExecTimeout
}
