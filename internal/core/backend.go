package core

// Engine is the execution capability owned by a single worker thread. An
// Engine is created by an EngineFactory on the thread that will drive it and
// must never be handed to another goroutine. Implementations need no locking.
type Engine interface {
	// Execute runs one action to completion and returns its result. Failures
	// of the action itself are reported inside the Result (see ErrorResult).
	Execute(req *Request) Result

	// Close releases the engine. It is called on the owning thread.
	Close() error
}

// EngineFactory builds a fresh engine from the project root. It is invoked
// once per worker thread, on that thread.
type EngineFactory func(root string) (Engine, error)

// WorkerState is the lifecycle state of a pool worker.
type WorkerState int32

const (
	StateInitializing WorkerState = iota
	StateIdle
	StateExecuting
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
