package pool

import (
	"runtime"
	"time"

	"github.com/go-logr/logr"
)

// DefaultQueueMultiplier sets the dispatch queue depth per worker thread.
const DefaultQueueMultiplier = 2000

// DefaultThreadName prefixes OS thread names where the platform supports it.
const DefaultThreadName = "titan-worker"

// RestartPolicy decides what happens to a worker slot after its engine
// panicked.
type RestartPolicy int

const (
	// RestartAlways replaces a crashed worker with a fresh thread and engine.
	RestartAlways RestartPolicy = iota
	// RestartNever leaves the slot empty; the pool keeps running with one
	// thread less until the process restarts.
	RestartNever
)

func (p RestartPolicy) String() string {
	if p == RestartNever {
		return "never"
	}
	return "always"
}

// Execution outcomes reported to the Observer.
const (
	OutcomeDelivered = "delivered" // result handed to a waiting caller
	OutcomeDiscarded = "discarded" // caller had already given up
	OutcomeFailed    = "failed"    // action returned an error result
	OutcomePanicked  = "panicked"  // engine panicked, caller got ErrExecutionChannelClosed
)

// Observer receives pool events. Implementations must be safe for concurrent
// use; they are called from worker threads.
type Observer interface {
	ObserveExecution(outcome string, d time.Duration)
	ObserveWorkerStarted(id int)
	ObserveWorkerExited(id int, crashed bool)
}

type nopObserver struct{}

func (nopObserver) ObserveExecution(string, time.Duration) {}
func (nopObserver) ObserveWorkerStarted(int)               {}
func (nopObserver) ObserveWorkerExited(int, bool)          {}

type options struct {
	threads         int
	queueMultiplier int
	logger          logr.Logger
	restart         RestartPolicy
	observer        Observer
	pinCPUs         bool
	threadName      string
}

func defaultOptions() options {
	return options{
		threads:         runtime.NumCPU(),
		queueMultiplier: DefaultQueueMultiplier,
		logger:          logr.Discard(),
		restart:         RestartAlways,
		observer:        nopObserver{},
		threadName:      DefaultThreadName,
	}
}

// Option configures a Manager.
type Option func(*options)

// WithThreads sets the number of worker threads. Values below 1 are ignored.
func WithThreads(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threads = n
		}
	}
}

// WithQueueMultiplier sets the queue depth per thread. Values below 1 are ignored.
func WithQueueMultiplier(m int) Option {
	return func(o *options) {
		if m > 0 {
			o.queueMultiplier = m
		}
	}
}

// WithLogger sets the logger used for lifecycle and failure events.
func WithLogger(l logr.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRestartPolicy sets the crashed-worker policy.
func WithRestartPolicy(p RestartPolicy) Option {
	return func(o *options) { o.restart = p }
}

// WithObserver installs an event sink, typically Prometheus collectors.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithCPUPinning pins worker i to CPU i modulo NumCPU. Linux only; a no-op
// elsewhere.
func WithCPUPinning(enabled bool) Option {
	return func(o *options) { o.pinCPUs = enabled }
}

// WithThreadName sets the OS thread name prefix ("<prefix>-<index>").
func WithThreadName(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.threadName = prefix
		}
	}
}
