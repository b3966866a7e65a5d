// Package titan runs JavaScript actions on a fixed pool of OS-locked engine
// threads. QuickJS is the default engine; build with -tags v8 for V8.
package titan

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/pool"
)

// Type aliases re-exporting the internal types callers need, so they never
// import internal packages directly.
type (
	Manager       = pool.Manager
	Option        = pool.Option
	Stats         = pool.Stats
	WorkerStats   = pool.WorkerStats
	Observer      = pool.Observer
	RestartPolicy = pool.RestartPolicy

	Invocation   = core.Invocation
	Request      = core.Request
	Result       = core.Result
	Pair         = core.Pair
	Pairs        = core.Pairs
	Engine       = core.Engine
	EngineConfig = core.EngineConfig
)

const (
	RestartAlways = pool.RestartAlways
	RestartNever  = pool.RestartNever
)

var (
	ErrDispatchUnavailable    = core.ErrDispatchUnavailable
	ErrExecutionChannelClosed = core.ErrExecutionChannelClosed
	ErrEngineInit             = core.ErrEngineInit
)

var (
	WithThreads         = pool.WithThreads
	WithQueueMultiplier = pool.WithQueueMultiplier
	WithLogger          = pool.WithLogger
	WithRestartPolicy   = pool.WithRestartPolicy
	WithObserver        = pool.WithObserver
	WithCPUPinning      = pool.WithCPUPinning
	WithThreadName      = pool.WithThreadName

	NewHeaders  = core.NewHeaders
	NewParams   = core.NewParams
	NewQuery    = core.NewQuery
	ErrorResult = core.ErrorResult
)

// EngineName reports which JS engine this binary was built with.
const EngineName = engineName

// New starts a Manager serving the actions under root/actions. It blocks
// until every worker has built its engine, and fails if any could not.
func New(ctx context.Context, root string, cfg EngineConfig, log logr.Logger, opts ...Option) (*Manager, error) {
	opts = append([]Option{pool.WithLogger(log)}, opts...)
	return pool.New(ctx, root, newFactory(cfg, log), opts...)
}
