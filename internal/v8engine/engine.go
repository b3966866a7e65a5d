//go:build v8

// Package v8engine runs actions on V8 through v8go. One Engine owns one
// isolate and is driven from a single worker thread.
package v8engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	v8 "github.com/tommie/v8go"

	"github.com/cryguy/titan/internal/actions"
	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/eventloop"
	"github.com/cryguy/titan/internal/jsbridge"
)

// Engine implements core.Engine.
type Engine struct {
	cfg    core.EngineConfig
	log    logr.Logger
	set    *actions.Set
	action string

	iso    *v8.Isolate
	ctx    *v8.Context
	bridge *jsbridge.Bridge
}

var _ core.Engine = (*Engine)(nil)

// NewFactory returns a core.EngineFactory that builds V8 engines with cfg.
func NewFactory(cfg core.EngineConfig, log logr.Logger) core.EngineFactory {
	return func(root string) (core.Engine, error) {
		return New(root, cfg, log)
	}
}

// New loads the actions under root and boots an isolate with them installed.
func New(root string, cfg core.EngineConfig, log logr.Logger) (*Engine, error) {
	set, err := actions.Load(root)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, log: log.WithName("v8"), set: set}
	if err := e.boot(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) boot() error {
	var iso *v8.Isolate
	if e.cfg.MemoryLimitMB > 0 {
		heap := uint64(e.cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heap/2, heap))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)

	bridge, err := jsbridge.New(&v8Runtime{iso: iso, ctx: ctx}, eventloop.New(), e.console)
	if err == nil {
		err = bridge.Install(e.set.Script())
	}
	if err != nil {
		ctx.Close()
		iso.Dispose()
		return err
	}

	e.iso, e.ctx, e.bridge = iso, ctx, bridge
	return nil
}

func (e *Engine) console(level, message string) {
	jsbridge.LogSink(e.log.WithValues("action", e.action))(level, message)
}

func (e *Engine) discard() {
	if e.ctx != nil {
		e.ctx.Close()
	}
	if e.iso != nil {
		e.iso.Dispose()
	}
	e.iso, e.ctx, e.bridge = nil, nil, nil
}

// Execute runs req.Action. Engine-level failures come back as error results.
func (e *Engine) Execute(req *core.Request) (res core.Result) {
	if e.iso == nil {
		if err := e.boot(); err != nil {
			return core.ErrorResult(fmt.Sprintf("engine unavailable: %v", err))
		}
	}
	if e.cfg.MaxBodyBytes > 0 && len(req.Body) > e.cfg.MaxBodyBytes {
		return core.ErrorResult(fmt.Sprintf("request body exceeds %d bytes", e.cfg.MaxBodyBytes))
	}

	timeout := e.cfg.Deadline()
	deadline := time.Now().Add(timeout)
	iso := e.iso
	var timedOut atomic.Bool
	watchdog := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		iso.TerminateExecution()
	})

	e.action = req.Action
	defer func() {
		watchdog.Stop()
		e.action = ""
		if timedOut.Load() {
			e.log.Info("execution timed out, rebuilding isolate", "action", req.Action, "timeout", timeout)
			e.discard()
			res = core.ErrorResult(fmt.Sprintf("execution timed out after %v", timeout))
			if err := e.boot(); err != nil {
				e.log.Error(err, "rebuilding isolate")
			}
		}
	}()

	value, err := e.bridge.Invoke(req, deadline)
	if err != nil {
		if errors.Is(err, jsbridge.ErrAwaitTimeout) {
			timedOut.Store(true)
		}
		return core.ErrorResult(err.Error())
	}
	return core.Result{Value: value}
}

// Close disposes the isolate.
func (e *Engine) Close() error {
	e.discard()
	return nil
}
