//go:build !v8

// Package quickjs runs actions on the pure-Go QuickJS port. One Engine owns
// one VM and is driven from a single worker thread.
package quickjs

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"modernc.org/quickjs"

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
	action string // action currently running, for console tagging

	vm     *quickjs.VM
	bridge *jsbridge.Bridge
}

var _ core.Engine = (*Engine)(nil)

// NewFactory returns a core.EngineFactory that builds QuickJS engines with
// cfg. Console output from actions goes to log.
func NewFactory(cfg core.EngineConfig, log logr.Logger) core.EngineFactory {
	return func(root string) (core.Engine, error) {
		return New(root, cfg, log)
	}
}

// New loads the actions under root and boots a VM with them installed.
func New(root string, cfg core.EngineConfig, log logr.Logger) (*Engine, error) {
	set, err := actions.Load(root)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, log: log.WithName("quickjs"), set: set}
	if err := e.boot(); err != nil {
		return nil, err
	}
	return e, nil
}

// boot creates a fresh VM and installs the bridge and action bundle.
func (e *Engine) boot() error {
	vm, err := quickjs.NewVM()
	if err != nil {
		return fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if e.cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(e.cfg.MemoryLimitMB) * 1024 * 1024)
	}

	rt, err := newRuntime(vm)
	if err != nil {
		vm.Close()
		return fmt.Errorf("preparing runtime: %w", err)
	}
	bridge, err := jsbridge.New(rt, eventloop.New(), e.console)
	if err != nil {
		vm.Close()
		return err
	}
	if err := bridge.Install(e.set.Script()); err != nil {
		vm.Close()
		return err
	}

	e.vm, e.bridge = vm, bridge
	return nil
}

func (e *Engine) console(level, message string) {
	jsbridge.LogSink(e.log.WithValues("action", e.action))(level, message)
}

// discard closes the current VM. A VM that was interrupted mid-script is not
// reused.
func (e *Engine) discard() {
	if e.vm != nil {
		e.vm.Close()
	}
	e.vm, e.bridge = nil, nil
}

// Execute runs req.Action. Engine-level failures come back as error results.
func (e *Engine) Execute(req *core.Request) (res core.Result) {
	if e.vm == nil {
		if err := e.boot(); err != nil {
			return core.ErrorResult(fmt.Sprintf("engine unavailable: %v", err))
		}
	}
	if e.cfg.MaxBodyBytes > 0 && len(req.Body) > e.cfg.MaxBodyBytes {
		return core.ErrorResult(fmt.Sprintf("request body exceeds %d bytes", e.cfg.MaxBodyBytes))
	}

	timeout := e.cfg.Deadline()
	deadline := time.Now().Add(timeout)
	vm := e.vm
	var timedOut atomic.Bool
	watchdog := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		vm.Interrupt()
	})

	e.action = req.Action
	defer func() {
		watchdog.Stop()
		e.action = ""
		if timedOut.Load() {
			if r := recover(); r != nil {
				e.log.V(1).Info("recovered interrupted script", "panic", r)
			}
			e.log.Info("execution timed out, rebuilding VM", "action", req.Action, "timeout", timeout)
			e.discard()
			res = core.ErrorResult(fmt.Sprintf("execution timed out after %v", timeout))
			if err := e.boot(); err != nil {
				e.log.Error(err, "rebuilding VM")
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

// Close releases the VM.
func (e *Engine) Close() error {
	e.discard()
	return nil
}
