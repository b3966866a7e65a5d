package pool

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/cryguy/titan/internal/core"
)

// worker is one OS thread and the engine it owns. The engine is a local
// variable of run and is never stored where another goroutine could reach it.
type worker struct {
	id       int
	m        *Manager
	log      logr.Logger
	state    atomic.Int32
	executed atomic.Uint64
}

func (w *worker) setState(s core.WorkerState) { w.state.Store(int32(s)) }

func (w *worker) State() core.WorkerState { return core.WorkerState(w.state.Load()) }

// run is the worker goroutine. It locks itself to an OS thread and never
// unlocks it, so the thread exits together with the goroutine and any
// thread-local engine state dies with it.
//
// ready, when non-nil, receives exactly one value: nil once the engine is up,
// or the initialization error.
func (w *worker) run(ready chan<- error) {
	runtime.LockOSThread()
	defer w.m.wg.Done()

	w.setState(core.StateInitializing)
	if err := nameThread(fmt.Sprintf("%s-%d", w.m.opts.threadName, w.id)); err != nil {
		w.log.V(1).Info("naming thread failed", "error", err)
	}
	if w.m.opts.pinCPUs {
		if err := pinThread(w.id); err != nil {
			w.log.Error(err, "pinning thread")
		}
	}

	eng, err := w.m.factory(w.m.root)
	if err != nil {
		err = fmt.Errorf("%w: worker %d: %v", core.ErrEngineInit, w.id, err)
		w.setState(core.StateTerminated)
		if ready != nil {
			ready <- err
		} else {
			w.log.Error(err, "replacement engine failed to start")
		}
		w.m.workerExited(w, false)
		return
	}
	if ready != nil {
		ready <- nil
	}
	w.m.opts.observer.ObserveWorkerStarted(w.id)
	w.log.V(1).Info("worker started")

	crashed := w.loop(eng)

	w.closeEngine(eng)
	w.setState(core.StateTerminated)
	w.m.workerExited(w, crashed)
}

// loop takes commands until the queue is closed and drained, or until an
// execution panics.
func (w *worker) loop(eng core.Engine) (crashed bool) {
	w.setState(core.StateIdle)
	for cmd := range w.m.queue {
		if !w.execute(eng, cmd) {
			return true
		}
	}
	return false
}

// execute runs one command on eng. It returns false if the engine panicked,
// in which case the command's reply has been abandoned and the engine must
// not be used again.
func (w *worker) execute(eng core.Engine, cmd *command) (ok bool) {
	w.setState(core.StateExecuting)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			w.m.failed.Add(1)
			w.m.opts.observer.ObserveExecution(OutcomePanicked, time.Since(start))
			w.log.Error(fmt.Errorf("%v", r), "engine panicked, dropping worker",
				"action", cmd.req.Action, "stack", string(debug.Stack()))
			cmd.reply.abandon()
			ok = false
		}
	}()

	res := eng.Execute(&cmd.req)
	res.Worker = w.id
	res.Duration = time.Since(start)

	outcome := OutcomeDelivered
	if _, isErr := res.IsError(); isErr {
		outcome = OutcomeFailed
	}
	if cmd.reply.abandoned() {
		outcome = OutcomeDiscarded
	}
	w.executed.Add(1)
	w.m.completed.Add(1)
	w.m.opts.observer.ObserveExecution(outcome, res.Duration)
	w.log.V(1).Info("executed", "action", cmd.req.Action, "duration", res.Duration, "outcome", outcome)

	// Counters and state are settled before the caller wakes up.
	w.setState(core.StateIdle)
	if !cmd.reply.deliver(res) {
		w.log.Error(nil, "reply already used", "action", cmd.req.Action)
	}
	return true
}

func (w *worker) closeEngine(eng core.Engine) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error(fmt.Errorf("%v", r), "engine panicked while closing")
		}
	}()
	if err := eng.Close(); err != nil {
		w.log.Error(err, "closing engine")
	}
}
