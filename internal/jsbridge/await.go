package jsbridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/eventloop"
)

// ErrAwaitTimeout is returned when a promise does not settle before the
// execution deadline.
var ErrAwaitTimeout = errors.New("promise resolution timed out")

// ErrPromiseStalled is returned when a promise is still pending after the
// microtask queue is empty and no timers remain.
var ErrPromiseStalled = errors.New("promise never settles")

// timerSlice bounds each event-loop drain so microtasks and the settle check
// run between timers.
const timerSlice = 10 * time.Millisecond

// AwaitValue resolves a possibly-promise value stored in globalThis[globalVar]
// by pumping microtasks and the event loop. On fulfilment the global is
// replaced with the settled value; on rejection an error carrying the reason
// is returned.
func AwaitValue(rt core.JSRuntime, globalVar string, deadline time.Time, el *eventloop.EventLoop) error {
	isPromise, err := rt.EvalBool(fmt.Sprintf("globalThis[%q] instanceof Promise", globalVar))
	if err != nil {
		return fmt.Errorf("checking for promise: %w", err)
	}
	if !isPromise {
		return nil
	}

	setupJS := fmt.Sprintf(`
		delete globalThis.__awaited_result;
		delete globalThis.__awaited_state;
		globalThis[%q].then(
			function(r) { globalThis.__awaited_result = r; globalThis.__awaited_state = 'fulfilled'; },
			function(e) { globalThis.__awaited_result = e; globalThis.__awaited_state = 'rejected'; }
		);
	`, globalVar)
	if err := rt.Eval(setupJS); err != nil {
		return fmt.Errorf("setting up promise await: %w", err)
	}
	defer func() { _ = rt.Eval("delete globalThis.__awaited_result; delete globalThis.__awaited_state;") }()

	var state string
	for {
		rt.RunMicrotasks()

		if el != nil && el.HasPending() {
			slice := time.Now().Add(timerSlice)
			if slice.After(deadline) {
				slice = deadline
			}
			el.Drain(rt, slice)
			rt.RunMicrotasks()
		}

		state, err = rt.EvalString("String(globalThis.__awaited_state)")
		if err != nil {
			return fmt.Errorf("checking promise state: %w", err)
		}
		if state != "undefined" {
			break
		}
		if time.Now().After(deadline) {
			return ErrAwaitTimeout
		}
		if el == nil || !el.HasPending() {
			// Microtasks are drained and no timer is left to settle it.
			return ErrPromiseStalled
		}
		if next, ok := el.NextDeadline(); ok {
			if wait := min(time.Until(next), time.Until(deadline), timerSlice); wait > 0 {
				time.Sleep(wait)
			}
		}
	}

	if state == "rejected" {
		msg, _ := rt.EvalString(`(function(e) {
			if (e instanceof Error) return e.message;
			return String(e);
		})(globalThis.__awaited_result)`)
		return fmt.Errorf("promise rejected: %s", msg)
	}

	return rt.Eval(fmt.Sprintf("globalThis[%q] = globalThis.__awaited_result;", globalVar))
}
