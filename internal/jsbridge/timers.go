package jsbridge

import (
	"time"

	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/eventloop"
)

// timersJS installs setTimeout/setInterval/clearTimeout/clearInterval on top
// of the Go-side event loop. Callbacks stay in JS, keyed by timer id.
const timersJS = `
(function() {
	globalThis.__timerCallbacks = {};
	function schedule(fn, delay, rest, repeat) {
		if (typeof fn !== 'function') {
			return 0;
		}
		var id = __timerRegister(Math.max(0, Math.floor(Number(delay) || 0)), repeat);
		globalThis.__timerCallbacks[id] = { fn: fn, args: rest, interval: repeat };
		return id;
	}
	globalThis.setTimeout = function(fn, delay) {
		return schedule(fn, delay, Array.prototype.slice.call(arguments, 2), false);
	};
	globalThis.setInterval = function(fn, interval) {
		return schedule(fn, interval, Array.prototype.slice.call(arguments, 2), true);
	};
	globalThis.clearTimeout = globalThis.clearInterval = function(id) {
		if (typeof id !== 'number') {
			return;
		}
		__timerClear(id);
		delete globalThis.__timerCallbacks[id];
	};
})();
`

// SetupTimers registers Go-backed timer functions bound to el.
func SetupTimers(rt core.JSRuntime, el *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__timerRegister", func(delayMs int, isInterval bool) (int, error) {
		return el.RegisterTimer(time.Duration(delayMs)*time.Millisecond, isInterval)
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__timerClear", func(id int) {
		el.ClearTimer(id)
	}); err != nil {
		return err
	}

	return rt.Eval(timersJS)
}
