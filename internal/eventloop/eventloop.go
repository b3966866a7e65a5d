package eventloop

import (
	"fmt"
	"time"

	"github.com/cryguy/titan/internal/core"
)

// minInterval is the floor applied to setInterval periods.
const minInterval = 10 * time.Millisecond

// MaxTimers caps the number of live timers one action may hold.
const MaxTimers = 1000

// timerEntry represents a pending setTimeout or setInterval callback.
// The callback itself lives in globalThis.__timerCallbacks[id] on the JS
// side; Go only tracks scheduling metadata.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
}

// EventLoop drives setTimeout/setInterval for one engine. It is confined to
// the engine's worker thread and therefore carries no lock.
type EventLoop struct {
	timers map[int]*timerEntry
	nextID int
	now    func() time.Time
	sleep  func(time.Duration)
}

// New creates an empty EventLoop.
func New() *EventLoop {
	return &EventLoop{
		timers: make(map[int]*timerEntry),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// RegisterTimer creates a timer entry and returns its ID, or an error once
// MaxTimers are pending.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) (int, error) {
	if len(el.timers) >= MaxTimers {
		return 0, fmt.Errorf("too many pending timers (max %d)", MaxTimers)
	}
	if delay < 0 {
		delay = 0
	}
	el.nextID++
	entry := &timerEntry{
		deadline: el.now().Add(delay),
		id:       el.nextID,
	}
	if isInterval {
		if delay < minInterval {
			delay = minInterval
		}
		entry.interval = delay
	}
	el.timers[entry.id] = entry
	return entry.id, nil
}

// ClearTimer cancels a timer by ID. Unknown IDs are ignored.
func (el *EventLoop) ClearTimer(id int) {
	delete(el.timers, id)
}

// HasPending reports whether any timer is still scheduled.
func (el *EventLoop) HasPending() bool {
	return len(el.timers) > 0
}

// Pending returns the number of scheduled timers.
func (el *EventLoop) Pending() int {
	return len(el.timers)
}

// NextDeadline returns when the earliest timer is due.
func (el *EventLoop) NextDeadline() (time.Time, bool) {
	if next := el.next(); next != nil {
		return next.deadline, true
	}
	return time.Time{}, false
}

// next returns the earliest timer, or nil.
func (el *EventLoop) next() *timerEntry {
	var next *timerEntry
	for _, t := range el.timers {
		if next == nil || t.deadline.Before(next.deadline) ||
			(t.deadline.Equal(next.deadline) && t.id < next.id) {
			next = t
		}
	}
	return next
}

// fireTimer invokes the JS-side callback for id.
func fireTimer(rt core.JSRuntime, id int) {
	js := fmt.Sprintf(`(function() {
		var entry = globalThis.__timerCallbacks[%d];
		if (!entry) return;
		if (!entry.interval) delete globalThis.__timerCallbacks[%d];
		entry.fn.apply(null, entry.args || []);
	})()`, id, id)
	_ = rt.Eval(js)
}

// Drain fires timers in deadline order until none remain or the next one
// would fire after deadline. Microtasks are pumped after every callback.
// Must be called on the runtime's thread.
func (el *EventLoop) Drain(rt core.JSRuntime, deadline time.Time) {
	for {
		next := el.next()
		if next == nil {
			return
		}
		if next.deadline.After(deadline) {
			return
		}
		if wait := next.deadline.Sub(el.now()); wait > 0 {
			el.sleep(wait)
		}

		// The callback may clear or re-register timers.
		if next.interval > 0 {
			next.deadline = el.now().Add(next.interval)
		} else {
			delete(el.timers, next.id)
		}
		fireTimer(rt, next.id)
		rt.RunMicrotasks()
	}
}

// Reset clears all timers. Called after every action so nothing scheduled by
// one request fires during the next.
func (el *EventLoop) Reset() {
	el.timers = make(map[int]*timerEntry)
	el.nextID = 0
}
