package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryguy/titan/internal/core"
)

// fakeHarness builds fake engines and records what they observe.
type fakeHarness struct {
	gate    chan struct{} // "block" actions wait for this to close
	started chan string   // "block" actions report their path here

	failOn int32 // 1-based factory call that fails, 0 for never

	mu    sync.Mutex
	order []string

	created atomic.Int32
	closed  atomic.Int32
}

func newHarness() *fakeHarness {
	return &fakeHarness{
		gate:    make(chan struct{}),
		started: make(chan string, 16),
	}
}

func (h *fakeHarness) release() { close(h.gate) }

func (h *fakeHarness) factory(root string) (core.Engine, error) {
	n := h.created.Add(1)
	if h.failOn != 0 && n == h.failOn {
		return nil, errors.New("boom")
	}
	return &fakeEngine{h: h, root: root}, nil
}

func (h *fakeHarness) executed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

type fakeEngine struct {
	h    *fakeHarness
	root string
	busy atomic.Bool
}

func (e *fakeEngine) Execute(req *core.Request) core.Result {
	if !e.busy.CompareAndSwap(false, true) {
		panic("engine entered concurrently")
	}
	defer e.busy.Store(false)

	e.h.mu.Lock()
	e.h.order = append(e.h.order, req.Path)
	e.h.mu.Unlock()

	switch req.Action {
	case "block":
		e.h.started <- req.Path
		<-e.h.gate
	case "crash":
		panic("forced engine failure")
	case "fail":
		return core.ErrorResult("action failed")
	case "headers":
		out := make([]any, 0, req.Headers.Len())
		for _, kv := range req.Headers {
			out = append(out, kv.Key+"="+kv.Value)
		}
		return core.Result{Value: out}
	}
	return core.Result{Value: map[string]any{
		"action": req.Action,
		"path":   req.Path,
		"body":   string(req.Body),
		"root":   e.root,
	}}
}

func (e *fakeEngine) Close() error {
	e.h.closed.Add(1)
	return nil
}

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	started  int
	exited   int
	crashed  int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{outcomes: make(map[string]int)}
}

func (o *recordingObserver) ObserveExecution(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func (o *recordingObserver) ObserveWorkerStarted(int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) ObserveWorkerExited(_ int, crashed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exited++
	if crashed {
		o.crashed++
	}
}

func (o *recordingObserver) count(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[outcome]
}

type submitOutcome struct {
	res core.Result
	err error
}

// submitAsync runs Submit in its own goroutine.
func submitAsync(ctx context.Context, m *Manager, inv core.Invocation) <-chan submitOutcome {
	ch := make(chan submitOutcome, 1)
	go func() {
		res, err := m.Submit(ctx, inv)
		ch <- submitOutcome{res: res, err: err}
	}()
	return ch
}

func inv(action, path string) core.Invocation {
	return core.Invocation{Action: action, Method: "GET", Path: path}
}

func bodyOf(res core.Result) string {
	m, ok := res.Value.(map[string]any)
	if !ok {
		return fmt.Sprintf("<%T>", res.Value)
	}
	s, _ := m["body"].(string)
	return s
}
