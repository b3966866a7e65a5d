package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cryguy/titan/internal/core"
)

// Manager owns the dispatch queue and the worker threads. It is the only
// entry point callers use; after New returns it is safe for concurrent use.
type Manager struct {
	root    string
	factory core.EngineFactory
	opts    options

	queue chan *command

	mu      sync.RWMutex
	closed  bool
	workers []*worker

	closing   chan struct{} // closed when Shutdown starts refusing work
	senders   sync.WaitGroup
	closeOnce sync.Once

	dead     chan struct{} // closed once no worker thread is left
	deadOnce sync.Once

	wg      sync.WaitGroup // one per running worker goroutine
	stopped chan struct{}

	live      atomic.Int64
	restarts  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New starts a pool of worker threads, each building its own engine with
// factory(root) on its own thread. It blocks until every engine is up. If any
// engine fails to initialize, the workers that did start are shut down and
// the error (wrapping core.ErrEngineInit) is returned.
func New(ctx context.Context, root string, factory core.EngineFactory, opts ...Option) (*Manager, error) {
	if factory == nil {
		return nil, errors.New("pool: nil engine factory")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		root:    root,
		factory: factory,
		opts:    o,
		queue:   make(chan *command, o.threads*o.queueMultiplier),
		workers: make([]*worker, o.threads),
		closing: make(chan struct{}),
		dead:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	ready := make(chan error, o.threads)
	for i := 0; i < o.threads; i++ {
		m.spawn(i, ready)
	}

	var errs []error
collect:
	for i := 0; i < o.threads; i++ {
		select {
		case err := <-ready:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("%w: %w", core.ErrEngineInit, ctx.Err()))
			break collect
		}
	}

	go func() {
		m.wg.Wait()
		close(m.stopped)
	}()

	if len(errs) > 0 {
		// Workers still inside the factory exit on their own once it returns.
		m.stop()
		return nil, fmt.Errorf("starting worker pool: %w", errors.Join(errs...))
	}

	o.logger.Info("worker pool started",
		"threads", o.threads,
		"capacity", cap(m.queue),
		"restart", o.restart.String(),
	)
	return m, nil
}

// spawn starts worker id on a new OS thread.
func (m *Manager) spawn(id int, ready chan<- error) {
	w := &worker{
		id:  id,
		m:   m,
		log: m.opts.logger.WithValues("worker", id),
	}
	m.mu.Lock()
	m.workers[id] = w
	m.mu.Unlock()

	m.live.Add(1)
	m.wg.Add(1)
	go w.run(ready)
}

// workerExited is called on the exiting worker's thread.
func (m *Manager) workerExited(w *worker, crashed bool) {
	m.opts.observer.ObserveWorkerExited(w.id, crashed)

	if crashed && m.opts.restart == RestartAlways && !m.isClosed() {
		m.restarts.Add(1)
		w.log.Info("restarting worker")
		m.spawn(w.id, nil)
	} else if crashed {
		w.log.Info("worker not replaced, pool capacity reduced", "live", m.live.Load()-1)
	}

	if m.live.Add(-1) == 0 {
		m.markDead()
	}
}

// markDead fails everything still queued once no thread can serve it.
func (m *Manager) markDead() {
	m.deadOnce.Do(func() {
		close(m.dead)
		if !m.isClosed() {
			m.opts.logger.Error(core.ErrDispatchUnavailable, "no worker threads left")
		}
	})
	for {
		select {
		case cmd, ok := <-m.queue:
			if !ok {
				return
			}
			cmd.reply.abandon()
		default:
			return
		}
	}
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Submit enqueues one invocation and waits for its result. It blocks while
// the queue is full. Errors are request-local:
//
//   - core.ErrDispatchUnavailable: the pool is shut down or has no threads
//   - core.ErrExecutionChannelClosed: the worker died before replying
//   - ctx.Err(): the caller stopped waiting; a queued command still runs
//     and its result is dropped
func (m *Manager) Submit(ctx context.Context, inv core.Invocation) (core.Result, error) {
	cmd := newCommand(inv)

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return core.Result{}, core.ErrDispatchUnavailable
	}
	select {
	case <-m.dead:
		m.mu.RUnlock()
		return core.Result{}, core.ErrDispatchUnavailable
	default:
	}
	m.senders.Add(1)
	m.mu.RUnlock()

	select {
	case m.queue <- cmd:
		m.senders.Done()
	case <-m.closing:
		m.senders.Done()
		return core.Result{}, core.ErrDispatchUnavailable
	case <-m.dead:
		m.senders.Done()
		return core.Result{}, core.ErrDispatchUnavailable
	case <-ctx.Done():
		m.senders.Done()
		return core.Result{}, ctx.Err()
	}

	return cmd.reply.wait(ctx, m.dead)
}

// Shutdown stops accepting submissions, lets the workers finish everything
// already queued, closes every engine on its own thread and waits for the
// threads to exit. It returns ctx.Err() if that takes longer than ctx allows;
// the shutdown still completes in the background. Calling it again is safe.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()

	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop refuses new work and closes the queue without waiting for workers.
func (m *Manager) stop() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.closing)
		m.mu.Unlock()

		// Every sender either got in or saw closing; nobody can send now.
		m.senders.Wait()
		close(m.queue)
		m.opts.logger.Info("worker pool shutting down", "queued", len(m.queue))
	})
}

// Done is closed after Shutdown once every worker thread has exited.
func (m *Manager) Done() <-chan struct{} { return m.stopped }

// Capacity returns the dispatch queue bound.
func (m *Manager) Capacity() int { return cap(m.queue) }

// WorkerStats describes one worker slot.
type WorkerStats struct {
	ID       int    `json:"id"`
	State    string `json:"state"`
	Executed uint64 `json:"executed"`
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Threads   int           `json:"threads"`
	Live      int           `json:"live"`
	QueueLen  int           `json:"queue_len"`
	QueueCap  int           `json:"queue_cap"`
	Restarts  uint64        `json:"restarts"`
	Completed uint64        `json:"completed"`
	Failed    uint64        `json:"failed"`
	Workers   []WorkerStats `json:"workers"`
}

// Stats returns a snapshot of the pool's counters and worker states.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	workers := make([]WorkerStats, 0, len(m.workers))
	for _, w := range m.workers {
		if w == nil {
			continue
		}
		workers = append(workers, WorkerStats{
			ID:       w.id,
			State:    w.State().String(),
			Executed: w.executed.Load(),
		})
	}
	m.mu.RUnlock()

	return Stats{
		Threads:   m.opts.threads,
		Live:      int(m.live.Load()),
		QueueLen:  len(m.queue),
		QueueCap:  cap(m.queue),
		Restarts:  m.restarts.Load(),
		Completed: m.completed.Load(),
		Failed:    m.failed.Load(),
		Workers:   workers,
	}
}
