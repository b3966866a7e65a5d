package pool

import (
	"context"
	"sync/atomic"

	"github.com/cryguy/titan/internal/core"
)

// reply is the one-shot completion channel between a worker thread and the
// goroutine waiting in Submit. The worker either delivers exactly one result
// or abandons the reply; the channel's single slot means the worker never
// blocks on a caller that has gone away.
type reply struct {
	ch       chan core.Result
	used     atomic.Bool
	detached atomic.Bool // set by the caller when it stops waiting
}

func newReply() *reply {
	return &reply{ch: make(chan core.Result, 1)}
}

// deliver hands res to the caller. It returns false if the reply was
// already used.
func (r *reply) deliver(res core.Result) bool {
	if !r.used.CompareAndSwap(false, true) {
		return false
	}
	r.ch <- res
	close(r.ch)
	return true
}

// abandon closes the reply without a value.
func (r *reply) abandon() bool {
	if !r.used.CompareAndSwap(false, true) {
		return false
	}
	close(r.ch)
	return true
}

// abandoned reports whether the caller stopped waiting before delivery.
func (r *reply) abandoned() bool {
	return r.detached.Load()
}

// wait blocks until the worker replies, ctx ends, or dead is closed.
func (r *reply) wait(ctx context.Context, dead <-chan struct{}) (core.Result, error) {
	select {
	case res, ok := <-r.ch:
		return received(res, ok)
	case <-ctx.Done():
		r.detached.Store(true)
		return core.Result{}, ctx.Err()
	case <-dead:
		// A worker may have replied just before the last one exited.
		select {
		case res, ok := <-r.ch:
			return received(res, ok)
		default:
			return core.Result{}, core.ErrExecutionChannelClosed
		}
	}
}

func received(res core.Result, ok bool) (core.Result, error) {
	if !ok {
		return core.Result{}, core.ErrExecutionChannelClosed
	}
	return res, nil
}

// command is a queued unit of work: the request plus its reply.
type command struct {
	req   core.Request
	reply *reply
}

// newCommand shares the body with the caller but copies the pair
// collections, so a queued command cannot change after Submit returns.
func newCommand(inv core.Invocation) *command {
	return &command{
		req: core.Request{
			Action:  inv.Action,
			Method:  inv.Method,
			Path:    inv.Path,
			Body:    inv.Body,
			Headers: inv.Headers.Clone(),
			Params:  inv.Params.Clone(),
			Query:   inv.Query.Clone(),
		},
		reply: newReply(),
	}
}
