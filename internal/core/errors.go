package core

import "errors"

var (
	// ErrDispatchUnavailable is returned by Submit when the pool cannot accept
	// work: it has been shut down or no worker threads remain alive.
	ErrDispatchUnavailable = errors.New("dispatch unavailable")

	// ErrExecutionChannelClosed is returned by Submit when the worker holding
	// the command went away without replying.
	ErrExecutionChannelClosed = errors.New("execution channel closed")

	// ErrEngineInit wraps engine construction failures during pool startup.
	ErrEngineInit = errors.New("engine initialization failed")
)
