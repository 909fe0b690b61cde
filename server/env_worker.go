package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/vmgen/compiler"
	"github.com/chazu/vmgen/vm"
)

// ErrWorkerStopped is returned by Update after Stop.
var ErrWorkerStopped = errors.New("server: table worker stopped")

// updateFunc computes the next table from the current one. A nil table
// leaves the current one in place.
type updateFunc func(*vm.Env) (*vm.Env, interface{}, error)

// envRequest represents a unit of work to be executed on the worker goroutine.
type envRequest struct {
	fn   updateFunc
	done chan envResult
}

// envResult holds the return value from a table update.
type envResult struct {
	value interface{}
	err   error
}

// EnvWorker serializes every table update through a single goroutine and
// publishes each new table with one atomic store. Readers call Snapshot and
// never wait on a writer.
type EnvWorker struct {
	current  atomic.Pointer[vm.Env]
	requests chan envRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewEnvWorker creates an EnvWorker holding env and starts the processing
// goroutine.
func NewEnvWorker(env *vm.Env) *EnvWorker {
	w := &EnvWorker{
		requests: make(chan envRequest, 64),
		quit:     make(chan struct{}),
	}
	w.current.Store(env)
	go w.loop()
	return w
}

// loop processes updates sequentially on a dedicated goroutine.
func (w *EnvWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs one update against the current table, recovering from
// panics. An invariant violation comes back as its *InvariantError.
func (w *EnvWorker) execute(fn updateFunc) envResult {
	var result envResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				if ie, ok := compiler.AsInvariant(r); ok {
					result.err = ie
					return
				}
				result.err = fmt.Errorf("panic: %v", r)
			}
		}()
		next, value, err := fn(w.current.Load())
		if err != nil {
			result.err = err
			return
		}
		if next != nil {
			w.current.Store(next)
		}
		result.value = value
	}()
	return result
}

// Update submits fn for execution on the worker goroutine and blocks until
// it completes. An update already submitted runs to completion even if ctx
// is cancelled while waiting.
func (w *EnvWorker) Update(ctx context.Context, fn updateFunc) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}
	req := envRequest{
		fn:   fn,
		done: make(chan envResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns the current table.
func (w *EnvWorker) Snapshot() *vm.Env {
	return w.current.Load()
}

// Stop shuts down the worker goroutine.
func (w *EnvWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
