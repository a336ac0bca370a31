// Package bridge runs database operations to completion on a private pool
// of worker goroutines and hands the result back to a caller that blocks
// until it is done.
//
// Each call is independent: the bridge keeps no state between calls, and
// a call is never cancelled or timed out by the bridge itself. Calls made
// concurrently from different callers may run in parallel up to the size
// of the pool; a single caller never observes its operation mid-flight.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Run once the executor has been closed.
var ErrClosed = errors.New("bridge: executor is closed")

// Config holds configuration options for the Executor.
type Config struct {
	Workers int          // Optional, defaults to runtime.NumCPU()
	Logger  *slog.Logger // Optional, defaults to slog.Default()
}

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) (any, error)
	done chan result
}

type result struct {
	value any
	err   error
}

// Executor is a fixed pool of workers that operations are bridged onto.
type Executor struct {
	jobs   chan job
	group  *errgroup.Group
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// New starts an Executor.
func New(config Config) *Executor {
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		jobs:   make(chan job),
		group:  &errgroup.Group{},
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		e.group.Go(e.work)
	}
	logger.Debug("Started bridge executor", "workers", workers)
	return e
}

// work serves jobs until the executor closes. A panicking operation fails
// only its own caller; the worker keeps serving and reports the panics
// once it exits.
func (e *Executor) work() error {
	var panics []error
	for j := range e.jobs {
		value, panicked, err := runJob(j)
		if panicked {
			e.logger.Error("Bridged operation panicked", "error", err)
			panics = append(panics, err)
		}
		j.done <- result{value: value, err: err}
	}
	return errors.Join(panics...)
}

func runJob(j job) (value any, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bridge: operation panicked: %v\n%s", r, debug.Stack())
			panicked = true
		}
	}()
	value, err = j.fn(j.ctx)
	return value, false, err
}

// Run submits fn to the executor and blocks until it has completed,
// returning its value or error. fn sees a context that carries ctx's
// values but not its cancellation.
func Run[T any](e *Executor, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return zero, ErrClosed
	}
	done := make(chan result, 1)
	e.jobs <- job{
		ctx: context.WithoutCancel(ctx),
		fn: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
		done: done,
	}
	e.mu.RUnlock()

	r := <-done
	if r.err != nil {
		return zero, r.err
	}
	value, _ := r.value.(T)
	return value, nil
}

// Close stops accepting work and waits for in-flight operations to finish.
// It returns the panics recovered from operations over the executor's
// lifetime, if any.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	err := e.group.Wait()
	e.logger.Debug("Stopped bridge executor")
	return err
}
