// Package handle wraps native resources in reference-counted handles that
// can be shared with a foreign runtime and reclaimed by its collector.
//
// Every Handle is one reference to a shared cell that exclusively owns the
// resource. Clone adds a reference; Release drops one, as does the Go
// garbage collector when a Handle becomes unreachable without having been
// released. The resource is closed exactly once, when the last reference
// goes away. There is no other way to close it.
package handle

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
)

// Resource is a native object owned by a handle.
type Resource interface {
	Close() error
}

// Options configures the cell created by Wrap.
type Options struct {
	Kind   Kind         // Optional, used in logs
	Logger *slog.Logger // Optional, defaults to slog.Default()
	// OnFinalize is called once, after the resource has been closed, with
	// the error Close returned.
	OnFinalize func(err error)
}

type cell[T Resource] struct {
	res  T
	refs atomic.Int64
	opts Options
}

// Handle is one reference to a wrapped resource. Handles for different
// resource types are distinct types.
type Handle[T Resource] struct {
	c        *cell[T]
	released atomic.Bool
	cleanup  runtime.Cleanup
}

// Wrap creates the first handle for res.
func Wrap[T Resource](res T, opts Options) *Handle[T] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &cell[T]{res: res, opts: opts}
	c.refs.Store(1)
	return c.newRef()
}

// acquire adds a reference unless the count already reached zero, in
// which case the resource is closed for good.
func (c *cell[T]) acquire() bool {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// newRef returns a handle owning a reference the caller already counted.
func (c *cell[T]) newRef() *Handle[T] {
	h := &Handle[T]{c: c}
	h.cleanup = runtime.AddCleanup(h, func(c *cell[T]) {
		c.opts.Logger.Debug("Collector dropped handle", "kind", c.opts.Kind)
		c.drop()
	}, c)
	return h
}

func (c *cell[T]) drop() {
	n := c.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		c.opts.Logger.Error("Handle reference count went negative", "kind", c.opts.Kind, "refs", n)
		return
	}

	err := c.res.Close()
	if err != nil {
		c.opts.Logger.Warn("Failed to finalize resource", "kind", c.opts.Kind, "error", err)
	} else {
		c.opts.Logger.Debug("Finalized resource", "kind", c.opts.Kind)
	}
	if c.opts.OnFinalize != nil {
		c.opts.OnFinalize(err)
	}
}

// Get returns the wrapped resource. Callers must keep h reachable (see
// runtime.KeepAlive) for as long as they use the resource, or the collector
// may drop the reference underneath them.
func (h *Handle[T]) Get() T {
	return h.c.res
}

// Clone returns a new, independently releasable handle to the same
// resource. Cloning a released handle panics.
func (h *Handle[T]) Clone() *Handle[T] {
	if h.released.Load() || !h.c.acquire() {
		panic(fmt.Sprintf("handle: Clone of released %s handle", h.c.opts.Kind))
	}
	return h.c.newRef()
}

// Release drops this reference. Releasing a handle twice is a no-op.
func (h *Handle[T]) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.cleanup.Stop()
	h.c.drop()
}

// Released reports whether Release has been called on this handle.
func (h *Handle[T]) Released() bool {
	return h.released.Load()
}

// Refs returns the number of live references to the resource.
func (h *Handle[T]) Refs() int64 {
	return h.c.refs.Load()
}

// Same reports whether two handles refer to the same resource.
func Same[T Resource](a, b *Handle[T]) bool {
	return a.c == b.c
}
