package handle

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingResource records how many times it was finalized
type countingResource struct {
	closed atomic.Int32
	err    error
}

func (r *countingResource) Close() error {
	r.closed.Add(1)
	return r.err
}

type otherResource struct{ countingResource }

func TestReleaseFinalizesOnce(t *testing.T) {
	res := &countingResource{}
	h := Wrap(res, Options{Kind: "test"})
	c1 := h.Clone()
	c2 := c1.Clone()
	assert.Equal(t, int64(3), h.Refs())
	assert.True(t, Same(h, c2))

	h.Release()
	c1.Release()
	assert.Equal(t, int32(0), res.closed.Load())
	assert.Same(t, res, c2.Get())

	c2.Release()
	assert.Equal(t, int32(1), res.closed.Load())

	// double release is ignored
	c2.Release()
	h.Release()
	assert.Equal(t, int32(1), res.closed.Load())
	assert.True(t, h.Released())
}

func TestCloneAfterReleasePanics(t *testing.T) {
	res := &countingResource{}
	h := Wrap(res, Options{Kind: "test"})
	h.Release()

	assert.Panics(t, func() { h.Clone() })
	assert.Equal(t, int64(0), h.Refs())
	assert.Equal(t, int32(1), res.closed.Load())

	// a released handle cannot be cloned even while others keep the resource alive
	res2 := &countingResource{}
	a := Wrap(res2, Options{Kind: "test"})
	b := a.Clone()
	a.Release()
	assert.Panics(t, func() { a.Clone() })
	assert.Equal(t, int64(1), b.Refs())

	b.Release()
	assert.Equal(t, int32(1), res2.closed.Load())
}

func TestConcurrentCloneRelease(t *testing.T) {
	res := &countingResource{}
	root := Wrap(res, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := root.Clone()
			_ = c.Get()
			c.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), res.closed.Load())
	assert.Equal(t, int64(1), root.Refs())

	root.Release()
	assert.Equal(t, int32(1), res.closed.Load())
}

func TestOnFinalizeReceivesCloseError(t *testing.T) {
	cause := errors.New("close failed")
	res := &countingResource{err: cause}
	var got error
	calls := 0
	h := Wrap(res, Options{OnFinalize: func(err error) {
		calls++
		got = err
	}})
	h.Release()
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, got, cause)
}

func TestCollectorDropsUnreleasedHandles(t *testing.T) {
	res := &countingResource{}
	keep := Wrap(res, Options{})
	func() {
		for i := 0; i < 3; i++ {
			_ = keep.Clone()
		}
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return keep.Refs() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), res.closed.Load())

	keep = nil
	require.Eventually(t, func() bool {
		runtime.GC()
		return res.closed.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTableLifecycle(t *testing.T) {
	const kind Kind = "Libsql.Database"
	table := NewTable(kind)
	res := &countingResource{}

	id, err := Put(table, kind, Wrap(res, Options{Kind: kind}))
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len(kind))

	h, err := Lookup[*countingResource](table, kind, id)
	require.NoError(t, err)
	assert.Same(t, res, h.Get())
	h.Release()

	cloneID, err := table.Clone(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, cloneID)
	assert.Equal(t, 2, table.Len(kind))

	require.NoError(t, table.Release(id))
	assert.Equal(t, int32(0), res.closed.Load())
	require.NoError(t, table.Release(cloneID))
	assert.Equal(t, int32(1), res.closed.Load())

	assert.ErrorIs(t, table.Release(id), ErrNotFound)
	_, err = Lookup[*countingResource](table, kind, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTableKinds(t *testing.T) {
	const dbKind, connKind Kind = "Libsql.Database", "Libsql.Connection"
	table := NewTable(dbKind, connKind)

	_, err := Put(table, "Other", Wrap(&countingResource{}, Options{}))
	assert.ErrorIs(t, err, ErrUnknownKind)

	id, err := Put(table, dbKind, Wrap(&countingResource{}, Options{}))
	require.NoError(t, err)

	_, err = Lookup[*countingResource](table, connKind, id)
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = Lookup[*otherResource](table, dbKind, id)
	assert.ErrorIs(t, err, ErrWrongKind)

	kind, ok := table.Kind(id)
	assert.True(t, ok)
	assert.Equal(t, dbKind, kind)
}

func TestTableClose(t *testing.T) {
	const kind Kind = "k"
	table := NewTable(kind)
	a, b := &countingResource{}, &countingResource{}
	_, err := Put(table, kind, Wrap(a, Options{}))
	require.NoError(t, err)
	_, err = Put(table, kind, Wrap(b, Options{}))
	require.NoError(t, err)

	table.Close()
	assert.Equal(t, int32(1), a.closed.Load())
	assert.Equal(t, int32(1), b.closed.Load())
	assert.Equal(t, 0, table.Len(kind))
}
