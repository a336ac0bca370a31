package handle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for ids that were never issued or were released.
	ErrNotFound = errors.New("handle: not found")
	// ErrWrongKind is returned when an id refers to a resource of another kind.
	ErrWrongKind = errors.New("handle: wrong resource kind")
	// ErrUnknownKind is returned when storing a handle of an unregistered kind.
	ErrUnknownKind = errors.New("handle: unknown resource kind")
)

// Kind names a class of resource, as the foreign runtime knows it.
type Kind string

type entry struct {
	kind    Kind
	handle  any
	release func()
	clone   func() entry
}

// Table hands out opaque string ids for handles to runtimes that cannot
// hold Go pointers. Each id owns one reference until it is released.
type Table struct {
	mu      sync.Mutex
	kinds   map[Kind]bool
	entries map[string]entry
}

// NewTable creates a table accepting the given kinds. Kinds are fixed for
// the life of the table.
func NewTable(kinds ...Kind) *Table {
	t := &Table{
		kinds:   make(map[Kind]bool, len(kinds)),
		entries: make(map[string]entry),
	}
	for _, k := range kinds {
		t.kinds[k] = true
	}
	return t
}

func newEntry[T Resource](kind Kind, h *Handle[T]) entry {
	return entry{
		kind:    kind,
		handle:  h,
		release: h.Release,
		clone: func() entry {
			return newEntry(kind, h.Clone())
		},
	}
}

// Put stores h under a fresh id. The table takes over h's reference.
func Put[T Resource](t *Table, kind Kind, h *Handle[T]) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.kinds[kind] {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	id := uuid.NewString()
	t.entries[id] = newEntry(kind, h)
	return id, nil
}

// Lookup returns a new reference to the handle stored under id. The caller
// owns the returned handle and must release it.
func Lookup[T Resource](t *Table, kind Kind, id string) (*Handle[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.kind != kind {
		return nil, fmt.Errorf("%w: %s is a %s, not a %s", ErrWrongKind, id, e.kind, kind)
	}
	h, ok := e.handle.(*Handle[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T", ErrWrongKind, id, e.handle)
	}
	return h.Clone(), nil
}

// Clone issues a new id referring to the same resource as id.
func (t *Table) Clone(id string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	newID := uuid.NewString()
	t.entries[newID] = e.clone()
	return newID, nil
}

// Release drops the reference owned by id. The resource is finalized if
// no other id or handle refers to it.
func (t *Table) Release(id string) error {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.release()
	return nil
}

// Kind returns the kind of the resource stored under id.
func (t *Table) Kind(id string) (Kind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e.kind, ok
}

// Len returns the number of live ids of the given kind.
func (t *Table) Len(kind Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// Close releases every id still in the table.
func (t *Table) Close() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.release()
	}
}
