package observe

import (
	"context"
	"errors"
	"sync"
)

// ErrNotSettled is returned by Wait when ctx ends before the cell settles.
var ErrNotSettled = errors.New("observe: cell not settled")

// State is the lifecycle stage of a Cell.
type State int

const (
	Pending State = iota
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Cell is a value that settles at most once, either to a resolved value or
// to a failure. Observers are notified through a last-value replay Subject.
type Cell[T any] struct {
	mu      sync.Mutex
	subject *Subject[T]
	state   State
	err     error
	settled chan struct{}
}

// NewCell creates a pending cell whose pre-resolution value is initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		subject: NewSubject(initial),
		settled: make(chan struct{}),
	}
}

// ResolvedCell creates a cell already resolved to v.
func ResolvedCell[T any](v T) *Cell[T] {
	c := NewCell(v)
	c.state = Resolved
	c.subject.Complete()
	close(c.settled)
	return c
}

// Settle resolves the cell to v and notifies observers. Only the first
// Settle or Fail takes effect; Settle reports whether it did.
func (c *Cell[T]) Settle(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Pending {
		return false
	}
	c.state = Resolved
	c.subject.Next(v)
	c.subject.Complete()
	close(c.settled)
	return true
}

// Fail marks the cell as permanently unresolved with err. Observers keep the
// pre-resolution value and see their channels close.
func (c *Cell[T]) Fail(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Pending {
		return false
	}
	c.state = Failed
	c.err = err
	c.subject.Complete()
	close(c.settled)
	return true
}

// Get returns the current value, state and failure cause.
func (c *Cell[T]) Get() (T, State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject.Value(), c.state, c.err
}

// Value returns the current value regardless of state.
func (c *Cell[T]) Value() T {
	return c.subject.Value()
}

// State returns the current lifecycle stage.
func (c *Cell[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Watch returns a channel yielding the current value and, if still pending,
// the resolved value once it arrives. The channel closes after settlement.
func (c *Cell[T]) Watch(ctx context.Context) <-chan T {
	return c.subject.Subscribe(ctx)
}

// Wait blocks until the cell settles or ctx is done. A failed cell returns
// its failure cause.
func (c *Cell[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.settled:
		v, _, err := c.Get()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, errors.Join(ErrNotSettled, ctx.Err())
	}
}
