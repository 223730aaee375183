// Package memo caches the result of an expensive async operation and
// collapses concurrent callers onto the single in-flight attempt.
package memo

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo holds at most one value and at most one pending operation. Failures
// are never cached; the next Do after a failure starts a new attempt.
type Memo[T any] struct {
	mu         sync.Mutex
	value      T
	set        bool
	pending    bool
	generation uint64
	group      singleflight.Group
}

// Value returns the cached value if present
func (m *Memo[T]) Value() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.set
}

// Pending reports whether an operation is in flight for the current generation
func (m *Memo[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending && !m.set
}

// Do returns the cached value, joins the in-flight operation, or starts fn.
// ctx bounds only this caller's wait; fn keeps running for the other callers,
// so it should capture a context that outlives any single request.
func (m *Memo[T]) Do(ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T

	m.mu.Lock()
	if m.set {
		v := m.value
		m.mu.Unlock()
		return v, nil
	}
	gen := m.generation
	m.pending = true
	m.mu.Unlock()

	ch := m.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		// a flight for this generation may have finished between the check above and DoChan
		m.mu.Lock()
		if m.set && m.generation == gen {
			v := m.value
			m.mu.Unlock()
			return v, nil
		}
		m.mu.Unlock()

		v, err := fn()

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.generation == gen {
			m.pending = false
			if err == nil {
				m.value = v
				m.set = true
			}
		}
		return v, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Clear drops the cached value and detaches any in-flight operation. A result
// that lands after Clear is returned to its waiters but not cached.
func (m *Memo[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.value = zero
	m.set = false
	m.pending = false
	m.generation++
}

// Generation identifies the current cache epoch, bumped by every Clear
func (m *Memo[T]) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}
