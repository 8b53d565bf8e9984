// Package future provides a single-assignment result that can be waited on,
// observed with listeners, and cancelled.
package future

import (
	"context"
	"sync"

	"golang.org/x/xerrors"
)

// ErrCancelled is the error of a future that was cancelled.
var ErrCancelled = xerrors.New("cancelled")

// Listener is called exactly once when a future completes. A cancelled future
// calls its listeners with ErrCancelled.
type Listener[T any] func(value T, err error)

// Future holds the eventual result of an asynchronous operation. It completes
// at most once: the first of SetValue, SetError, Set or Cancel wins and the
// others are no-ops.
type Future[T any] struct {
	sync.Mutex

	done      chan struct{}
	completed bool
	cancelled bool
	value     T
	err       error
	listeners []Listener[T]
}

// New returns a pending future.
func New[T any]() *Future[T] {
	return &Future[T]{
		done: make(chan struct{}),
	}
}

// Completed returns an already completed future.
func Completed[T any](value T, err error) *Future[T] {
	f := New[T]()
	f.Set(value, err)
	return f
}

// SetValue completes the future successfully. Returns false if the future was
// already completed.
func (f *Future[T]) SetValue(value T) bool {
	return f.complete(value, nil, false)
}

// SetError completes the future with an error. Returns false if the future was
// already completed.
func (f *Future[T]) SetError(err error) bool {
	var zero T
	return f.complete(zero, err, false)
}

// Set completes the future with both a value and an error. This allows a
// failed operation to still expose a partial result.
func (f *Future[T]) Set(value T, err error) bool {
	return f.complete(value, err, false)
}

// Cancel completes the future with ErrCancelled. Returns false if the future
// was already completed.
func (f *Future[T]) Cancel() bool {
	var zero T
	return f.complete(zero, ErrCancelled, true)
}

// Done returns a channel closed once the future is completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone tells whether the future is completed.
func (f *Future[T]) IsDone() bool {
	f.Lock()
	defer f.Unlock()

	return f.completed
}

// IsCancelled tells whether the future was completed by Cancel.
func (f *Future[T]) IsCancelled() bool {
	f.Lock()
	defer f.Unlock()

	return f.cancelled
}

// Get waits for the future to complete and returns its result. If the context
// is done first, the context error is returned and the future is left
// untouched.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the result of a completed future. It returns ErrNotDone
// while the future is pending.
func (f *Future[T]) Result() (T, error) {
	f.Lock()
	defer f.Unlock()

	if !f.completed {
		var zero T
		return zero, ErrNotDone
	}
	return f.value, f.err
}

// AddListener registers a listener. If the future is already completed the
// listener is called right away in the calling goroutine, otherwise it is
// called by whoever completes the future.
func (f *Future[T]) AddListener(l Listener[T]) {
	f.Lock()
	if !f.completed {
		f.listeners = append(f.listeners, l)
		f.Unlock()
		return
	}
	value, err := f.value, f.err
	f.Unlock()

	l(value, err)
}

// ErrNotDone is returned by Result on a pending future.
var ErrNotDone = xerrors.New("future not done")

func (f *Future[T]) complete(value T, err error, cancelled bool) bool {
	f.Lock()
	if f.completed {
		f.Unlock()
		return false
	}

	f.completed = true
	f.cancelled = cancelled
	f.value = value
	f.err = err

	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.Unlock()

	// listeners run outside the lock so they can touch other futures
	for _, l := range listeners {
		l(value, err)
	}

	return true
}
