/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package promise

import (
	"context"
	"sync"
)

// Promise is an asynchronous result that is settled exactly once.
// The zero value is not usable, use New or one of the other constructors.
type Promise[V any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	failed    bool
	val       V
	err       error
	onSuccess []func(V)
	onFailure []func(error)
}

// New creates a new pending Promise.
func New[V any]() *Promise[V] {
	return &Promise[V]{done: make(chan struct{})}
}

// Resolved creates a Promise that is already resolved with the given value.
func Resolved[V any](val V) *Promise[V] {
	p := New[V]()
	p.Resolve(val)
	return p
}

// Rejected creates a Promise that is already rejected with the given error.
func Rejected[V any](err error) *Promise[V] {
	p := New[V]()
	p.Reject(err)
	return p
}

// Go runs fn in a new goroutine and returns a Promise that settles with its result.
// A panicking fn rejects the Promise with a *PanicError carrying the panic value
// and the goroutine's stack trace.
func Go[V any](fn func() (V, error)) *Promise[V] {
	p := New[V]()
	go func() {
		defer func() {
			if v := recover(); v != nil {
				p.Reject(NewPanicError(v))
			}
		}()
		val, err := fn()
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(val)
	}()
	return p
}

// Resolve settles the Promise successfully with the given value.
// It reports whether the Promise was settled by this call; a Promise that is
// already settled is left unchanged and false is returned.
func (p *Promise[V]) Resolve(val V) bool {
	return p.settle(func() { p.val = val }, true)
}

// Reject settles the Promise with the given error.
// It reports whether the Promise was settled by this call; a Promise that is
// already settled is left unchanged and false is returned.
func (p *Promise[V]) Reject(err error) bool {
	return p.settle(func() { p.err = err }, false)
}

func (p *Promise[V]) settle(store func(), success bool) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	store()
	p.settled = true
	p.failed = !success
	var callbacks []func()
	if success {
		for _, cb := range p.onSuccess {
			cb := cb
			callbacks = append(callbacks, func() { cb(p.val) })
		}
	} else {
		for _, cb := range p.onFailure {
			cb := cb
			callbacks = append(callbacks, func() { cb(p.err) })
		}
	}
	p.onSuccess, p.onFailure = nil, nil
	close(p.done)
	p.mu.Unlock()

	// Callbacks run outside the lock, in attachment order.
	for _, cb := range callbacks {
		cb()
	}
	return true
}

// OnSettled attaches completion callbacks. Exactly one of them is called when
// the Promise settles: onSuccess with the value, or onFailure with the error.
// If the Promise is already settled, the matching callback is called before
// OnSettled returns. Either callback may be nil. Attaching callbacks is
// additive and never affects the stored result or other callbacks.
func (p *Promise[V]) OnSettled(onSuccess func(V), onFailure func(error)) {
	p.mu.Lock()
	if !p.settled {
		if onSuccess != nil {
			p.onSuccess = append(p.onSuccess, onSuccess)
		}
		if onFailure != nil {
			p.onFailure = append(p.onFailure, onFailure)
		}
		p.mu.Unlock()
		return
	}
	val, err, failed := p.val, p.err, p.failed
	p.mu.Unlock()

	// Route by the settlement outcome, not by err: a rejection with a nil
	// error still fires onFailure.
	if failed {
		if onFailure != nil {
			onFailure(err)
		}
		return
	}
	if onSuccess != nil {
		onSuccess(val)
	}
}

// Wait blocks until the Promise settles or ctx is done.
// On settlement it returns the Promise's value and error; on context
// cancellation it returns the zero value and ctx.Err().
func (p *Promise[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Settled reports whether the Promise has been resolved or rejected.
func (p *Promise[V]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
