/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import (
	"context"

	"github.com/jchip/xflight/promise"
)

// Future is an asynchronous result handle. It is the only capability the registry
// requires from futures returned by factories: deferred attachment of success and
// failure callbacks. *promise.Promise implements it; any other future type with
// the same settlement semantics may be used instead.
type Future[V any] interface {
	// OnSettled attaches completion callbacks. Exactly one of them must be called
	// when the future settles: onSuccess with the value, or onFailure with the
	// error. Attaching after settlement must invoke the matching callback
	// immediately. Attachment is additive and must not disturb the stored result
	// or previously attached callbacks.
	OnSettled(onSuccess func(V), onFailure func(error))
}

// Factory starts an asynchronous operation and returns its future. It must not
// block; the actual work happens behind the returned future. A non-nil error
// reports a synchronous failure, in which case the future is ignored.
type Factory[V any] func() (Future[V], error)

// FutureProvider synthesizes futures on behalf of the registry. It is used only
// to construct already-rejected futures when a factory fails synchronously or
// returns an invalid result. An alternate future implementation can be plugged
// in via Options.
type FutureProvider[V any] interface {
	// Rejected returns a future that is already settled with the given error.
	Rejected(err error) Future[V]
}

// promiseProvider is the default FutureProvider backed by the promise package.
type promiseProvider[V any] struct{}

func (promiseProvider[V]) Rejected(err error) Future[V] {
	return promise.Rejected[V](err)
}

var _ Future[int] = (*promise.Promise[int])(nil)

// DefaultFutureProvider returns the future provider used by the registry when
// none is injected via Options: the promise package's implementation.
func DefaultFutureProvider[V any]() FutureProvider[V] {
	return promiseProvider[V]{}
}

// Await blocks until fut settles or ctx is done, returning the settled value or
// error. On context cancellation it returns the zero value and ctx.Err(); the
// future itself is unaffected and keeps running.
func Await[V any](ctx context.Context, fut Future[V]) (V, error) {
	if p, ok := fut.(*promise.Promise[V]); ok {
		return p.Wait(ctx)
	}

	done := make(chan struct{})
	var (
		val V
		err error
	)
	fut.OnSettled(
		func(v V) { val = v; close(done) },
		func(e error) { err = e; close(done) },
	)
	select {
	case <-done:
		return val, err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
