/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ssgreg/logf"
	"go.uber.org/atomic"

	"github.com/jchip/xflight/promise"
)

// ElapsedUnknown is returned by elapsed-time queries for keys that are not tracked.
const ElapsedUnknown = time.Duration(-1)

type entry[V any] struct {
	startTime time.Time
	checkTime time.Time
	future    Future[V]
}

// Registry tracks in-flight asynchronous operations by key and deduplicates
// concurrent requests for the same key. At most one entry exists per key; an
// entry lives from registration until its future settles (or it is removed
// manually). All methods are safe for concurrent use.
type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	count   int

	futureProvider   FutureProvider[V]
	logger           FieldLogger
	metricsCollector MetricsCollector

	dispatchedTotal atomic.Uint64
	dedupedTotal    atomic.Uint64
}

// Options represents options for the registry.
type Options[V any] struct {
	// FutureProvider is used to synthesize rejected futures when a factory fails
	// synchronously or returns an invalid result. If nil, DefaultFutureProvider
	// is used.
	FutureProvider FutureProvider[V]

	// Logger is used for debug/warn logging of registry events.
	// If nil, logging is disabled.
	Logger FieldLogger
}

// New creates a new Registry with the provided metrics collector.
// Metrics collector is used to collect statistics about registry usage.
// It can be nil, in this case, metrics will be disabled.
func New[K comparable, V any](metricsCollector MetricsCollector) *Registry[K, V] {
	return NewWithOpts[K, V](metricsCollector, Options[V]{})
}

// NewWithOpts creates a new Registry with the provided metrics collector and options.
func NewWithOpts[K comparable, V any](metricsCollector MetricsCollector, opts Options[V]) *Registry[K, V] {
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	futureProvider := opts.FutureProvider
	if futureProvider == nil {
		futureProvider = DefaultFutureProvider[V]()
	}
	logger := opts.Logger
	if logger == nil {
		logger = NewDisabledLogger()
	}
	return &Registry[K, V]{
		entries:          make(map[K]*entry[V]),
		futureProvider:   futureProvider,
		logger:           logger,
		metricsCollector: metricsCollector,
	}
}

// Dispatch either joins the in-flight operation for key or starts a new one.
//
// If an entry for key is already tracked, its future is returned as is and
// factory is not invoked; every concurrent caller receives the same future
// instance and settles with the same result. Otherwise factory is invoked, its
// future is registered under key, and a completion hook is attached that
// removes the entry when the future settles, on both success and failure.
//
// Dispatch never returns an error and never panics because of factory
// misbehavior: a factory that returns an error, panics, or returns a nil
// future yields an already-rejected future (no entry is registered in those
// cases). A panic value is wrapped into *promise.PanicError.
//
// The factory is invoked while the registry lock is held, which is what makes
// the existence check and the registration atomic. Factories must start their
// work and return promptly, and must not call back into the registry. The lock
// is released even if the factory panics or exits its goroutine.
func (r *Registry[K, V]) Dispatch(key K, factory Factory[V]) Future[V] {
	fut, ent, err := r.dispatchUnderLock(key, factory)
	if err != nil {
		r.metricsCollector.IncFactoryFailures()
		r.logger.Warn("xflight: factory failed", logf.Any("key", key), logf.Error(err))
		return r.futureProvider.Rejected(err)
	}
	if ent == nil {
		r.dedupedTotal.Inc()
		r.metricsCollector.IncDispatchJoins()
		r.logger.Debug("xflight: joined in-flight operation", logf.Any("key", key))
		return fut
	}

	r.dispatchedTotal.Inc()
	r.metricsCollector.IncDispatchStarts()
	r.logger.Debug("xflight: started in-flight operation", logf.Any("key", key))

	// Cleanup must fire on both settlement paths, so a failed operation does
	// not leave its key permanently stuck.
	fut.OnSettled(
		func(V) { r.settled(key, ent) },
		func(error) { r.settled(key, ent) },
	)
	return fut
}

// dispatchUnderLock is the atomic part of Dispatch: the existence check, the
// factory invocation and the registration happen under the registry lock, which
// is released via defer so a misbehaving factory cannot leak it. A nil entry
// with a non-nil future means the caller joined an existing operation; a
// non-nil entry means a new one was registered.
func (r *Registry[K, V]) dispatchUnderLock(key K, factory Factory[V]) (Future[V], *entry[V], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[key]; ok {
		return cur.future, nil, nil
	}

	fut, err := callFactory(factory)
	if err != nil {
		return nil, nil, err
	}
	if fut == nil {
		return nil, nil, &InvalidFactoryResultError{Key: key}
	}
	return fut, r.addLocked(key, fut, time.Now()), nil
}

// callFactory invokes factory, converting a panic into an error.
func callFactory[V any](factory Factory[V]) (fut Future[V], err error) {
	defer func() {
		if v := recover(); v != nil {
			fut, err = nil, promise.NewPanicError(v)
		}
	}()
	return factory()
}

// settled removes the entry registered by Dispatch once its future settles.
// The entry is removed only if it is still the one the hook was attached for,
// so a manual Remove followed by a fresh registration under the same key is
// never clobbered by a late-settling predecessor.
func (r *Registry[K, V]) settled(key K, ent *entry[V]) {
	r.mu.Lock()
	cur, ok := r.entries[key]
	if !ok || cur != ent {
		r.mu.Unlock()
		return
	}
	r.removeLocked(key)
	r.mu.Unlock()
	r.logger.Debug("xflight: in-flight operation settled", logf.Any("key", key))
}

// Do is a blocking convenience around Dispatch: it runs fn in a new goroutine
// behind a promise (unless an operation for key is already in flight) and waits
// for the shared result. The context bounds only this caller's wait; the
// operation itself keeps running for other callers when ctx is canceled.
func (r *Registry[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	fut := r.Dispatch(key, func() (Future[V], error) {
		return promise.Go(fn), nil
	})
	return Await(ctx, fut)
}

// Add registers a pending future under key with the current time as its start
// time. It returns an error wrapping ErrDuplicateKey if an entry for key is
// already tracked; registration is not idempotent.
func (r *Registry[K, V]) Add(key K, fut Future[V]) error {
	return r.AddWithStartTime(key, fut, time.Now())
}

// AddWithStartTime registers a pending future under key with an explicit start
// time. The entry's last-check time is initialized to the same value.
func (r *Registry[K, V]) AddWithStartTime(key K, fut Future[V], startTime time.Time) error {
	if fut == nil {
		return fmt.Errorf("future for key %v must not be nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return fmt.Errorf("key %v: %w", key, ErrDuplicateKey)
	}
	r.addLocked(key, fut, startTime)
	return nil
}

func (r *Registry[K, V]) addLocked(key K, fut Future[V], startTime time.Time) *entry[V] {
	ent := &entry[V]{startTime: startTime, checkTime: startTime, future: fut}
	r.entries[key] = ent
	r.count++
	r.metricsCollector.SetInFlightAmount(r.count)
	return ent
}

// Get returns the tracked future for key, or false if no entry exists.
// It has no side effects.
func (r *Registry[K, V]) Get(key K) (Future[V], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	return ent.future, true
}

// Remove removes the entry for key. It returns an error wrapping ErrMissingKey
// if no entry is tracked for key. Entries registered by Dispatch are removed
// automatically on settlement; Remove is for manually added entries and for
// callers that want to force a fresh dispatch.
func (r *Registry[K, V]) Remove(key K) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return fmt.Errorf("key %v: %w", key, ErrMissingKey)
	}
	r.removeLocked(key)
	return nil
}

func (r *Registry[K, V]) removeLocked(key K) {
	if r.count <= 0 {
		// The count mirrors len(entries) and both are only ever mutated
		// together under the lock; reaching this line means the invariant was
		// broken elsewhere.
		panic(fmt.Sprintf("xflight: entry count underflow (count=%d, entries=%d)", r.count, len(r.entries)))
	}
	delete(r.entries, key)
	r.count--
	r.metricsCollector.SetInFlightAmount(r.count)
	if r.count == 0 {
		// Re-make the map so a burst of unique keys does not pin its backing
		// storage forever.
		r.entries = make(map[K]*entry[V])
	}
}

// Len returns the number of tracked entries.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// IsEmpty reports whether no entries are tracked.
func (r *Registry[K, V]) IsEmpty() bool {
	return r.Len() == 0
}

// StartTime returns the time at which the entry for key was registered,
// or false if no entry is tracked.
func (r *Registry[K, V]) StartTime(key K) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return ent.startTime, true
}

// CheckTime returns the entry's last-check time, or false if no entry is tracked.
func (r *Registry[K, V]) CheckTime(key K) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return ent.checkTime, true
}

// ElapsedTime returns how long the operation for key has been in flight,
// or ElapsedUnknown (-1) if no entry is tracked.
func (r *Registry[K, V]) ElapsedTime(key K) time.Duration {
	return r.ElapsedTimeAt(key, time.Now())
}

// ElapsedTimeAt is ElapsedTime measured against an explicit current time.
func (r *Registry[K, V]) ElapsedTimeAt(key K, now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok {
		return ElapsedUnknown
	}
	return now.Sub(ent.startTime)
}

// ElapsedCheckTime returns how long ago the entry's check time was last reset,
// or ElapsedUnknown (-1) if no entry is tracked.
func (r *Registry[K, V]) ElapsedCheckTime(key K) time.Duration {
	return r.ElapsedCheckTimeAt(key, time.Now())
}

// ElapsedCheckTimeAt is ElapsedCheckTime measured against an explicit current time.
func (r *Registry[K, V]) ElapsedCheckTimeAt(key K, now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok {
		return ElapsedUnknown
	}
	return now.Sub(ent.checkTime)
}

// ResetCheckTime resets the entry's last-check time to the current time.
// Unlike Remove, it silently does nothing when no entry is tracked for key.
// It returns the registry to allow chaining.
func (r *Registry[K, V]) ResetCheckTime(key K) *Registry[K, V] {
	return r.ResetCheckTimeAt(key, time.Now())
}

// ResetCheckTimeAt resets the entry's last-check time to an explicit time.
func (r *Registry[K, V]) ResetCheckTimeAt(key K, now time.Time) *Registry[K, V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ent, ok := r.entries[key]; ok {
		ent.checkTime = now
	}
	return r
}

// ResetAllCheckTimes resets the last-check time of every tracked entry to the
// current time. It returns the registry to allow chaining.
func (r *Registry[K, V]) ResetAllCheckTimes() *Registry[K, V] {
	return r.ResetAllCheckTimesAt(time.Now())
}

// ResetAllCheckTimesAt resets the last-check time of every tracked entry to an
// explicit time.
func (r *Registry[K, V]) ResetAllCheckTimesAt(now time.Time) *Registry[K, V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ent := range r.entries {
		ent.checkTime = now
	}
	return r
}

// Stats represents usage statistics of the registry.
type Stats struct {
	// InFlight is the number of currently tracked entries.
	InFlight int

	// Dispatched is the total number of operations started by Dispatch.
	Dispatched uint64

	// Deduped is the total number of Dispatch calls that joined an operation
	// already in flight.
	Deduped uint64
}

// Stats returns usage statistics of the registry.
func (r *Registry[K, V]) Stats() Stats {
	return Stats{
		InFlight:   r.Len(),
		Dispatched: r.dispatchedTotal.Load(),
		Deduped:    r.dedupedTotal.Load(),
	}
}
