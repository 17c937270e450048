/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import (
	"context"
	"time"

	"github.com/ssgreg/logf"
)

// StaleFunc is called by RunPeriodicStaleCheck for every stale entry.
// inFlightFor is how long the operation for key has been in flight.
type StaleFunc[K comparable] func(key K, inFlightFor time.Duration)

// RunPeriodicStaleCheck runs a cycle of periodic inspection of tracked entries.
// It's supposed to be run in a separate goroutine.
//
// Every cfg.Interval, entries whose last-check time is at least cfg.Threshold
// old are reported: onStale (if non-nil) is called and a warning is logged for
// each of them. A reported entry's check time is reset, so it is reported again
// only after another cfg.Threshold passes. Entries themselves are never removed,
// the registry has no awareness of timeouts.
//
// If cfg.Enabled is false, RunPeriodicStaleCheck returns immediately.
func (r *Registry[K, V]) RunPeriodicStaleCheck(ctx context.Context, cfg StaleCheckConfig, onStale StaleFunc[K]) {
	if !cfg.Enabled {
		return
	}

	ticker := time.NewTicker(time.Duration(cfg.Interval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reportStaleEntries(time.Duration(cfg.Threshold), onStale)
		}
	}
}

type staleEntry[K comparable] struct {
	key         K
	inFlightFor time.Duration
}

func (r *Registry[K, V]) reportStaleEntries(threshold time.Duration, onStale StaleFunc[K]) {
	now := time.Now()

	var stale []staleEntry[K]
	r.mu.Lock()
	for key, ent := range r.entries {
		if now.Sub(ent.checkTime) < threshold {
			continue
		}
		ent.checkTime = now
		stale = append(stale, staleEntry[K]{key: key, inFlightFor: now.Sub(ent.startTime)})
	}
	r.mu.Unlock()

	// Callbacks and logging happen outside the lock.
	for _, s := range stale {
		r.logger.Warn("xflight: operation still in flight",
			logf.Any("key", s.key), logf.Duration("in_flight_for", s.inFlightFor))
		if onStale != nil {
			onStale(s.key, s.inFlightFor)
		}
	}
}
