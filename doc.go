/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package xflight deduplicates concurrent asynchronous operations that share a key.
// While an operation for a key is in flight, every Dispatch call for that key joins
// the pending operation and receives the same future instead of starting redundant
// work. Entries are removed automatically when the tracked future settles.
//
// The registry tracks start and last-check timestamps per entry, supports periodic
// stale-entry inspection, and exposes Prometheus metrics.
package xflight
