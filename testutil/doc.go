/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil provides helpers for testing code that uses the xflight registry:
// assertions for Prometheus metrics values and error chains.
package testutil
