/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import (
	"errors"
	"fmt"
)

// ErrDuplicateKey is returned by Add when an entry for the key is already tracked.
// Registration is not idempotent; use Dispatch to join an in-flight operation.
var ErrDuplicateKey = errors.New("key is already in flight")

// ErrMissingKey is returned by Remove when no entry is tracked for the key.
var ErrMissingKey = errors.New("key is not in flight")

// InvalidFactoryResultError is carried by the rejected future that Dispatch
// returns when a factory produces neither a future nor an error.
type InvalidFactoryResultError struct {
	Key interface{}
}

func (e *InvalidFactoryResultError) Error() string {
	return fmt.Sprintf("factory for key %v returned no future", e.Key)
}
