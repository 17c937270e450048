/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package promise

import (
	"bytes"
	"fmt"
	"runtime/debug"
)

// PanicError is an error that represents a recovered panic value and stack trace.
type PanicError struct {
	Value interface{}
	Stack []byte
}

// NewPanicError creates a PanicError for the given panic value, capturing the
// current goroutine's stack trace.
func NewPanicError(v interface{}) *PanicError {
	stack := debug.Stack()

	// The first line of the stack trace is of the form "goroutine N [status]:"
	// but by the time the error is observed the goroutine may no longer exist
	// and its status will have changed. Trim out the misleading line.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Value: v, Stack: stack}
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.Value, p.Stack)
}

func (p *PanicError) Unwrap() error {
	err, ok := p.Value.(error)
	if !ok {
		return nil
	}
	return err
}
