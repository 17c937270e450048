/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import (
	"github.com/ssgreg/logf"
)

// FieldLogger is the structured logging interface used by the registry.
// *logf.Logger satisfies it directly.
type FieldLogger interface {
	Debug(msg string, fields ...logf.Field)
	Warn(msg string, fields ...logf.Field)
}

var _ FieldLogger = (*logf.Logger)(nil)

type disabledFieldLogger struct{}

func (disabledFieldLogger) Debug(string, ...logf.Field) {}
func (disabledFieldLogger) Warn(string, ...logf.Field)  {}

// NewDisabledLogger returns a FieldLogger that logs nothing.
// It is the default logger of the registry.
func NewDisabledLogger() FieldLogger {
	return disabledFieldLogger{}
}
