// Package errs classifies failures into configuration errors, which are
// terminal, and everything else, which callers may retry.
package errs

import (
	"errors"
	"fmt"
)

// ConfigError reports a problem that retrying cannot fix: a missing
// template, a missing workspace/repository slug, a disabled feature.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

// Config returns a ConfigError with a formatted message.
func Config(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether err or anything it wraps is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Retryable reports whether a failed attempt may be tried again.
func Retryable(err error) bool {
	return err != nil && !IsConfig(err)
}
