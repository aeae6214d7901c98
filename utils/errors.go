package utils

import (
	"errors"
	"fmt"
)

type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}

// ConfigError is an unsupported mode, type or key declaration. It is always
// raised before the store is touched.
type ConfigError struct {
	Msg string
	Err error
}

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return "config error: " + e.Msg + ": " + e.Err.Error()
	}
	return "config error: " + e.Msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) IsPermanent() bool {
	return true
}

type permanent interface {
	IsPermanent() bool
}

// IsPermanent reports whether err, or anything it wraps, must not be retried.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.IsPermanent()
}
