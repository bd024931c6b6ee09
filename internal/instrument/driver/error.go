package driver

import "fmt"

// ConfigError is a custom error type for configuration errors
type ConfigError struct {
	Field string
	msg   string
}

func NewConfigError(field, msg string) *ConfigError {
	return &ConfigError{Field: field, msg: msg}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.msg)
}

// RuntimeError is a custom error type for acquisition runtime errors
type RuntimeError struct {
	Runtime string
	Err     error
}

func NewRuntimeError(runtime string, err error) *RuntimeError {
	return &RuntimeError{Runtime: runtime, Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime %s: %s", e.Runtime, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
