package core

import (
	"errors"
	"fmt"
)

// ErrRenderUnavailable is returned for render entries when no template
// renderer has been configured.
var ErrRenderUnavailable = errors.New("template rendering is not available")

// ConfigError reports a configuration document that cannot be resolved into a
// valid plan. It is always fatal.
type ConfigError struct {
	File string // document the error was found in, may be empty
	Msg  string
	Err  error
}

func NewConfigError(file, msg string, err error) *ConfigError {
	return &ConfigError{File: file, Msg: msg, Err: err}
}

func (e *ConfigError) Error() string {
	s := "config"
	if e.File != "" {
		s += " " + e.File
	}
	s += ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ConfigError) Unwrap() error { return e.Err }

// MissingSourceError reports a copy, link or render source that does not exist.
type MissingSourceError struct {
	Path string
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("source %s does not exist", e.Path)
}

// ConflictError reports a destination that exists and is incompatible with the
// action that targets it.
type ConflictError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	s := fmt.Sprintf("conflict at %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ConflictError) Unwrap() error { return e.Err }

// PathError reports a path that cannot be hashed because it is neither a
// regular file nor a directory.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported path %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("unsupported path %s", e.Path)
}

func (e *PathError) Unwrap() error { return e.Err }

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
