// Package siteerrors provides structured error types for sitekeeper.
//
// Per-item failures (an unreadable directory, a file that cannot be read, a
// delete or write that fails) are never returned from the engine; they are
// logged or recorded in the ledger. The types here describe the failures
// that do propagate: an unusable project root and invalid rule
// configuration. Callers use errors.Is and errors.As to map them to exit
// codes.
package siteerrors

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrRootNotFound indicates the project root does not exist.
	ErrRootNotFound = errors.New("root path does not exist")

	// ErrRootNotDirectory indicates the project root is not a directory.
	ErrRootNotDirectory = errors.New("root path is not a directory")

	// ErrPermission indicates the root (or another required path) cannot be accessed.
	ErrPermission = errors.New("permission denied")

	// ErrRuleConfig indicates an invalid rewrite rule table or rule file.
	ErrRuleConfig = errors.New("invalid rule configuration")

	// ErrPathEscape indicates a path resolved outside the project root.
	ErrPathEscape = errors.New("path escapes project root")

	// ErrConfig indicates an unreadable or invalid configuration file or value.
	ErrConfig = errors.New("invalid configuration")

	// ErrInput indicates invalid command input.
	ErrInput = errors.New("invalid input")
)

// RootError reports a project root that cannot be used.
type RootError struct {
	// Path is the root as given by the user
	Path string
	// Cause is the underlying error
	Cause error
}

// Error returns a human-readable error message.
func (e *RootError) Error() string {
	return fmt.Sprintf("project root %q: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying error.
func (e *RootError) Unwrap() error { return e.Cause }

// RuleError reports a problem with a single rewrite rule or a rule file.
type RuleError struct {
	// Source is the rule file path, or "builtin"
	Source string
	// RuleID identifies the offending rule (empty for file-level errors)
	RuleID string
	// Message describes the problem
	Message string
	// Cause is the underlying error, if any
	Cause error
}

// Error returns a human-readable error message.
func (e *RuleError) Error() string {
	msg := "rule error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.RuleID != "" {
		msg += fmt.Sprintf(" (rule %s)", e.RuleID)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RuleError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrRuleConfig.
func (e *RuleError) Is(target error) bool { return target == ErrRuleConfig }

// ClassifyFS converts a filesystem error on the root into the matching sentinel.
func ClassifyFS(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrRootNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermission
	default:
		return err
	}
}
