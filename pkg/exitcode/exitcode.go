/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/

// Package exitcode provides standardized exit codes for sitekeeper
package exitcode

import (
	"errors"

	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
)

// Exit codes for the sitekeeper CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	FileSystemError = 3
	PermissionError = 4
	InputError      = 5
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case FileSystemError:
		return "File system error"
	case PermissionError:
		return "Permission error"
	case InputError:
		return "Input error"
	default:
		return "Unknown error"
	}
}

// FromError maps an error returned by a command to the exit code the process should use.
func FromError(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, siteerrors.ErrRuleConfig), errors.Is(err, siteerrors.ErrConfig):
		return ConfigError
	case errors.Is(err, siteerrors.ErrPermission):
		return PermissionError
	case errors.Is(err, siteerrors.ErrRootNotFound), errors.Is(err, siteerrors.ErrRootNotDirectory):
		return FileSystemError
	case errors.Is(err, siteerrors.ErrInput):
		return InputError
	default:
		return GeneralError
	}
}
