package ir

import (
	"errors"
	"fmt"
)

// Sentinel errors for context and module lifecycle violations.
var (
	// ErrContextClosed is returned when a closed Context or one of its
	// modules is used.
	ErrContextClosed = errors.New("context is closed")

	// ErrModuleBusy is returned when a module is acquired while another
	// owner (a running pass manager) holds it.
	ErrModuleBusy = errors.New("module is owned by a running pipeline")

	// ErrDialectsFrozen is returned when a new dialect is loaded after the
	// first module was created in the context.
	ErrDialectsFrozen = errors.New("dialects must be loaded before the first module is created")
)

// UnregisteredDialectError reports an operation whose dialect is not loaded
// in the context.
type UnregisteredDialectError struct {
	Dialect string
	Op      string
}

func (e *UnregisteredDialectError) Error() string {
	return fmt.Sprintf("operation '%s' belongs to unregistered dialect '%s'", e.Op, e.Dialect)
}

// UnknownOpError reports an operation name that its (loaded) dialect does
// not define.
type UnknownOpError struct {
	Op string
}

func (e *UnknownOpError) Error() string {
	return fmt.Sprintf("unknown operation '%s'", e.Op)
}

// UnknownDialectError reports a dialect id missing from the registry.
type UnknownDialectError struct {
	Dialect string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("dialect '%s' is not available in the registry", e.Dialect)
}

// DialectVersionError reports a loaded dialect whose version does not
// satisfy a required constraint.
type DialectVersionError struct {
	Dialect    string
	Version    string
	Constraint string
}

func (e *DialectVersionError) Error() string {
	return fmt.Sprintf("dialect '%s' version %s does not satisfy %q", e.Dialect, e.Version, e.Constraint)
}

// VerifyError reports an ill-formed operation.
type VerifyError struct {
	Op      string
	Loc     Location
	Message string
}

func (e *VerifyError) Error() string {
	if e.Loc.IsKnown() {
		return fmt.Sprintf("%s: '%s' op %s", e.Loc, e.Op, e.Message)
	}
	return fmt.Sprintf("'%s' op %s", e.Op, e.Message)
}

// IsUnregisteredDialect reports whether err wraps an UnregisteredDialectError.
// Uses errors.As to handle wrapped errors.
func IsUnregisteredDialect(err error) bool {
	var ue *UnregisteredDialectError
	return errors.As(err, &ue)
}

// IsVerifyError reports whether err wraps a VerifyError.
func IsVerifyError(err error) bool {
	var ve *VerifyError
	return errors.As(err, &ve)
}
