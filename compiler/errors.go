package compiler

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// UnknownConstantError reports a call target with no entry in the
// declaration table.
type UnknownConstantError struct {
	Name string
}

func (e *UnknownConstantError) Error() string {
	return fmt.Sprintf("code generation failed, VM does not have code for '%s'", e.Name)
}

// UnsupportedMacroError reports a macro that survived erasure.
type UnsupportedMacroError struct {
	Tag string
}

func (e *UnsupportedMacroError) Error() string {
	return fmt.Sprintf("code generation failed, unexpected kind of macro has been found: '%s'", e.Tag)
}

// InvariantError is the panic value raised when a term shape that upstream
// passes must have removed reaches code generation. It is never returned
// as an ordinary error.
type InvariantError struct {
	Decl string
	Msg  string
}

func (e *InvariantError) Error() string {
	if e.Decl == "" {
		return "compiler invariant violated: " + e.Msg
	}
	return fmt.Sprintf("compiler invariant violated in %s: %s", e.Decl, e.Msg)
}

// ErrArityMismatch is returned when a compiled body disagrees with the arity
// it was reserved under.
var ErrArityMismatch = errors.New("compiled arity differs from reservation")

func invariantf(format string, args ...interface{}) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}

// AsInvariant reports whether a recovered panic value is an invariant
// violation.
func AsInvariant(r interface{}) (*InvariantError, bool) {
	ie, ok := r.(*InvariantError)
	return ie, ok
}
