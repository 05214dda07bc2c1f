// Package mamerr defines the error taxonomy shared by the ternary MAM
// core: sponge, spongos, prng, wots and mss all report failures through
// the same Error interface so that callers can distinguish permanent,
// unrecoverable conditions from ordinary input-driven ones.
package mamerr

import "fmt"

// Kind distinguishes the error taxonomy named by the core.
type Kind int

const (
	// InputShape: buffer sizes or trit values out of range.
	InputShape Kind = iota
	// ControlInvalid: absorb called with a control tag other than Data or Key.
	ControlInvalid
	// KeyExhausted: MSS sign called after 2^H prior signatures.
	KeyExhausted
	// StateCorrupt: an invariant check failed during sign. Unrecoverable.
	StateCorrupt
)

// Error is implemented by every error this module returns.
type Error interface {
	error
	// Locked reports whether this error reflects a permanent,
	// unrecoverable condition (StateCorrupt) rather than a transient
	// or input-driven one.
	Locked() bool
	// Inner returns the wrapped error, if any.
	Inner() error
	// Kind returns the taxonomy kind of this error.
	Kind() Kind
}

type errorImpl struct {
	kind  Kind
	msg   string
	inner error
}

func (err *errorImpl) Locked() bool { return err.kind == StateCorrupt }
func (err *errorImpl) Inner() error { return err.inner }
func (err *errorImpl) Kind() Kind   { return err.kind }

func (err *errorImpl) Error() string {
	if err.inner != nil {
		return fmt.Sprintf("%s: %s", err.msg, err.inner.Error())
	}
	return err.msg
}

func (err *errorImpl) Unwrap() error { return err.inner }

// Errorf formats a new Error of the given kind.
func Errorf(kind Kind, format string, a ...interface{}) Error {
	return &errorImpl{kind: kind, msg: fmt.Sprintf(format, a...)}
}

// WrapErrorf formats a new Error of the given kind wrapping another error.
func WrapErrorf(kind Kind, err error, format string, a ...interface{}) Error {
	return &errorImpl{kind: kind, msg: fmt.Sprintf(format, a...), inner: err}
}
