package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error kinds in the apply, reconcile, and secret
// paths. Wrapper types below attach operation-specific context while still
// satisfying errors.Is against these sentinels.
var (
	ErrUnsupportedAlgorithm = errors.New("rezn: unsupported signature algorithm")
	ErrSignature            = errors.New("rezn: signature verification failed")
	ErrDecode               = errors.New("rezn: malformed encoding")
	ErrStorage              = errors.New("rezn: storage failure")
	ErrGateway              = errors.New("rezn: gateway request failed")
	ErrCrypto               = errors.New("rezn: cryptographic operation failed")
	ErrIdentity             = errors.New("rezn: identity unavailable")
	ErrNotFound             = errors.New("rezn: not found")
	ErrConfig               = errors.New("rezn: invalid configuration")
)

// OpError wraps a sentinel error with the operation and subject it occurred
// on, mirroring the KeyError pattern in the signing-and-keyring corner of
// the example corpus.
type OpError struct {
	Op      string
	Subject string
	Kind    error
	Err     error
}

func (e *OpError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Subject, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is reports whether target matches this error's declared Kind, so callers
// can test with errors.Is(err, model.ErrNotFound) regardless of wrapping.
func (e *OpError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// WrapOp builds an OpError, returning nil if err is nil.
func WrapOp(op, subject string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Subject: subject, Kind: kind, Err: err}
}
