package websocket

import (
	"errors"

	"github.com/coregx/ws/internal/httphead"
)

// This file is the conversion layer: one explicit, named, total function
// per raw failure type produced at the transport and parsing boundaries.
// Each function maps its whole input domain onto exactly one model
// variant, performs no I/O, and never panics. Keeping the conversions
// explicit (instead of wrapping ad hoc at call sites) makes the single
// nontrivial rule - the too-many-headers reclassification in
// FromHeaderParseError - auditable and testable in isolation.

// FromIOError wraps a transport failure as KindIO. A value that is
// already a model error passes through unchanged so double classification
// cannot occur.
func FromIOError(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return &Error{kind: KindIO, cause: err}
}

// FromTLSError wraps a TLS-layer failure as KindTLS.
func FromTLSError(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: KindTLS, cause: err}
}

// FromHeaderParseError classifies a raw header-parse failure.
//
// A too-many-headers failure is a capacity violation, not a protocol
// violation: it reclassifies as Capacity(TooManyHeaders). Every other
// parse failure wraps unchanged as Protocol(HeaderParse) - never the
// reverse.
func FromHeaderParseError(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, httphead.ErrTooManyHeaders) {
		return errCapacity(errTooManyHeaders)
	}
	return errProtocol(newHeaderParseError(err))
}

// FromHTTPFormatError wraps a header-name, header-value, URI or
// status-code validation failure as KindHTTPFormat.
func FromHTTPFormatError(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: KindHTTPFormat, cause: err}
}

// FromUTF8Error collapses any text-decoding failure - whether from a raw
// byte sequence or an owned text buffer - to KindUTF8. The decoding
// position is discarded; only the fact of the failure survives.
func FromUTF8Error(err error) *Error {
	if err == nil {
		return nil
	}
	return ErrUTF8
}

// FromHeaderValueTextError collapses a header-value-to-text conversion
// failure to KindUTF8, like any other text-decoding failure.
func FromHeaderValueTextError(err error) *Error {
	return FromUTF8Error(err)
}

// AsError extracts the model error from err, if it carries one.
func AsError(err error) (*Error, bool) {
	var me *Error
	ok := errors.As(err, &me)
	return me, ok
}
