package websocket

import (
	"net/http"
	"strconv"
)

// Kind identifies the top-level class of a WebSocket error.
//
// The set is closed: every error returned by this package has exactly one
// of these kinds, and callers can switch over Kind exhaustively instead of
// string matching. There is no catch-all kind; even the two "unknown"
// outcomes (KindBlobFormatUnsupported, KindUnknownFormat) are specific,
// named conditions.
type Kind int

const (
	// KindConnectionClosed reports that the closing handshake finished on
	// both sides. It is not a failure: it informs the caller that the
	// connection is done and the only meaningful action is dropping it.
	KindConnectionClosed Kind = iota

	// KindAlreadyClosed reports an operation on a connection after
	// ConnectionClosed was already observed. This indicates a programming
	// defect in the caller, not a transient condition.
	KindAlreadyClosed

	// KindIO wraps a failure of the underlying transport. Apart from
	// would-block conditions these are generally fatal; retry policy is
	// entirely the caller's.
	KindIO

	// KindTLS wraps a TLS-layer failure.
	KindTLS

	// KindCapacity reports a configured resource bound being exceeded.
	// The payload is a *CapacityError.
	KindCapacity

	// KindProtocol reports an RFC 6455 or HTTP-upgrade violation.
	// The payload is a *ProtocolError.
	KindProtocol

	// KindWriteBufferFull reports that a message could not be enqueued.
	// The rejected message is handed back to the caller via Message so no
	// data is lost on backpressure rejection.
	KindWriteBufferFull

	// KindUTF8 reports a text-decoding failure. The decoding position is
	// not preserved.
	KindUTF8

	// KindAttackAttempt reports peer behavior that cannot come from a
	// conforming endpoint: a denied origin, an impossible advertised frame
	// length, or an unbounded handshake head.
	KindAttackAttempt

	// KindURL reports a connection-URL validation failure. The payload is
	// a *URLError.
	KindURL

	// KindHTTP reports a handshake response that rejected the upgrade.
	// The payload is the *Response carrying the status code and any body.
	KindHTTP

	// KindHTTPFormat wraps an HTTP formatting failure: invalid header
	// name or value, invalid URI, or invalid status code.
	KindHTTPFormat

	// KindBlobFormatUnsupported reports a blob message payload, which
	// this implementation does not parse.
	KindBlobFormatUnsupported

	// KindUnknownFormat reports message data in no recognizable format.
	KindUnknownFormat
)

// String returns the kind name for logging.
//
//nolint:cyclop // one arm per kind
func (k Kind) String() string {
	switch k {
	case KindConnectionClosed:
		return "ConnectionClosed"
	case KindAlreadyClosed:
		return "AlreadyClosed"
	case KindIO:
		return "Io"
	case KindTLS:
		return "Tls"
	case KindCapacity:
		return "Capacity"
	case KindProtocol:
		return "Protocol"
	case KindWriteBufferFull:
		return "WriteBufferFull"
	case KindUTF8:
		return "Utf8"
	case KindAttackAttempt:
		return "AttackAttempt"
	case KindURL:
		return "Url"
	case KindHTTP:
		return "Http"
	case KindHTTPFormat:
		return "HttpFormat"
	case KindBlobFormatUnsupported:
		return "BlobFormatUnsupported"
	case KindUnknownFormat:
		return "UnknownFormat"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Response is a rejected handshake response: the status code plus any
// headers and body the server sent. It is the payload of KindHTTP errors.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte // nil when the server sent no body
}

// Error is the single closed error type returned by every fallible
// operation in this package.
//
// An Error is an immutable value constructed at the failure site and
// consumed once by the caller; it carries no identity beyond its content
// and needs no synchronization. Exactly one variant (Kind) is active per
// value, and the payload accessors return the zero value for kinds that
// carry no such payload.
type Error struct {
	kind  Kind
	cause error // KindIO, KindTLS, KindHTTPFormat
	cap   *CapacityError
	proto *ProtocolError
	url   *URLError
	msg   Message   // KindWriteBufferFull
	resp  *Response // KindHTTP
}

// Lifecycle sentinels and payload-less conditions. These are shared
// immutable values; comparing with errors.Is works because Error.Is
// matches on kind.
var (
	// ErrConnectionClosed is returned once the closing handshake has
	// completed on both sides. See KindConnectionClosed.
	ErrConnectionClosed = &Error{kind: KindConnectionClosed}

	// ErrAlreadyClosed is returned when operating on a connection after
	// ErrConnectionClosed was already observed. See KindAlreadyClosed.
	ErrAlreadyClosed = &Error{kind: KindAlreadyClosed}

	// ErrUTF8 is returned for any text-decoding failure.
	ErrUTF8 = &Error{kind: KindUTF8}

	// ErrAttackAttempt is returned for peer behavior that cannot come
	// from a conforming endpoint.
	ErrAttackAttempt = &Error{kind: KindAttackAttempt}

	// ErrBlobFormatUnsupported is returned for blob message payloads.
	ErrBlobFormatUnsupported = &Error{kind: KindBlobFormatUnsupported}

	// ErrUnknownFormat is returned for message data in no recognizable
	// format.
	ErrUnknownFormat = &Error{kind: KindUnknownFormat}
)

// Error renders the human-readable diagnostic. The wording is stable and
// part of the package contract; logging layers may surface it verbatim.
//
//nolint:cyclop // one arm per kind
func (e *Error) Error() string {
	switch e.kind {
	case KindConnectionClosed:
		return "Connection closed normally"
	case KindAlreadyClosed:
		return "Trying to work with closed connection"
	case KindIO:
		return "IO error: " + e.cause.Error()
	case KindTLS:
		return "TLS error: " + e.cause.Error()
	case KindCapacity:
		return "Space limit exceeded: " + e.cap.Error()
	case KindProtocol:
		return "WebSocket protocol error: " + e.proto.Error()
	case KindWriteBufferFull:
		return "Write buffer is full"
	case KindUTF8:
		return "UTF-8 encoding error"
	case KindAttackAttempt:
		return "Attack attempt detected"
	case KindURL:
		return "URL error: " + e.url.Error()
	case KindHTTP:
		return "HTTP error: " + strconv.Itoa(e.resp.StatusCode)
	case KindHTTPFormat:
		return "HTTP format error: " + e.cause.Error()
	case KindBlobFormatUnsupported:
		return "Parsing blobs is unsupported"
	case KindUnknownFormat:
		return "Unknown data format encountered"
	default:
		return "websocket error"
	}
}

// Kind returns the active variant.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap exposes the wrapped lower-level error, if any, for errors.Is and
// errors.As chains.
func (e *Error) Unwrap() error {
	switch e.kind {
	case KindIO, KindTLS, KindHTTPFormat:
		return e.cause
	case KindCapacity:
		return e.cap
	case KindProtocol:
		return e.proto
	case KindURL:
		return e.url
	default:
		return nil
	}
}

// Is matches two model errors by kind, so the shared sentinels above work
// with errors.Is regardless of which call site produced the value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.kind == e.kind
}

// Capacity returns the capacity payload, or nil for other kinds.
func (e *Error) Capacity() *CapacityError { return e.cap }

// Protocol returns the protocol payload, or nil for other kinds.
func (e *Error) Protocol() *ProtocolError { return e.proto }

// URL returns the URL payload, or nil for other kinds.
func (e *Error) URL() *URLError { return e.url }

// Message returns the rejected message for KindWriteBufferFull errors.
// The returned value is the exact message that failed to enqueue,
// including its original payload slice; ownership passes back to the
// caller.
func (e *Error) Message() Message { return e.msg }

// Response returns the rejected handshake response for KindHTTP errors,
// or nil for other kinds.
func (e *Error) Response() *Response { return e.resp }

// StatusCode returns the status code of a KindHTTP error, or 0.
func (e *Error) StatusCode() int {
	if e.resp == nil {
		return 0
	}
	return e.resp.StatusCode
}

// errCapacity wraps a capacity violation.
func errCapacity(ce *CapacityError) *Error {
	return &Error{kind: KindCapacity, cap: ce}
}

// errProtocol wraps a protocol violation.
func errProtocol(pe *ProtocolError) *Error {
	return &Error{kind: KindProtocol, proto: pe}
}

// errURL wraps a URL validation failure.
func errURL(ue *URLError) *Error {
	return &Error{kind: KindURL, url: ue}
}

// errWriteBufferFull hands msg back to the caller inside the error.
func errWriteBufferFull(msg Message) *Error {
	return &Error{kind: KindWriteBufferFull, msg: msg}
}

// NewHTTPError wraps a rejected handshake response. The response must be
// non-nil; its body may be.
func NewHTTPError(resp *Response) *Error {
	return &Error{kind: KindHTTP, resp: resp}
}
