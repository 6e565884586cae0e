package websocket

// URLKind identifies the specific cause of a connection-URL rejection.
type URLKind int

const (
	// URLTLSFeatureNotEnabled: a wss URL was used while TLS support is
	// disabled on the dialer.
	URLTLSFeatureNotEnabled URLKind = iota
	// URLNoHostName: the URL does not include a host component.
	URLNoHostName
	// URLUnableToConnect: connecting to the URL failed. Reason() carries
	// the address or diagnostic string.
	URLUnableToConnect
	// URLUnsupportedScheme: only ws and wss schemes are accepted.
	URLUnsupportedScheme
	// URLEmptyHostName: the host component is present but empty.
	URLEmptyHostName
	// URLNoPathOrQuery: the URL has no usable path or query to form the
	// request target from.
	URLNoPathOrQuery
)

// URLError is a connection-URL validation failure, produced before any
// connection is established.
type URLError struct {
	kind   URLKind
	reason string // URLUnableToConnect
}

// NewURLError builds a payload-less URL rejection.
func NewURLError(kind URLKind) *URLError {
	return &URLError{kind: kind}
}

// NewUnableToConnectError records the address or diagnostic for a failed
// connect. Failure causes at this layer are transport specific, so the
// reason stays free text.
func NewUnableToConnectError(reason string) *URLError {
	return &URLError{kind: URLUnableToConnect, reason: reason}
}

// Kind returns the active variant.
func (e *URLError) Kind() URLKind { return e.kind }

// Reason returns the connect diagnostic for URLUnableToConnect.
func (e *URLError) Reason() string { return e.reason }

// Error renders the stable diagnostic for this rejection.
func (e *URLError) Error() string {
	switch e.kind {
	case URLTLSFeatureNotEnabled:
		return "TLS support not enabled"
	case URLNoHostName:
		return "No host name in the URL"
	case URLUnableToConnect:
		return "Unable to connect to " + e.reason
	case URLUnsupportedScheme:
		return "URL scheme not supported"
	case URLEmptyHostName:
		return "URL contains empty host name"
	case URLNoPathOrQuery:
		return "No path/query in URL"
	default:
		return "URL error"
	}
}
