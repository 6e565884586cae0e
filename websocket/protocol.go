package websocket

import "strconv"

// Data names the class of data frame involved in a fragmentation-ordering
// violation. It is carried by ProtocolExpectedFragment to tell the caller
// which frame type arrived while fragment reassembly was still pending.
//
// The value is the data opcode itself: 0x0 continuation, 0x1 text,
// 0x2 binary, 0x3-0x7 reserved for future non-control frames.
type Data byte

const (
	// DataContinue is a continuation frame (opcode 0x0).
	DataContinue Data = 0x0
	// DataText is a text frame (opcode 0x1).
	DataText Data = 0x1
	// DataBinary is a binary frame (opcode 0x2).
	DataBinary Data = 0x2
)

// dataClass maps a data-frame opcode (0x0-0x7) to its Data class.
// Opcodes 0x3-0x7 yield the reserved class carrying the opcode value.
func dataClass(opcode byte) Data {
	return Data(opcode & 0x07)
}

// String renders the frame-type descriptor used in diagnostics.
func (d Data) String() string {
	switch d {
	case DataContinue:
		return "CONTINUE"
	case DataText:
		return "TEXT"
	case DataBinary:
		return "BINARY"
	default:
		return "RESERVED_DATA_" + strconv.Itoa(int(d))
	}
}

// ProtocolKind identifies the specific RFC 6455 or HTTP-upgrade rule that
// was violated.
//
// The first block covers handshake validation; validators report the first
// rule violated in the fixed order method, version, Connection header,
// Upgrade header, Sec-WebSocket-Version, Sec-WebSocket-Key, accept-key
// match. The second block covers closing-handshake discipline and the
// third framing discipline.
type ProtocolKind int

const (
	// ProtocolWrongHTTPMethod: the opening handshake did not use GET.
	ProtocolWrongHTTPMethod ProtocolKind = iota
	// ProtocolWrongHTTPVersion: HTTP version below 1.1.
	ProtocolWrongHTTPVersion
	// ProtocolMissingConnectionUpgrade: no "Connection: upgrade" header.
	ProtocolMissingConnectionUpgrade
	// ProtocolMissingUpgradeWebSocket: no "Upgrade: websocket" header.
	ProtocolMissingUpgradeWebSocket
	// ProtocolMissingSecWebSocketVersion: no "Sec-WebSocket-Version: 13".
	ProtocolMissingSecWebSocketVersion
	// ProtocolMissingSecWebSocketKey: no "Sec-WebSocket-Key" header.
	ProtocolMissingSecWebSocketKey
	// ProtocolSecWebSocketAcceptMismatch: the accept header is missing or
	// does not match the expected key digest.
	ProtocolSecWebSocketAcceptMismatch
	// ProtocolJunkAfterRequest: garbage bytes after the client request.
	ProtocolJunkAfterRequest
	// ProtocolCustomResponseSuccessful: a custom rejection response used a
	// successful status code.
	ProtocolCustomResponseSuccessful
	// ProtocolInvalidHeader: a caller tried to overwrite a handshake
	// header the library forms itself. Header() names it.
	ProtocolInvalidHeader
	// ProtocolHandshakeIncomplete: input ended while the handshake head
	// was still being read.
	ProtocolHandshakeIncomplete
	// ProtocolHeaderParse wraps a low-level header-parse failure;
	// Unwrap() exposes it. A too-many-headers parse failure never takes
	// this form, it reclassifies as a capacity error.
	ProtocolHeaderParse
	// ProtocolSendAfterClosing: a send was attempted after this side sent
	// its close frame.
	ProtocolSendAfterClosing
	// ProtocolReceivedAfterClosing: the peer sent data after having
	// closed.
	ProtocolReceivedAfterClosing
	// ProtocolNonZeroReservedBits: RSV1/RSV2/RSV3 set without a
	// negotiated extension.
	ProtocolNonZeroReservedBits
	// ProtocolUnmaskedFrameFromClient: a server received an unmasked
	// frame.
	ProtocolUnmaskedFrameFromClient
	// ProtocolMaskedFrameFromServer: a client received a masked frame.
	ProtocolMaskedFrameFromServer
	// ProtocolFragmentedControlFrame: a control frame with FIN=0.
	ProtocolFragmentedControlFrame
	// ProtocolControlFrameTooBig: a control frame payload over 125 bytes.
	ProtocolControlFrameTooBig
	// ProtocolUnknownControlFrameType: a reserved control opcode
	// (0xB-0xF). Opcode() carries the value.
	ProtocolUnknownControlFrameType
	// ProtocolUnknownDataFrameType: a reserved data opcode (0x3-0x7).
	// Opcode() carries the value.
	ProtocolUnknownDataFrameType
	// ProtocolUnexpectedContinueFrame: a continuation frame with nothing
	// to continue.
	ProtocolUnexpectedContinueFrame
	// ProtocolExpectedFragment: a new data frame arrived while fragment
	// reassembly was pending. Data() names the frame class received.
	ProtocolExpectedFragment
	// ProtocolResetWithoutClosingHandshake: the connection dropped
	// without a closing handshake.
	ProtocolResetWithoutClosingHandshake
	// ProtocolInvalidOpcode: an opcode value outside the 4-bit range.
	// Opcode() carries the value.
	ProtocolInvalidOpcode
	// ProtocolInvalidCloseSequence: a close frame payload that cannot be
	// parsed (one-byte payload, reserved code, or non-UTF-8 reason).
	ProtocolInvalidCloseSequence
)

// ProtocolError is a violation of RFC 6455 or of the HTTP upgrade rules,
// reported by the framing and handshake validators. It performs no
// validation itself; it only carries whichever single violation the
// validator surfaced, with the payload needed for its diagnostic.
type ProtocolError struct {
	kind   ProtocolKind
	header string // ProtocolInvalidHeader
	opcode byte   // ProtocolUnknown*FrameType, ProtocolInvalidOpcode
	data   Data   // ProtocolExpectedFragment
	cause  error  // ProtocolHeaderParse
}

// NewProtocolError builds a payload-less protocol violation. Use the
// dedicated constructors for kinds that carry a payload.
func NewProtocolError(kind ProtocolKind) *ProtocolError {
	return &ProtocolError{kind: kind}
}

// NewInvalidHeaderError reports an attempt to overwrite the standard
// handshake header name.
func NewInvalidHeaderError(name string) *ProtocolError {
	return &ProtocolError{kind: ProtocolInvalidHeader, header: name}
}

// NewOpcodeError reports an opcode violation; kind must be one of
// ProtocolUnknownControlFrameType, ProtocolUnknownDataFrameType or
// ProtocolInvalidOpcode.
func NewOpcodeError(kind ProtocolKind, opcode byte) *ProtocolError {
	return &ProtocolError{kind: kind, opcode: opcode}
}

// NewExpectedFragmentError reports the data frame class that arrived
// while fragment reassembly was pending.
func NewExpectedFragmentError(data Data) *ProtocolError {
	return &ProtocolError{kind: ProtocolExpectedFragment, data: data}
}

// newHeaderParseError wraps a raw header-parse failure. Callers go
// through FromHeaderParseError, which applies the too-many-headers
// reclassification first.
func newHeaderParseError(cause error) *ProtocolError {
	return &ProtocolError{kind: ProtocolHeaderParse, cause: cause}
}

// Kind returns the active variant.
func (e *ProtocolError) Kind() ProtocolKind { return e.kind }

// Header returns the offending header name for ProtocolInvalidHeader.
func (e *ProtocolError) Header() string { return e.header }

// Opcode returns the offending opcode byte for the opcode kinds.
func (e *ProtocolError) Opcode() byte { return e.opcode }

// Data returns the frame class for ProtocolExpectedFragment.
func (e *ProtocolError) Data() Data { return e.data }

// Unwrap returns the wrapped parse failure for ProtocolHeaderParse.
func (e *ProtocolError) Unwrap() error { return e.cause }

// Error renders the stable diagnostic for this violation.
//
//nolint:cyclop // one arm per kind
func (e *ProtocolError) Error() string {
	switch e.kind {
	case ProtocolWrongHTTPMethod:
		return "Unsupported HTTP method used - only GET is allowed"
	case ProtocolWrongHTTPVersion:
		return "HTTP version must be 1.1 or higher"
	case ProtocolMissingConnectionUpgrade:
		return `No "Connection: upgrade" header`
	case ProtocolMissingUpgradeWebSocket:
		return `No "Upgrade: websocket" header`
	case ProtocolMissingSecWebSocketVersion:
		return `No "Sec-WebSocket-Version: 13" header`
	case ProtocolMissingSecWebSocketKey:
		return `No "Sec-WebSocket-Key" header`
	case ProtocolSecWebSocketAcceptMismatch:
		return `Key mismatch in "Sec-WebSocket-Accept" header`
	case ProtocolJunkAfterRequest:
		return "Junk after client request"
	case ProtocolCustomResponseSuccessful:
		return "Custom response must not be successful"
	case ProtocolInvalidHeader:
		return "Not allowed to overwrite the standard header " + e.header
	case ProtocolHandshakeIncomplete:
		return "Handshake not finished"
	case ProtocolHeaderParse:
		return "header parse error: " + e.cause.Error()
	case ProtocolSendAfterClosing:
		return "Sending after closing is not allowed"
	case ProtocolReceivedAfterClosing:
		return "Remote sent after having closed"
	case ProtocolNonZeroReservedBits:
		return "Reserved bits are non-zero"
	case ProtocolUnmaskedFrameFromClient:
		return "Received an unmasked frame from client"
	case ProtocolMaskedFrameFromServer:
		return "Received a masked frame from server"
	case ProtocolFragmentedControlFrame:
		return "Fragmented control frame"
	case ProtocolControlFrameTooBig:
		return "Control frame too big (payload must be 125 bytes or less)"
	case ProtocolUnknownControlFrameType:
		return "Unknown control frame type: " + strconv.Itoa(int(e.opcode))
	case ProtocolUnknownDataFrameType:
		return "Unknown data frame type: " + strconv.Itoa(int(e.opcode))
	case ProtocolUnexpectedContinueFrame:
		return "Continue frame but nothing to continue"
	case ProtocolExpectedFragment:
		return "While waiting for more fragments received: " + e.data.String()
	case ProtocolResetWithoutClosingHandshake:
		return "Connection reset without closing handshake"
	case ProtocolInvalidOpcode:
		return "Encountered invalid opcode: " + strconv.Itoa(int(e.opcode))
	case ProtocolInvalidCloseSequence:
		return "Invalid close sequence"
	default:
		return "protocol error"
	}
}
