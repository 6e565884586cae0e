package websocket

import (
	"errors"
	"io"
	"unicode/utf8"
)

// MessageType represents WebSocket message type.
//
// WebSocket supports two application message types (RFC 6455 Section 5.6):
// - Text (UTF-8 encoded text).
// - Binary (arbitrary binary data).
type MessageType int

const (
	// TextMessage represents a UTF-8 text message (opcode 0x1).
	// Text frames MUST contain valid UTF-8 data (RFC 6455 Section 8.1).
	TextMessage MessageType = 1

	// BinaryMessage represents a binary data message (opcode 0x2).
	// Binary frames can contain arbitrary binary data.
	BinaryMessage MessageType = 2
)

// String returns string representation of message type.
func (mt MessageType) String() string {
	switch mt {
	case TextMessage:
		return "Text"
	case BinaryMessage:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Message is one complete application message: its type and payload.
//
// Messages are plain values. A Message rejected by a full write buffer
// comes back to the caller inside the error (Error.Message) with the same
// payload slice, so backpressure never loses data.
type Message struct {
	Type MessageType
	Data []byte
}

// NewTextMessage builds a text message from s.
func NewTextMessage(s string) Message {
	return Message{Type: TextMessage, Data: []byte(s)}
}

// NewBinaryMessage builds a binary message around data (no copy).
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// NewMessage converts an application payload into a Message.
//
// Strings become text messages and byte slices binary messages. Streamed
// blob payloads (io.Reader) are not parsed by this implementation and
// yield ErrBlobFormatUnsupported; any other payload type yields
// ErrUnknownFormat.
func NewMessage(v any) (Message, error) {
	switch data := v.(type) {
	case string:
		return NewTextMessage(data), nil
	case []byte:
		return NewBinaryMessage(data), nil
	case io.Reader:
		return Message{}, ErrBlobFormatUnsupported
	default:
		return Message{}, ErrUnknownFormat
	}
}

// Text returns the payload as text.
//
// Returns ErrUTF8 for a text message with invalid UTF-8 payload and
// ErrUnknownFormat when the message type is not a recognized data format.
func (m Message) Text() (string, error) {
	switch m.Type {
	case TextMessage:
		if !utf8.Valid(m.Data) {
			return "", ErrUTF8
		}
		return string(m.Data), nil
	case BinaryMessage:
		if !utf8.Valid(m.Data) {
			return "", ErrUTF8
		}
		return string(m.Data), nil
	default:
		return "", ErrUnknownFormat
	}
}

// CloseCode represents WebSocket close status codes (RFC 6455 Section 7.4).
//
// Close frames MAY contain a status code indicating the reason for closure.
// Status codes 1000-4999 are defined by the WebSocket protocol.
type CloseCode int

const (
	// CloseNormalClosure indicates normal closure (1000).
	// Connection purpose fulfilled.
	CloseNormalClosure CloseCode = 1000

	// CloseGoingAway indicates endpoint going away (1001).
	// Server shutting down or browser navigating away.
	CloseGoingAway CloseCode = 1001

	// CloseProtocolError indicates protocol error (1002).
	// Endpoint received frame it cannot understand.
	CloseProtocolError CloseCode = 1002

	// CloseUnsupportedData indicates unsupported data type (1003).
	// Endpoint received data type it cannot accept.
	CloseUnsupportedData CloseCode = 1003

	// 1004 is reserved and MUST NOT be used.

	// CloseNoStatusReceived indicates no status code was received (1005).
	// This is a reserved value and MUST NOT be set in close frame.
	// Used internally when close frame has no status code.
	CloseNoStatusReceived CloseCode = 1005

	// CloseAbnormalClosure indicates abnormal closure (1006).
	// This is a reserved value and MUST NOT be set in close frame.
	// Used internally when connection closed without close frame.
	CloseAbnormalClosure CloseCode = 1006

	// CloseInvalidFramePayloadData indicates invalid frame payload (1007).
	// Message payload contains invalid data (e.g. invalid UTF-8 in text frame).
	CloseInvalidFramePayloadData CloseCode = 1007

	// ClosePolicyViolation indicates policy violation (1008).
	// Endpoint received message violating its policy (generic status code).
	ClosePolicyViolation CloseCode = 1008

	// CloseMessageTooBig indicates message too large (1009).
	// Endpoint received message too big to process.
	CloseMessageTooBig CloseCode = 1009

	// CloseMandatoryExtension indicates missing extension (1010).
	// Client expected server to negotiate one or more extensions.
	CloseMandatoryExtension CloseCode = 1010

	// CloseInternalServerErr indicates internal server error (1011).
	// Server encountered unexpected condition.
	CloseInternalServerErr CloseCode = 1011

	// CloseServiceRestart indicates service restart (1012).
	CloseServiceRestart CloseCode = 1012

	// CloseTryAgainLater indicates try again later (1013).
	// Server is temporarily unable to process request (e.g. overloaded).
	CloseTryAgainLater CloseCode = 1013

	// 1014 is reserved and MUST NOT be used.

	// CloseTLSHandshake indicates TLS handshake failure (1015).
	// This is a reserved value and MUST NOT be set in close frame.
	CloseTLSHandshake CloseCode = 1015
)

// String returns string representation of close code.
//
//nolint:cyclop // 15 close codes per RFC 6455
func (cc CloseCode) String() string {
	switch cc {
	case CloseNormalClosure:
		return "Normal Closure"
	case CloseGoingAway:
		return "Going Away"
	case CloseProtocolError:
		return "Protocol Error"
	case CloseUnsupportedData:
		return "Unsupported Data"
	case CloseNoStatusReceived:
		return "No Status Received"
	case CloseAbnormalClosure:
		return "Abnormal Closure"
	case CloseInvalidFramePayloadData:
		return "Invalid Frame Payload Data"
	case ClosePolicyViolation:
		return "Policy Violation"
	case CloseMessageTooBig:
		return "Message Too Big"
	case CloseMandatoryExtension:
		return "Mandatory Extension"
	case CloseInternalServerErr:
		return "Internal Server Error"
	case CloseServiceRestart:
		return "Service Restart"
	case CloseTryAgainLater:
		return "Try Again Later"
	case CloseTLSHandshake:
		return "TLS Handshake"
	default:
		return "Unknown"
	}
}

// validSentCloseCode reports whether code may appear in a close frame
// sent over the wire. RFC 6455 Section 7.4: 1005, 1006 and 1015 are
// reserved for internal signaling.
func validSentCloseCode(code CloseCode) bool {
	switch code {
	case CloseNormalClosure, CloseGoingAway, CloseProtocolError,
		CloseUnsupportedData, CloseInvalidFramePayloadData,
		ClosePolicyViolation, CloseMessageTooBig, CloseMandatoryExtension,
		CloseInternalServerErr, CloseServiceRestart, CloseTryAgainLater:
		return true
	}
	return code >= 3000 && code <= 4999
}

// CloseCodeFor maps a model error to the close code an endpoint should
// send before dropping the connection (RFC 6455 Section 7.4.1).
//
// Lifecycle sentinels map to a normal closure; callers that observed them
// have usually finished the closing handshake already and have nothing
// left to send.
func CloseCodeFor(err *Error) CloseCode {
	if err == nil {
		return CloseNormalClosure
	}
	switch err.Kind() {
	case KindConnectionClosed, KindAlreadyClosed:
		return CloseNormalClosure
	case KindCapacity:
		return CloseMessageTooBig
	case KindProtocol:
		return CloseProtocolError
	case KindUTF8:
		return CloseInvalidFramePayloadData
	case KindAttackAttempt:
		return ClosePolicyViolation
	case KindBlobFormatUnsupported, KindUnknownFormat:
		return CloseUnsupportedData
	default:
		// Io, Tls, Url, Http, HttpFormat, WriteBufferFull: nothing the
		// peer can act on.
		return CloseInternalServerErr
	}
}

// IsCloseError checks if error represents a completed WebSocket close.
//
// Returns true for the ConnectionClosed lifecycle sentinel.
// Returns false for other errors (network errors, protocol errors, etc.).
func IsCloseError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnectionClosed)
}

// IsTemporaryError checks if error is temporary and operation can be retried.
//
// Returns true for transient network errors.
// Returns false for permanent errors (close sentinel, protocol errors).
// The model itself does not split Io into fatal and transient; this helper
// only inspects the wrapped transport error.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	type temporary interface {
		Temporary() bool
	}

	var te temporary
	if errors.As(err, &te) {
		return te.Temporary()
	}

	return false
}
