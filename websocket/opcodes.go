// Package websocket implements an RFC 6455 WebSocket client and server
// endpoint with a closed error model.
//
// The package provides frame-level parsing and writing according to
// RFC 6455 Section 5, the opening handshake for both roles (Section 4),
// and connection-level message assembly. Every failure on those paths -
// I/O, TLS, handshake, framing, capacity, encoding - is normalized into
// the single closed *Error type before it reaches calling code, so
// callers can switch over Error.Kind exhaustively and map variants to
// close-code decisions.
//
// RFC Reference: https://datatracker.ietf.org/doc/html/rfc6455
package websocket

// Opcode values defined in RFC 6455 Section 5.2.
//
// Opcodes 0x0-0x2 are data frames, 0x8-0xA are control frames.
// Opcodes 0x3-0x7 and 0xB-0xF are reserved for future use.
const (
	// opcodeContinuation indicates a continuation frame (RFC 6455 Section 5.4).
	// Used for fragmented messages where FIN=0 in previous frame.
	opcodeContinuation = 0x0

	// opcodeText indicates a text data frame (RFC 6455 Section 5.6).
	// Payload must be valid UTF-8.
	opcodeText = 0x1

	// opcodeBinary indicates a binary data frame (RFC 6455 Section 5.6).
	// Payload is arbitrary binary data.
	opcodeBinary = 0x2

	// opcodeClose indicates a close control frame (RFC 6455 Section 5.5.1).
	// Initiates WebSocket closing handshake.
	opcodeClose = 0x8

	// opcodePing indicates a ping control frame (RFC 6455 Section 5.5.2).
	// Used for keepalive and latency measurement.
	opcodePing = 0x9

	// opcodePong indicates a pong control frame (RFC 6455 Section 5.5.3).
	// Response to ping frame with identical payload.
	opcodePong = 0xA
)

// isControlFrame returns true if the opcode is a control frame (0x8-0xF).
//
// RFC 6455 Section 5.5: control frames are identified by opcodes where
// the most significant bit of the opcode is 1. They must not be
// fragmented and their payload is limited to 125 bytes.
func isControlFrame(opcode byte) bool {
	return opcode&0x08 != 0
}

// isDataFrame returns true if the opcode is a data frame (0x0-0x2).
func isDataFrame(opcode byte) bool {
	return opcode == opcodeContinuation ||
		opcode == opcodeText ||
		opcode == opcodeBinary
}

// classifyOpcode validates a 4-bit opcode from the wire. It returns the
// protocol violation for reserved values: 0x3-0x7 are unknown data frame
// types and 0xB-0xF unknown control frame types.
func classifyOpcode(opcode byte) *ProtocolError {
	switch {
	case opcode > 0x0F:
		// Cannot occur for a nibble taken from the wire; guards callers
		// that build frames programmatically.
		return NewOpcodeError(ProtocolInvalidOpcode, opcode)
	case isDataFrame(opcode),
		opcode == opcodeClose, opcode == opcodePing, opcode == opcodePong:
		return nil
	case isControlFrame(opcode):
		return NewOpcodeError(ProtocolUnknownControlFrameType, opcode)
	default:
		return NewOpcodeError(ProtocolUnknownDataFrameType, opcode)
	}
}
