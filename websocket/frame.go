package websocket

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"io"
)

// Payload size constants (RFC 6455 Section 5.2 and implementation limits).
const (
	// maxControlPayload is the maximum payload length for control frames.
	// RFC 6455 Section 5.5: Control frames must have payload <= 125 bytes.
	maxControlPayload = 125

	// DefaultMaxMessageSize bounds data frames and assembled messages
	// when the caller configures no limit.
	DefaultMaxMessageSize = 32 * 1024 * 1024 // 32 MB

	// Payload length encoding thresholds (RFC 6455 Section 5.2).
	payloadLen7Bit  = 125 // 0-125: stored in 7 bits
	payloadLen16Bit = 126 // 126: followed by 16-bit length
	payloadLen64Bit = 127 // 127: followed by 64-bit length
)

// frame represents a WebSocket frame as defined in RFC 6455 Section 5.2.
//
// Frame structure:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-------+-+-------------+-------------------------------+
//	|F|R|R|R| opcode|M| Payload len |    Extended payload length    |
//	|I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
//	|N|V|V|V|       |S|             |   (if payload len==126/127)   |
//	| |1|2|3|       |K|             |                               |
//	+-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
//	|     Extended payload length continued, if payload len == 127  |
//	+ - - - - - - - - - - - - - - - +-------------------------------+
//	|                               |Masking-key, if MASK set to 1  |
//	+-------------------------------+-------------------------------+
//	| Masking-key (continued)       |          Payload Data         |
//	+-------------------------------- - - - - - - - - - - - - - - - +
//	:                     Payload Data continued ...                :
//	+ - - - - - - - - - - - - - - - - - - - - - - - - - - - - - - - +
//	|                     Payload Data continued ...                |
//	+---------------------------------------------------------------+
type frame struct {
	// fin indicates this is the final fragment (FIN bit).
	fin bool

	// rsv1, rsv2, rsv3 are reserved bits for extensions.
	// RFC 6455 Section 5.2: Must be 0 unless extension negotiated.
	rsv1, rsv2, rsv3 bool

	// opcode is the frame operation code (4 bits).
	opcode byte

	// masked indicates if payload is masked (MASK bit).
	// RFC 6455 Section 5.3: Client-to-server frames MUST be masked.
	masked bool

	// mask is the 32-bit masking key.
	mask [4]byte

	// payload is the frame payload data.
	payload []byte
}

// readFrame reads one WebSocket frame from the buffered reader.
//
// RFC 6455 Section 5.2: Base Framing Protocol.
//
// server selects the masking-direction rule: a server must reject
// unmasked frames, a client must reject masked ones (Section 5.1).
// maxPayload bounds data-frame payloads; zero applies
// DefaultMaxMessageSize.
//
// Every failure comes back as a model *Error: framing violations as
// Protocol variants, an oversized data frame as Capacity, an impossible
// advertised length as AttackAttempt, and transport failures as Io.
//
//nolint:gocyclo,cyclop // frame validation has one arm per RFC 6455 rule
func readFrame(r *bufio.Reader, server bool, maxPayload int) (*frame, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxMessageSize
	}

	// Byte 0: FIN(1) RSV(3) Opcode(4)
	// Byte 1: MASK(1) PayloadLen(7)
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, FromIOError(err)
	}

	f := &frame{
		fin:    header[0]&0x80 != 0,
		rsv1:   header[0]&0x40 != 0,
		rsv2:   header[0]&0x20 != 0,
		rsv3:   header[0]&0x10 != 0,
		opcode: header[0] & 0x0F,
		masked: header[1]&0x80 != 0,
	}

	// Reserved opcodes (RFC 6455 Section 5.2).
	if pe := classifyOpcode(f.opcode); pe != nil {
		return nil, errProtocol(pe)
	}

	// Reserved bits must be 0 unless an extension was negotiated; none are.
	if f.rsv1 || f.rsv2 || f.rsv3 {
		return nil, errProtocol(NewProtocolError(ProtocolNonZeroReservedBits))
	}

	// Masking direction (RFC 6455 Section 5.1).
	if server && !f.masked {
		return nil, errProtocol(NewProtocolError(ProtocolUnmaskedFrameFromClient))
	}
	if !server && f.masked {
		return nil, errProtocol(NewProtocolError(ProtocolMaskedFrameFromServer))
	}

	// Control frames must not be fragmented (RFC 6455 Section 5.5).
	if isControlFrame(f.opcode) && !f.fin {
		return nil, errProtocol(NewProtocolError(ProtocolFragmentedControlFrame))
	}

	// Payload length: 7-bit, 16-bit, or 64-bit.
	payloadLen := uint64(header[1] & 0x7F)

	switch payloadLen {
	case payloadLen16Bit:
		buf := make([]byte, 2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, FromIOError(err)
		}
		payloadLen = uint64(binary.BigEndian.Uint16(buf))
	case payloadLen64Bit:
		buf := make([]byte, 8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, FromIOError(err)
		}
		payloadLen = binary.BigEndian.Uint64(buf)
		// RFC 6455 Section 5.2: the most significant bit must be 0. No
		// conforming endpoint can produce such a length.
		if payloadLen&(1<<63) != 0 {
			return nil, ErrAttackAttempt
		}
	}

	// Control frame payload limit (RFC 6455 Section 5.5).
	if isControlFrame(f.opcode) && payloadLen > maxControlPayload {
		return nil, errProtocol(NewProtocolError(ProtocolControlFrameTooBig))
	}

	// Configured data-frame limit.
	if payloadLen > uint64(maxPayload) {
		return nil, errCapacity(NewMessageTooLong(int(payloadLen), maxPayload))
	}

	// Masking key, when present.
	if f.masked {
		if _, err := io.ReadFull(r, f.mask[:]); err != nil {
			return nil, FromIOError(err)
		}
	}

	// Payload.
	if payloadLen > 0 {
		f.payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, f.payload); err != nil {
			return nil, FromIOError(err)
		}

		// RFC 6455 Section 5.3: the masking key is applied to the
		// payload in both directions of the XOR.
		if f.masked {
			applyMask(f.payload, f.mask)
		}
	}

	// UTF-8 validation happens at message assembly, not per frame: a
	// fragmented text message may split a code point across frames.
	return f, nil
}

// writeFrame validates and writes one WebSocket frame.
//
// maxPayload bounds data-frame payloads as in readFrame. All validation
// failures surface as model errors; only transport failures come back as
// Io.
func writeFrame(w *bufio.Writer, f *frame, maxPayload int) error {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxMessageSize
	}

	if pe := classifyOpcode(f.opcode); pe != nil {
		return errProtocol(pe)
	}

	if isControlFrame(f.opcode) {
		if !f.fin {
			return errProtocol(NewProtocolError(ProtocolFragmentedControlFrame))
		}
		if len(f.payload) > maxControlPayload {
			return errProtocol(NewProtocolError(ProtocolControlFrameTooBig))
		}
	}

	if len(f.payload) > maxPayload {
		return errCapacity(NewMessageTooLong(len(f.payload), maxPayload))
	}

	return writeFrameRaw(w, f)
}

// writeFrameRaw encodes and writes a frame without validation.
//
// The exported write paths go through writeFrame; tests use this directly
// to put protocol violations on the wire.
func writeFrameRaw(w *bufio.Writer, f *frame) error {
	header := make([]byte, 2)

	// Byte 0: FIN(1) RSV(3) Opcode(4)
	if f.fin {
		header[0] |= 0x80
	}
	if f.rsv1 {
		header[0] |= 0x40
	}
	if f.rsv2 {
		header[0] |= 0x20
	}
	if f.rsv3 {
		header[0] |= 0x10
	}
	header[0] |= f.opcode & 0x0F

	// Byte 1: MASK(1) PayloadLen(7)
	if f.masked {
		header[1] |= 0x80
	}

	payloadLen := uint64(len(f.payload))

	switch {
	case payloadLen <= payloadLen7Bit:
		header[1] |= byte(payloadLen)
	case payloadLen <= 0xFFFF:
		header[1] |= payloadLen16Bit
	default:
		header[1] |= payloadLen64Bit
	}

	if _, err := w.Write(header); err != nil {
		return FromIOError(err)
	}

	// Extended payload length, when the 7-bit field cannot hold it.
	if payloadLen > payloadLen7Bit && payloadLen <= 0xFFFF {
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(payloadLen))
		if _, err := w.Write(buf); err != nil {
			return FromIOError(err)
		}
	} else if payloadLen > 0xFFFF {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, payloadLen)
		if _, err := w.Write(buf); err != nil {
			return FromIOError(err)
		}
	}

	if f.masked {
		if _, err := w.Write(f.mask[:]); err != nil {
			return FromIOError(err)
		}
	}

	if len(f.payload) > 0 {
		// Mask a copy so the caller's payload is left intact.
		payload := f.payload
		if f.masked {
			payload = make([]byte, len(f.payload))
			copy(payload, f.payload)
			applyMask(payload, f.mask)
		}

		if _, err := w.Write(payload); err != nil {
			return FromIOError(err)
		}
	}

	if err := w.Flush(); err != nil {
		return FromIOError(err)
	}

	return nil
}

// newMaskKey draws a fresh masking key for a client-to-server frame.
//
// RFC 6455 Section 5.3: the key must be unpredictable, so it comes from
// crypto/rand. A failed read surfaces as an Io model error.
func newMaskKey() ([4]byte, error) {
	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, FromIOError(err)
	}
	return key, nil
}

// applyMask applies the WebSocket masking algorithm to data in place.
//
// RFC 6455 Section 5.3: transformed-octet-i = original-octet-i XOR
// masking-key-octet-(i MOD 4). XOR is its own inverse, so the same
// routine masks and unmasks.
func applyMask(data []byte, mask [4]byte) {
	for i := range data {
		data[i] ^= mask[i%4]
	}
}
