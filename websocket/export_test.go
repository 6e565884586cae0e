package websocket

// This file exports internal types and functions for testing.

import (
	"bufio"
	"net"
)

// FrameForTest is an exported version of frame for testing.
type FrameForTest struct {
	Fin     bool
	Rsv1    bool
	Rsv2    bool
	Rsv3    bool
	Opcode  byte
	Masked  bool
	Mask    [4]byte
	Payload []byte
}

// ReadFrameForTest reads a frame (exported for testing).
func ReadFrameForTest(r *bufio.Reader, server bool, maxPayload int) (*FrameForTest, error) {
	f, err := readFrame(r, server, maxPayload)
	if err != nil {
		return nil, err
	}

	return &FrameForTest{
		Fin:     f.fin,
		Rsv1:    f.rsv1,
		Rsv2:    f.rsv2,
		Rsv3:    f.rsv3,
		Opcode:  f.opcode,
		Masked:  f.masked,
		Mask:    f.mask,
		Payload: f.payload,
	}, nil
}

// WriteFrameForTest validates and writes a frame (exported for testing).
func WriteFrameForTest(w *bufio.Writer, ft *FrameForTest, maxPayload int) error {
	return writeFrame(w, ft.internal(), maxPayload)
}

// WriteFrameRawForTest writes a frame without validation.
//
// Used to put protocol violations on the wire for reader tests.
func WriteFrameRawForTest(w *bufio.Writer, ft *FrameForTest) error {
	return writeFrameRaw(w, ft.internal())
}

func (ft *FrameForTest) internal() *frame {
	return &frame{
		fin:     ft.Fin,
		rsv1:    ft.Rsv1,
		rsv2:    ft.Rsv2,
		rsv3:    ft.Rsv3,
		opcode:  ft.Opcode,
		masked:  ft.Masked,
		mask:    ft.Mask,
		payload: ft.Payload,
	}
}

// ApplyMaskForTest applies XOR mask to payload (exported for testing).
func ApplyMaskForTest(data []byte, mask [4]byte) {
	applyMask(data, mask)
}

// Opcode constants for testing.
const (
	OpcodeContinuationForTest = opcodeContinuation
	OpcodeTextForTest         = opcodeText
	OpcodeBinaryForTest       = opcodeBinary
	OpcodeCloseForTest        = opcodeClose
	OpcodePingForTest         = opcodePing
	OpcodePongForTest         = opcodePong
)

// NewConnForTest creates a Conn from a raw net.Conn for testing.
//
// Used by tests that drive the framing layer by hand instead of going
// through a handshake. isServer selects the masking-direction rules.
func NewConnForTest(conn net.Conn, isServer bool) *Conn {
	return newConn(conn, bufio.NewReader(conn), bufio.NewWriter(conn), isServer)
}
