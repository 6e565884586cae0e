package websocket

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"unicode/utf8"
)

// Conn represents a WebSocket connection (RFC 6455).
//
// Conn provides high-level methods for reading and writing messages,
// automatically handling:
//   - Message fragmentation (reassembly of multi-frame messages)
//   - Control frames (Ping, Pong, Close) and the closing handshake
//   - UTF-8 validation for text messages
//   - Thread-safe writes
//
// Every failure is a model *Error. Two kinds deserve care:
// ErrConnectionClosed means the closing handshake finished and the only
// meaningful action left is dropping the Conn; ErrAlreadyClosed means the
// caller kept operating on the Conn after observing ErrConnectionClosed,
// which is a defect in the caller. Once either is observed on the read or
// write half, the caller must stop issuing operations on both halves.
//
// Example Usage:
//
//	conn, err := websocket.Upgrade(w, r, nil)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	msg, err := conn.ReadMessage()
//	if err != nil {
//	    return err
//	}
//	conn.WriteMessage(msg)
type Conn struct {
	conn   net.Conn      // Underlying TCP connection
	reader *bufio.Reader // Buffered reader for frame parsing
	writer *bufio.Writer // Buffered writer for frame writing

	isServer    bool   // Server-side connection (affects masking rules)
	subprotocol string // Negotiated subprotocol, if any

	// maxMessageSize bounds frames and assembled messages; exceeding it
	// is a capacity error carrying both the size and this limit.
	maxMessageSize int

	// Write synchronization (RFC 6455 Section 5.1)
	writeMu sync.Mutex

	// Closing-handshake state. closeSent/closeReceived track the two
	// halves of the handshake; observed flips when the caller has been
	// handed ErrConnectionClosed, after which every operation returns
	// ErrAlreadyClosed.
	stateMu       sync.Mutex
	closeSent     bool
	closeReceived bool
	observed      bool

	// Fragment reassembly state (reader-side, single reader assumed).
	fragmentBuf  bytes.Buffer
	fragmentType byte
	inFragment   bool
}

// newConn creates a new WebSocket connection (internal constructor).
//
// Called by Upgrade, Accept and Dial after a successful handshake.
func newConn(netConn net.Conn, reader *bufio.Reader, writer *bufio.Writer, isServer bool) *Conn {
	return &Conn{
		conn:           netConn,
		reader:         reader,
		writer:         writer,
		isServer:       isServer,
		maxMessageSize: DefaultMaxMessageSize,
	}
}

// Subprotocol returns the subprotocol negotiated during the handshake,
// or the empty string.
func (c *Conn) Subprotocol() string { return c.subprotocol }

// SetMaxMessageSize bounds frames and assembled messages. Zero or
// negative restores DefaultMaxMessageSize.
func (c *Conn) SetMaxMessageSize(n int) {
	if n <= 0 {
		n = DefaultMaxMessageSize
	}
	c.maxMessageSize = n
}

// readGate classifies the connection state before a read: ErrAlreadyClosed
// after ErrConnectionClosed was observed, ErrConnectionClosed (now
// observed) when the closing handshake has completed.
func (c *Conn) readGate() *Error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.observed {
		return ErrAlreadyClosed
	}
	if c.closeSent && c.closeReceived {
		c.observed = true
		return ErrConnectionClosed
	}
	return nil
}

// writeGate classifies the connection state before a write.
// Sending after this side sent its close frame is a protocol violation
// (SendAfterClosing) until the caller observes ErrConnectionClosed; after
// that it is caller misuse (AlreadyClosed).
func (c *Conn) writeGate() *Error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.observed {
		return ErrAlreadyClosed
	}
	if c.closeSent {
		return errProtocol(NewProtocolError(ProtocolSendAfterClosing))
	}
	return nil
}

// ReadMessage reads the next complete message from the connection.
//
// Automatically handles:
//   - Fragmentation: reassembles multi-frame messages (FIN=0 ... FIN=1)
//   - Control frames: answers Ping, absorbs Pong, completes the closing
//     handshake on Close
//   - UTF-8 validation for text messages (RFC 6455 Section 8.1)
//
// RFC 6455 Section 5.4: "A fragmented message consists of a single frame
// with the FIN bit clear and an opcode other than 0, followed by zero or
// more frames with the FIN bit clear and the opcode set to 0, and
// terminated by a single frame with the FIN bit set and an opcode of 0."
//
//nolint:gocyclo,cyclop,gocognit // fragmentation+control handling per RFC 6455
func (c *Conn) ReadMessage() (Message, error) {
	if gate := c.readGate(); gate != nil {
		return Message{}, gate
	}

	for {
		f, err := readFrame(c.reader, c.isServer, c.maxMessageSize)
		if err != nil {
			return Message{}, c.classifyReadError(err)
		}

		// The peer must not send anything after its close frame.
		c.stateMu.Lock()
		peerClosed := c.closeReceived
		c.stateMu.Unlock()
		if peerClosed {
			return Message{}, errProtocol(NewProtocolError(ProtocolReceivedAfterClosing))
		}

		// Control frames (RFC 6455 Section 5.5) may be injected in the
		// middle of a fragmented message.
		switch f.opcode {
		case opcodePing:
			if err := c.Pong(f.payload); err != nil {
				return Message{}, err
			}
			continue

		case opcodePong:
			continue

		case opcodeClose:
			return Message{}, c.handleCloseFrame(f.payload)
		}

		// Data frames: Text, Binary, Continuation.
		switch f.opcode {
		case opcodeText, opcodeBinary:
			if c.inFragment {
				// A fresh data frame while reassembly is pending.
				violation := NewExpectedFragmentError(dataClass(f.opcode))
				c.abort(CloseProtocolError)
				return Message{}, errProtocol(violation)
			}

			if f.fin {
				msgType := MessageType(f.opcode)
				if msgType == TextMessage && !utf8.Valid(f.payload) {
					c.abort(CloseInvalidFramePayloadData)
					return Message{}, ErrUTF8
				}
				return Message{Type: msgType, Data: f.payload}, nil
			}

			// Start of a fragmented message (FIN=0).
			c.inFragment = true
			c.fragmentType = f.opcode
			c.fragmentBuf.Reset()
			c.fragmentBuf.Write(f.payload)

		case opcodeContinuation:
			if !c.inFragment {
				c.abort(CloseProtocolError)
				return Message{}, errProtocol(NewProtocolError(ProtocolUnexpectedContinueFrame))
			}

			// The assembled message honors the same limit as a single
			// frame.
			if total := c.fragmentBuf.Len() + len(f.payload); total > c.maxMessageSize {
				c.abort(CloseMessageTooBig)
				return Message{}, errCapacity(NewMessageTooLong(total, c.maxMessageSize))
			}
			c.fragmentBuf.Write(f.payload)

			if f.fin {
				c.inFragment = false
				msgType := MessageType(c.fragmentType)
				payload := c.fragmentBuf.Bytes()

				if msgType == TextMessage && !utf8.Valid(payload) {
					c.abort(CloseInvalidFramePayloadData)
					return Message{}, ErrUTF8
				}

				// Copy out: fragmentBuf is reused.
				result := make([]byte, len(payload))
				copy(result, payload)
				return Message{Type: msgType, Data: result}, nil
			}
		}
	}
}

// Read reads the next complete message, returning its type and payload.
func (c *Conn) Read() (MessageType, []byte, error) {
	msg, err := c.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	return msg.Type, msg.Data, nil
}

// ReadText reads the next message as text. Binary payloads are accepted
// when they are valid UTF-8; a decoding failure yields ErrUTF8.
func (c *Conn) ReadText() (string, error) {
	msg, err := c.ReadMessage()
	if err != nil {
		return "", err
	}
	return msg.Text()
}

// ReadJSON reads the next message and unmarshals it into v.
//
// A payload that does not parse as JSON yields ErrUnknownFormat.
func (c *Conn) ReadJSON(v any) error {
	msg, err := c.ReadMessage()
	if err != nil {
		return err
	}

	if err := json.Unmarshal(msg.Data, v); err != nil {
		return ErrUnknownFormat
	}
	return nil
}

// classifyReadError maps a frame-read failure onto the connection state.
// A transport EOF with the closing handshake incomplete means the peer
// reset the connection without closing; after a completed handshake the
// same condition is just the end of the connection.
func (c *Conn) classifyReadError(err error) error {
	me, ok := AsError(err)
	if !ok {
		return FromIOError(err)
	}

	if me.Kind() == KindIO {
		cause := me.Unwrap()
		if errors.Is(cause, io.EOF) || errors.Is(cause, io.ErrUnexpectedEOF) || errors.Is(cause, net.ErrClosed) {
			c.stateMu.Lock()
			complete := c.closeSent && c.closeReceived
			if complete {
				c.observed = true
			}
			c.stateMu.Unlock()

			if complete {
				return ErrConnectionClosed
			}
			return errProtocol(NewProtocolError(ProtocolResetWithoutClosingHandshake))
		}
	}
	return me
}

// handleCloseFrame completes the closing handshake for a received close
// frame and returns the resulting lifecycle sentinel or violation.
//
// RFC 6455 Section 5.5.1: the payload is either empty or a 2-byte status
// code followed by a UTF-8 reason. A 1-byte payload, a reserved code or a
// non-UTF-8 reason is an invalid close sequence.
func (c *Conn) handleCloseFrame(payload []byte) error {
	code := CloseNoStatusReceived
	reason := ""

	switch {
	case len(payload) == 1:
		c.abort(CloseProtocolError)
		return errProtocol(NewProtocolError(ProtocolInvalidCloseSequence))
	case len(payload) >= 2:
		code = CloseCode(uint16(payload[0])<<8 | uint16(payload[1]))
		if !validSentCloseCode(code) {
			c.abort(CloseProtocolError)
			return errProtocol(NewProtocolError(ProtocolInvalidCloseSequence))
		}
		if !utf8.Valid(payload[2:]) {
			c.abort(CloseProtocolError)
			return errProtocol(NewProtocolError(ProtocolInvalidCloseSequence))
		}
		reason = string(payload[2:])
	}

	c.stateMu.Lock()
	c.closeReceived = true
	alreadySent := c.closeSent
	c.stateMu.Unlock()

	if !alreadySent {
		// Echo the close frame to finish the handshake (Section 5.5.1:
		// "an endpoint MUST send a Close frame in response").
		echo := code
		if code == CloseNoStatusReceived {
			echo = CloseNormalClosure
		}
		_ = c.sendClose(echo, reason)
	}

	// Both halves done: tear down the transport and inform the caller.
	_ = c.conn.Close()

	c.stateMu.Lock()
	c.observed = true
	c.stateMu.Unlock()
	return ErrConnectionClosed
}

// WriteMessage writes one complete message to the connection.
func (c *Conn) WriteMessage(msg Message) error {
	return c.Write(msg.Type, msg.Data)
}

// Write writes a message to the connection.
//
// Server frames are sent unmasked, client frames masked with a fresh
// crypto/rand key (RFC 6455 Section 5.1). Writes are serialized by a
// mutex. Text payloads must be valid UTF-8; oversized payloads are
// capacity errors carrying the configured limit.
func (c *Conn) Write(messageType MessageType, data []byte) error {
	if gate := c.writeGate(); gate != nil {
		return gate
	}

	var opcode byte
	switch messageType {
	case TextMessage:
		opcode = opcodeText
		if !utf8.Valid(data) {
			return ErrUTF8
		}
	case BinaryMessage:
		opcode = opcodeBinary
	default:
		return ErrUnknownFormat
	}

	if len(data) > c.maxMessageSize {
		return errCapacity(NewMessageTooLong(len(data), c.maxMessageSize))
	}

	f := &frame{
		fin:     true,
		opcode:  opcode,
		masked:  !c.isServer,
		payload: data,
	}

	if f.masked {
		key, err := newMaskKey()
		if err != nil {
			return err
		}
		f.mask = key
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.writer, f, c.maxMessageSize)
}

// WriteText writes a text message.
func (c *Conn) WriteText(text string) error {
	return c.Write(TextMessage, []byte(text))
}

// WriteJSON marshals v and writes it as a text message.
//
// A value that cannot be marshaled yields ErrUnknownFormat.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrUnknownFormat
	}

	return c.Write(TextMessage, data)
}

// Ping sends a ping frame (for keep-alive).
//
// Application data is optional; control frame payloads over 125 bytes
// are protocol violations (RFC 6455 Section 5.5). The peer should answer
// with a Pong carrying the same data.
func (c *Conn) Ping(data []byte) error {
	return c.writeControl(opcodePing, data)
}

// Pong sends a pong frame (response to ping or unsolicited).
//
// ReadMessage answers Pings automatically, so a manual Pong is rarely
// needed.
func (c *Conn) Pong(data []byte) error {
	return c.writeControl(opcodePong, data)
}

func (c *Conn) writeControl(opcode byte, data []byte) error {
	if gate := c.writeGate(); gate != nil {
		return gate
	}

	if len(data) > maxControlPayload {
		return errProtocol(NewProtocolError(ProtocolControlFrameTooBig))
	}

	f := &frame{
		fin:     true,
		opcode:  opcode,
		masked:  !c.isServer,
		payload: data,
	}

	if f.masked {
		key, err := newMaskKey()
		if err != nil {
			return err
		}
		f.mask = key
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.writer, f, c.maxMessageSize)
}

// Close starts (or finishes) the closing handshake with a normal-closure
// status. Idempotent: calling it again after the close frame went out is
// a no-op.
//
// The underlying transport is torn down once the peer's close frame has
// been received; until then the reader keeps draining so the handshake
// can complete.
func (c *Conn) Close() error {
	return c.CloseWithCode(CloseNormalClosure, "")
}

// CloseWithCode starts the closing handshake with a specific status code
// and reason (RFC 6455 Section 7.4). The reason must be UTF-8 and short
// enough to fit a control frame alongside the 2-byte code.
func (c *Conn) CloseWithCode(code CloseCode, reason string) error {
	c.stateMu.Lock()
	if c.closeSent {
		c.stateMu.Unlock()
		return nil
	}
	c.stateMu.Unlock()

	if reason != "" && !utf8.ValidString(reason) {
		return ErrUTF8
	}
	if 2+len(reason) > maxControlPayload {
		return errProtocol(NewProtocolError(ProtocolControlFrameTooBig))
	}

	if err := c.sendClose(code, reason); err != nil {
		return err
	}

	c.stateMu.Lock()
	complete := c.closeReceived
	c.stateMu.Unlock()
	if complete {
		return c.conn.Close()
	}
	return nil
}

// sendClose writes the close frame and marks this half closed.
func (c *Conn) sendClose(code CloseCode, reason string) error {
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code & 0xFF)
	copy(payload[2:], reason)

	f := &frame{
		fin:     true,
		opcode:  opcodeClose,
		masked:  !c.isServer,
		payload: payload,
	}

	if f.masked {
		key, err := newMaskKey()
		if err != nil {
			return err
		}
		f.mask = key
	}

	c.stateMu.Lock()
	c.closeSent = true
	c.stateMu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.writer, f, c.maxMessageSize)
}

// abort sends a close frame for a detected violation and drops the
// transport without waiting for the peer's close frame.
func (c *Conn) abort(code CloseCode) {
	_ = c.CloseWithCode(code, "")
	_ = c.conn.Close()
}
