package websocket

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

// rawPeer drives one end of a net.Pipe with hand-crafted frames, playing
// the role of a (possibly misbehaving) client against a server Conn.
type rawPeer struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

func newServerWithPeer(t *testing.T) (*Conn, *rawPeer) {
	t.Helper()

	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() {
		_ = serverEnd.Close()
		_ = clientEnd.Close()
	})

	server := newConn(serverEnd, bufio.NewReader(serverEnd), bufio.NewWriter(serverEnd), true)
	peer := &rawPeer{
		t:      t,
		conn:   clientEnd,
		reader: bufio.NewReader(clientEnd),
		writer: bufio.NewWriter(clientEnd),
	}
	return server, peer
}

var peerMask = [4]byte{0x0F, 0x1E, 0x2D, 0x3C}

// send writes a masked frame, as a client would.
func (p *rawPeer) send(opcode byte, fin bool, payload []byte) {
	err := writeFrameRaw(p.writer, &frame{
		fin:     fin,
		opcode:  opcode,
		masked:  true,
		mask:    peerMask,
		payload: payload,
	})
	if err != nil {
		p.t.Errorf("peer send failed: %v", err)
	}
}

// sendClose writes a masked close frame with the given code and reason
// bytes (reason deliberately unvalidated).
func (p *rawPeer) sendClose(code int, reason []byte) {
	payload := append([]byte{byte(code >> 8), byte(code)}, reason...)
	p.send(opcodeClose, true, payload)
}

// recv reads one unmasked server frame.
func (p *rawPeer) recv() *frame {
	f, err := readFrame(p.reader, false, 0)
	if err != nil {
		p.t.Errorf("peer recv failed: %v", err)
		return &frame{}
	}
	return f
}

// closeCode extracts the status code from a close frame payload.
func closeCode(f *frame) int {
	if len(f.payload) < 2 {
		return 0
	}
	return int(f.payload[0])<<8 | int(f.payload[1])
}

// TestConn_EchoRoundTrip runs a message through both directions of a
// client/server pair.
func TestConn_EchoRoundTrip(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	defer clientEnd.Close()

	server := newConn(serverEnd, bufio.NewReader(serverEnd), bufio.NewWriter(serverEnd), true)
	client := newConn(clientEnd, bufio.NewReader(clientEnd), bufio.NewWriter(clientEnd), false)

	done := make(chan error, 1)
	go func() {
		msg, err := server.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		done <- server.WriteMessage(msg)
	}()

	if err := client.WriteText("ping me back"); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	got, err := client.ReadText()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if got != "ping me back" {
		t.Errorf("echo = %q", got)
	}
	if err := <-done; err != nil {
		t.Fatalf("server side failed: %v", err)
	}
}

// TestConn_PingAnsweredDuringRead verifies ReadMessage answers a ping
// with a pong carrying the same data, then keeps reading.
func TestConn_PingAnsweredDuringRead(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		peer.send(opcodePing, true, []byte("tick"))
		pong := peer.recv()
		if pong.opcode != opcodePong || string(pong.payload) != "tick" {
			peer.t.Errorf("got opcode 0x%X payload %q, want pong 'tick'", pong.opcode, pong.payload)
		}
		peer.send(opcodeText, true, []byte("after ping"))
	}()

	msg, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if string(msg.Data) != "after ping" {
		t.Errorf("message = %q", msg.Data)
	}
}

// TestConn_FragmentReassembly verifies multi-frame messages are
// reassembled, including a UTF-8 code point split across fragments
// (validation must happen at assembly, not per frame).
func TestConn_FragmentReassembly(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		// "héllo" with the é (0xC3 0xA9) split across the fragment border.
		peer.send(opcodeText, false, []byte{'h', 0xC3})
		peer.send(opcodeContinuation, false, []byte{0xA9, 'l'})
		peer.send(opcodeContinuation, true, []byte{'l', 'o'})
	}()

	got, err := server.ReadText()
	if err != nil {
		t.Fatalf("ReadText failed: %v", err)
	}
	if got != "héllo" {
		t.Errorf("reassembled = %q, want %q", got, "héllo")
	}
}

// TestConn_InvalidUTF8Text verifies a complete text message with invalid
// UTF-8 yields the Utf8 error and closes with 1007.
func TestConn_InvalidUTF8Text(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		peer.send(opcodeText, true, []byte{0xFF, 0xFE, 0xFD})
		cl := peer.recv()
		if code := closeCode(cl); code != int(CloseInvalidFramePayloadData) {
			peer.t.Errorf("close code = %d, want 1007", code)
		}
	}()

	_, err := server.ReadMessage()
	if !errors.Is(err, ErrUTF8) {
		t.Fatalf("got %v, want Utf8 error", err)
	}
}

// TestConn_UnexpectedContinuation verifies a continuation frame with
// nothing to continue is a protocol violation.
func TestConn_UnexpectedContinuation(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		peer.send(opcodeContinuation, true, []byte("orphan"))
		peer.recv() // close frame from abort
	}()

	_, err := server.ReadMessage()
	assertProtocolKind(t, err, ProtocolUnexpectedContinueFrame)
}

// TestConn_ExpectedFragment verifies a fresh data frame arriving while
// reassembly is pending names the frame class received.
func TestConn_ExpectedFragment(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		peer.send(opcodeText, false, []byte("first hal"))
		peer.send(opcodeBinary, true, []byte{0x01})
		peer.recv() // close frame from abort
	}()

	_, err := server.ReadMessage()
	assertProtocolKind(t, err, ProtocolExpectedFragment)

	me, _ := AsError(err)
	if me.Protocol().Data() != DataBinary {
		t.Errorf("frame class = %v, want BINARY", me.Protocol().Data())
	}
	want := "WebSocket protocol error: While waiting for more fragments received: BINARY"
	if me.Error() != want {
		t.Errorf("display = %q", me.Error())
	}
}

// TestConn_CloseHandshakeFromPeer walks the full lifecycle: the peer
// closes, the caller observes ConnectionClosed once, and every operation
// after that observation is AlreadyClosed.
func TestConn_CloseHandshakeFromPeer(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		peer.sendClose(int(CloseNormalClosure), []byte("done"))
		echo := peer.recv()
		if echo.opcode != opcodeClose {
			peer.t.Errorf("expected close echo, got opcode 0x%X", echo.opcode)
		}
		if code := closeCode(echo); code != int(CloseNormalClosure) {
			peer.t.Errorf("echo code = %d, want 1000", code)
		}
	}()

	_, err := server.ReadMessage()
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("got %v, want ConnectionClosed", err)
	}
	if err.Error() != "Connection closed normally" {
		t.Errorf("display = %q", err.Error())
	}

	// The caller observed ConnectionClosed; everything after is misuse.
	if _, err := server.ReadMessage(); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("read after observation: got %v, want AlreadyClosed", err)
	}
	if err := server.WriteText("late"); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("write after observation: got %v, want AlreadyClosed", err)
	}
	if err := server.Ping(nil); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("ping after observation: got %v, want AlreadyClosed", err)
	}
}

// TestConn_SendAfterClosing verifies the split between the protocol
// violation (sending after our close frame went out) and caller misuse
// (sending after ConnectionClosed was observed).
func TestConn_SendAfterClosing(t *testing.T) {
	server, peer := newServerWithPeer(t)

	peerDone := make(chan struct{})
	go func() {
		defer close(peerDone)
		cl := peer.recv()
		if cl.opcode != opcodeClose {
			peer.t.Errorf("expected close frame, got opcode 0x%X", cl.opcode)
		}
		peer.sendClose(int(CloseNormalClosure), nil)
	}()

	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Close frame sent, handshake not yet complete: protocol violation.
	err := server.WriteText("too late")
	assertProtocolKind(t, err, ProtocolSendAfterClosing)
	if got := err.Error(); got != "WebSocket protocol error: Sending after closing is not allowed" {
		t.Errorf("display = %q", got)
	}

	// Peer answers; the read completes the handshake.
	if _, err := server.ReadMessage(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("got %v, want ConnectionClosed", err)
	}

	// Now the caller has observed the close: misuse, not protocol.
	if err := server.WriteText("way too late"); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("got %v, want AlreadyClosed", err)
	}

	<-peerDone
}

// TestConn_CloseIdempotent verifies calling Close twice is a no-op.
func TestConn_CloseIdempotent(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		peer.recv() // the close frame
	}()

	if err := server.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}
}

// TestConn_InvalidCloseSequences covers the three malformed close frame
// payloads (RFC 6455 Section 5.5.1 and 7.4).
func TestConn_InvalidCloseSequences(t *testing.T) {
	tests := []struct {
		name string
		send func(p *rawPeer)
	}{
		{
			name: "one-byte payload",
			send: func(p *rawPeer) { p.send(opcodeClose, true, []byte{0x03}) },
		},
		{
			name: "reserved code 1005",
			send: func(p *rawPeer) { p.sendClose(1005, nil) },
		},
		{
			name: "reserved code 1006",
			send: func(p *rawPeer) { p.sendClose(1006, nil) },
		},
		{
			name: "code below registry",
			send: func(p *rawPeer) { p.sendClose(999, nil) },
		},
		{
			name: "non-UTF-8 reason",
			send: func(p *rawPeer) { p.sendClose(1000, []byte{0xFF, 0xFE}) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, peer := newServerWithPeer(t)

			go func() {
				tt.send(peer)
				peer.recv() // close frame from abort
			}()

			_, err := server.ReadMessage()
			assertProtocolKind(t, err, ProtocolInvalidCloseSequence)
		})
	}
}

// TestConn_ResetWithoutClosingHandshake verifies a transport EOF before
// any closing handshake is a protocol violation, not a normal close.
func TestConn_ResetWithoutClosingHandshake(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		_ = peer.conn.Close()
	}()

	_, err := server.ReadMessage()
	assertProtocolKind(t, err, ProtocolResetWithoutClosingHandshake)
}

// TestConn_WriteValidation covers the write-side rejections that need no
// peer at all.
func TestConn_WriteValidation(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	defer clientEnd.Close()
	server := newConn(serverEnd, bufio.NewReader(serverEnd), bufio.NewWriter(serverEnd), true)

	if err := server.Write(MessageType(9), []byte("x")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("unknown type: got %v, want UnknownFormat", err)
	}

	if err := server.Write(TextMessage, []byte{0xFF, 0xFE}); !errors.Is(err, ErrUTF8) {
		t.Errorf("invalid UTF-8 text: got %v, want Utf8", err)
	}

	server.SetMaxMessageSize(4)
	err := server.Write(BinaryMessage, []byte("12345"))
	me, ok := AsError(err)
	if !ok || me.Kind() != KindCapacity {
		t.Fatalf("oversized: got %v, want capacity error", err)
	}
	if me.Error() != "Space limit exceeded: Message too long: 5 > 4" {
		t.Errorf("display = %q", me.Error())
	}

	if err := server.Ping(make([]byte, 126)); err == nil {
		t.Error("oversized ping must fail")
	} else {
		assertProtocolKind(t, err, ProtocolControlFrameTooBig)
	}

	if err := server.WriteJSON(make(chan int)); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("unmarshalable value: got %v, want UnknownFormat", err)
	}
}

// TestConn_ReassemblyCapacity verifies the assembled message honors the
// configured limit even when each fragment alone fits.
func TestConn_ReassemblyCapacity(t *testing.T) {
	server, peer := newServerWithPeer(t)
	server.SetMaxMessageSize(10)

	go func() {
		peer.send(opcodeBinary, false, bytes.Repeat([]byte{1}, 6))
		peer.send(opcodeContinuation, true, bytes.Repeat([]byte{2}, 6))
		peer.recv() // close frame from abort
	}()

	_, err := server.ReadMessage()
	me, ok := AsError(err)
	if !ok || me.Kind() != KindCapacity {
		t.Fatalf("got %v, want capacity error", err)
	}
	if me.Capacity().Size() != 12 || me.Capacity().MaxSize() != 10 {
		t.Errorf("sizes = (%d, %d), want (12, 10)",
			me.Capacity().Size(), me.Capacity().MaxSize())
	}
}

// TestConn_ReadJSON verifies JSON plumbing stays within the closed model:
// a payload that does not parse is UnknownFormat.
func TestConn_ReadJSON(t *testing.T) {
	server, peer := newServerWithPeer(t)

	go func() {
		peer.send(opcodeText, true, []byte(`{"n": 7}`))
		peer.send(opcodeText, true, []byte(`{broken`))
	}()

	var v struct {
		N int `json:"n"`
	}
	if err := server.ReadJSON(&v); err != nil || v.N != 7 {
		t.Fatalf("valid JSON: got (%+v, %v)", v, err)
	}

	if err := server.ReadJSON(&v); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("broken JSON: got %v, want UnknownFormat", err)
	}
}

// TestConn_ReadDeadline guards the tests above against hangs; a read on a
// quiet pipe must respect the transport deadline and surface as Io.
func TestConn_ReadDeadline(t *testing.T) {
	server, _ := newServerWithPeer(t)
	_ = server.conn.SetReadDeadline(time.Now().Add(20 * time.Millisecond))

	_, err := server.ReadMessage()
	me, ok := AsError(err)
	if !ok || me.Kind() != KindIO {
		t.Fatalf("got %v, want Io error", err)
	}
}
