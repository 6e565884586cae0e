package websocket

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coregx/ws/internal/httphead"
)

// maxHandshakeHead caps the byte size of a handshake head on the raw
// Accept path. A peer streaming an unbounded head is not negotiating a
// handshake.
const maxHandshakeHead = 64 * 1024

// AcceptOptions configures the raw-socket server handshake.
type AcceptOptions struct {
	// Subprotocols advertised by the server; the first match from the
	// client's list is selected.
	Subprotocols []string

	// OnRequest inspects the parsed upgrade request and may return a
	// rejection response to send instead of upgrading. The rejection
	// must not use a successful (2xx) status code.
	OnRequest func(*httphead.RequestHead) *Response

	// MaxHeaders bounds the header count of the request head; exceeding
	// it is a capacity error (default: httphead.DefaultMaxHeaders).
	MaxHeaders int

	// ReadBufferSize / WriteBufferSize size the connection buffers
	// (default: 4096).
	ReadBufferSize  int
	WriteBufferSize int

	// MaxMessageSize bounds frames and assembled messages on the
	// resulting connection (default: DefaultMaxMessageSize).
	MaxMessageSize int
}

// Accept performs the server side of the opening handshake directly on a
// net.Conn, for servers that own their listener instead of running under
// net/http.
//
// The request head is parsed with the internal header parser; a head with
// too many headers surfaces as Capacity(TooManyHeaders), any other parse
// defect as Protocol(HeaderParse). A truncated head is
// Protocol(HandshakeIncomplete), trailing bytes after the head are
// Protocol(JunkAfterRequest), and a head that exceeds the byte cap is an
// attack attempt.
//
//nolint:gocyclo,cyclop // handshake requires many validation steps per RFC 6455
func Accept(netConn net.Conn, opts *AcceptOptions) (*Conn, error) {
	if opts == nil {
		opts = &AcceptOptions{}
	}
	readBufSize := opts.ReadBufferSize
	if readBufSize == 0 {
		readBufSize = defaultReadBufferSize
	}
	writeBufSize := opts.WriteBufferSize
	if writeBufSize == 0 {
		writeBufSize = defaultWriteBufferSize
	}

	capped := &cappedReader{r: netConn, remaining: maxHandshakeHead}
	reader := bufio.NewReaderSize(capped, readBufSize)

	head, err := httphead.ReadRequestHead(reader, opts.MaxHeaders)
	if err != nil {
		if capped.exhausted {
			return nil, ErrAttackAttempt
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errProtocol(NewProtocolError(ProtocolHandshakeIncomplete))
		}
		if httphead.IsParseError(err) {
			return nil, FromHeaderParseError(err)
		}
		return nil, FromIOError(err)
	}

	// The client must not send anything between its request and our 101
	// response.
	if reader.Buffered() > 0 {
		return nil, errProtocol(NewProtocolError(ProtocolJunkAfterRequest))
	}

	// Request target must be a valid URI (RFC 6455 Section 4.1).
	if _, err := url.ParseRequestURI(head.RequestURI); err != nil {
		return nil, FromHTTPFormatError(err)
	}

	key, verr := validateUpgrade(head.Method, head.ProtoMajor, head.ProtoMinor, head.Header)
	if verr != nil {
		return nil, verr
	}

	writer := bufio.NewWriterSize(netConn, writeBufSize)

	// Application-level rejection with a custom response.
	if opts.OnRequest != nil {
		if resp := opts.OnRequest(head); resp != nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil, errProtocol(NewProtocolError(ProtocolCustomResponseSuccessful))
			}
			if err := writeRejection(writer, resp); err != nil {
				return nil, err
			}
			return nil, NewHTTPError(resp)
		}
	}

	subprotocol := negotiateSubprotocol(head.Header, opts.Subprotocols)
	if err := writeAcceptResponse(writer, computeAcceptKey(key), subprotocol); err != nil {
		return nil, err
	}

	// The capped reader only guards the handshake; frames flow straight
	// from the socket.
	conn := newConn(netConn, bufio.NewReaderSize(netConn, readBufSize), writer, true)
	conn.subprotocol = subprotocol
	if opts.MaxMessageSize > 0 {
		conn.SetMaxMessageSize(opts.MaxMessageSize)
	}

	return conn, nil
}

// writeAcceptResponse sends the 101 Switching Protocols response.
func writeAcceptResponse(w *bufio.Writer, acceptKey, subprotocol string) error {
	_, _ = w.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	_, _ = w.WriteString("Upgrade: websocket\r\n")
	_, _ = w.WriteString("Connection: Upgrade\r\n")
	_, _ = w.WriteString("Sec-WebSocket-Accept: " + acceptKey + "\r\n")
	if subprotocol != "" {
		_, _ = w.WriteString("Sec-WebSocket-Protocol: " + subprotocol + "\r\n")
	}
	_, _ = w.WriteString("\r\n")

	if err := w.Flush(); err != nil {
		return FromIOError(err)
	}
	return nil
}

// writeRejection sends a custom non-2xx rejection response.
func writeRejection(w *bufio.Writer, resp *Response) error {
	status := strconv.Itoa(resp.StatusCode)
	_, _ = w.WriteString("HTTP/1.1 " + status + " " + reasonPhrase(resp.StatusCode) + "\r\n")
	for name, values := range resp.Header {
		for _, v := range values {
			_, _ = w.WriteString(name + ": " + v + "\r\n")
		}
	}
	_, _ = w.WriteString("Content-Length: " + strconv.Itoa(len(resp.Body)) + "\r\n")
	_, _ = w.WriteString("\r\n")
	_, _ = w.Write(resp.Body)

	if err := w.Flush(); err != nil {
		return FromIOError(err)
	}
	return nil
}

// reasonPhrase falls back to a generic phrase for unregistered codes.
func reasonPhrase(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Rejected"
}

// cappedReader bounds the bytes readable during the handshake and
// remembers whether the bound was hit.
type cappedReader struct {
	r         io.Reader
	remaining int
	exhausted bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		c.exhausted = true
		return 0, io.EOF
	}
	if len(p) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= n
	return n, err
}
