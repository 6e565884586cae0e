package websocket

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coregx/ws/internal/httphead"
)

// maxRejectionBody bounds how much of a rejected handshake response body
// is retained inside the Http error.
const maxRejectionBody = 64 * 1024

// DialOptions configures the client side of the opening handshake.
//
// All fields are optional. Zero values use sensible defaults.
type DialOptions struct {
	// Header carries extra handshake headers. The headers the library
	// forms itself (Host, Upgrade, Connection, Sec-WebSocket-*) must not
	// appear here; overwriting one is a protocol error naming the header.
	Header http.Header

	// Subprotocols requested, in preference order.
	Subprotocols []string

	// TLSConfig configures wss connections. nil uses a default config
	// with the server name derived from the URL.
	TLSConfig *tls.Config

	// DisableTLS rejects wss URLs with a URL error, for builds and
	// environments where TLS must not be used.
	DisableTLS bool

	// HandshakeTimeout bounds the whole opening handshake, connect
	// included (default: no timeout beyond the context's).
	HandshakeTimeout time.Duration

	// MaxHeaders bounds the response header count; exceeding it is a
	// capacity error (default: httphead.DefaultMaxHeaders).
	MaxHeaders int

	// ReadBufferSize / WriteBufferSize size the connection buffers
	// (default: 4096).
	ReadBufferSize  int
	WriteBufferSize int

	// MaxMessageSize bounds frames and assembled messages on the
	// resulting connection (default: DefaultMaxMessageSize).
	MaxMessageSize int
}

// standardHeaders are formed by the library during the handshake and may
// not be overwritten through DialOptions.Header.
var standardHeaders = []string{
	"Host",
	"Upgrade",
	"Connection",
	"Sec-WebSocket-Key",
	"Sec-WebSocket-Version",
	"Sec-WebSocket-Accept",
	"Sec-WebSocket-Protocol",
}

// Dial connects to a WebSocket server and performs the opening handshake
// (RFC 6455 Section 4.1).
//
// rawURL must be a ws or wss URL. Every failure is a model *Error: URL
// rejections as Url variants, a failed connect as
// Url(UnableToConnect), TLS failures as Tls, malformed response heads
// through the header-parse classification (too many headers becomes a
// capacity error), and a response other than 101 as Http carrying the
// status code and body.
//
//nolint:gocyclo,cyclop // handshake requires many validation steps per RFC 6455
func Dial(ctx context.Context, rawURL string, opts *DialOptions) (*Conn, error) {
	if opts == nil {
		opts = &DialOptions{}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, FromHTTPFormatError(err)
	}

	secure, uerr := validateURL(u, opts.DisableTLS)
	if uerr != nil {
		return nil, errURL(uerr)
	}

	target, uerr := requestTarget(u)
	if uerr != nil {
		return nil, errURL(uerr)
	}

	hostPort := u.Host
	if u.Port() == "" {
		if secure {
			hostPort = net.JoinHostPort(u.Hostname(), "443")
		} else {
			hostPort = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	if opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.HandshakeTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, errURL(NewUnableToConnectError(hostPort))
	}

	if secure {
		cfg := opts.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = u.Hostname()
		}
		tlsConn := tls.Client(netConn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = netConn.Close()
			return nil, FromTLSError(err)
		}
		netConn = tlsConn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}

	conn, err := clientHandshake(netConn, u.Host, target, opts)
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}

	_ = netConn.SetDeadline(time.Time{})
	return conn, nil
}

// validateURL applies the URL acceptance rules in order: scheme, host
// presence, host emptiness, TLS availability. Reports whether the URL
// selects TLS.
func validateURL(u *url.URL, disableTLS bool) (secure bool, _ *URLError) {
	switch u.Scheme {
	case "ws":
	case "wss":
		secure = true
	default:
		return false, NewURLError(URLUnsupportedScheme)
	}

	if u.Host == "" {
		if u.OmitHost || u.Opaque != "" {
			return false, NewURLError(URLNoHostName)
		}
		return false, NewURLError(URLEmptyHostName)
	}
	if u.Hostname() == "" {
		return false, NewURLError(URLEmptyHostName)
	}

	if secure && disableTLS {
		return false, NewURLError(URLTLSFeatureNotEnabled)
	}

	return secure, nil
}

// requestTarget forms the request target from the URL's path and query.
// An opaque URL has neither, so no target can be formed from it.
func requestTarget(u *url.URL) (string, *URLError) {
	if u.Opaque != "" {
		return "", NewURLError(URLNoPathOrQuery)
	}

	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target, nil
}

// clientHandshake sends the upgrade request and validates the response.
func clientHandshake(netConn net.Conn, host, target string, opts *DialOptions) (*Conn, error) {
	readBufSize := opts.ReadBufferSize
	if readBufSize == 0 {
		readBufSize = defaultReadBufferSize
	}
	writeBufSize := opts.WriteBufferSize
	if writeBufSize == 0 {
		writeBufSize = defaultWriteBufferSize
	}

	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	writer := bufio.NewWriterSize(netConn, writeBufSize)
	if err := writeUpgradeRequest(writer, host, target, key, opts); err != nil {
		return nil, err
	}

	reader := bufio.NewReaderSize(netConn, readBufSize)
	head, err := httphead.ReadResponseHead(reader, opts.MaxHeaders)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, errProtocol(NewProtocolError(ProtocolHandshakeIncomplete))
		case httphead.IsParseError(err):
			return nil, FromHeaderParseError(err)
		default:
			return nil, FromIOError(err)
		}
	}

	// Anything but 101 is a rejection; hand the response back whole.
	if head.StatusCode != http.StatusSwitchingProtocols {
		body := readRejectionBody(reader, head.Header)
		return nil, NewHTTPError(&Response{
			StatusCode: head.StatusCode,
			Header:     head.Header,
			Body:       body,
		})
	}

	// Response validation (RFC 6455 Section 4.2.2, client side).
	if !headerContainsToken(head.Header.Get("Connection"), "upgrade") {
		return nil, errProtocol(NewProtocolError(ProtocolMissingConnectionUpgrade))
	}
	if !headerContainsToken(head.Header.Get("Upgrade"), "websocket") {
		return nil, errProtocol(NewProtocolError(ProtocolMissingUpgradeWebSocket))
	}
	if head.Header.Get("Sec-WebSocket-Accept") != computeAcceptKey(key) {
		return nil, errProtocol(NewProtocolError(ProtocolSecWebSocketAcceptMismatch))
	}

	conn := newConn(netConn, reader, writer, false)
	conn.subprotocol = head.Header.Get("Sec-WebSocket-Protocol")
	if opts.MaxMessageSize > 0 {
		conn.SetMaxMessageSize(opts.MaxMessageSize)
	}

	return conn, nil
}

// writeUpgradeRequest sends the upgrade request head.
//
// Caller-supplied headers are validated and must not overwrite the
// standard handshake headers the library forms itself.
func writeUpgradeRequest(w *bufio.Writer, host, target, key string, opts *DialOptions) error {
	_, _ = w.WriteString("GET " + target + " HTTP/1.1\r\n")
	_, _ = w.WriteString("Host: " + host + "\r\n")
	_, _ = w.WriteString("Upgrade: websocket\r\n")
	_, _ = w.WriteString("Connection: Upgrade\r\n")
	_, _ = w.WriteString("Sec-WebSocket-Key: " + key + "\r\n")
	_, _ = w.WriteString("Sec-WebSocket-Version: 13\r\n")
	if len(opts.Subprotocols) > 0 {
		_, _ = w.WriteString("Sec-WebSocket-Protocol: " + strings.Join(opts.Subprotocols, ", ") + "\r\n")
	}

	for name, values := range opts.Header {
		for _, std := range standardHeaders {
			if strings.EqualFold(name, std) {
				return errProtocol(NewInvalidHeaderError(std))
			}
		}
		if err := httphead.ValidHeaderName(name); err != nil {
			return FromHTTPFormatError(err)
		}
		for _, v := range values {
			if err := httphead.ValidHeaderValue(v); err != nil {
				return FromHTTPFormatError(err)
			}
			_, _ = w.WriteString(name + ": " + v + "\r\n")
		}
	}

	_, _ = w.WriteString("\r\n")
	if err := w.Flush(); err != nil {
		return FromIOError(err)
	}
	return nil
}

// readRejectionBody drains a bounded amount of a rejection response body
// so it can travel inside the Http error. Read failures leave the body
// nil; the rejection itself is already the error being reported.
func readRejectionBody(r *bufio.Reader, header http.Header) []byte {
	cl := header.Get("Content-Length")
	if cl == "" {
		return nil
	}
	n, err := strconv.Atoi(cl)
	if err != nil || n <= 0 {
		return nil
	}
	if n > maxRejectionBody {
		n = maxRejectionBody
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil
	}
	return body
}

// generateKey draws the 16-byte random Sec-WebSocket-Key
// (RFC 6455 Section 4.1).
func generateKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", FromIOError(err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
