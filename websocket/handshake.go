package websocket

import (
	"bufio"
	"crypto/sha1" // #nosec G505 - SHA-1 required by RFC 6455 Section 1.3
	"encoding/base64"
	"net/http"
	"strings"
)

// Magic GUID from RFC 6455 Section 1.3.
// Used for computing Sec-WebSocket-Accept header.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Default buffer sizes for WebSocket connections.
const (
	defaultReadBufferSize  = 4096
	defaultWriteBufferSize = 4096
)

// UpgradeOptions configures WebSocket upgrade behavior.
//
// All fields are optional. Zero values use sensible defaults.
type UpgradeOptions struct {
	// Subprotocols is the list of subprotocols advertised by server.
	// Server will select first match from client's requested subprotocols.
	// Empty list = no subprotocol negotiation.
	Subprotocols []string

	// CheckOrigin verifies the Origin header.
	// nil = allow all origins (INSECURE in production!)
	// Returning false rejects the connection as an attack attempt
	// (cross-site WebSocket hijacking).
	CheckOrigin func(*http.Request) bool

	// ReadBufferSize sets size of read buffer (default: 4096).
	ReadBufferSize int

	// WriteBufferSize sets size of write buffer (default: 4096).
	WriteBufferSize int

	// MaxMessageSize bounds frames and assembled messages on the
	// resulting connection (default: DefaultMaxMessageSize).
	MaxMessageSize int

	// MaxHeaders bounds the header count on the raw Accept path;
	// exceeding it is a capacity error (default: 128). The net/http
	// Upgrade path enforces its own server-level limits instead.
	MaxHeaders int
}

// Upgrade upgrades an HTTP connection to the WebSocket protocol.
//
// Implements RFC 6455 Section 4 (opening handshake) on top of a net/http
// server. Request validation follows the fixed order method, HTTP
// version, Connection header, Upgrade header, Sec-WebSocket-Version,
// Sec-WebSocket-Key; when a request has several defects, the first rule
// in that order is the one reported.
//
// Every rejection is a model *Error: handshake rule violations as
// Protocol variants, a denied origin as AttackAttempt, hijack and
// transport failures as Io.
//
// Example:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    conn, err := websocket.Upgrade(w, r, nil)
//	    if err != nil {
//	        http.Error(w, err.Error(), http.StatusBadRequest)
//	        return
//	    }
//	    defer conn.Close()
//	}
//
//nolint:gocyclo,cyclop // handshake requires many validation steps per RFC 6455
func Upgrade(w http.ResponseWriter, r *http.Request, opts *UpgradeOptions) (*Conn, error) {
	if opts == nil {
		opts = &UpgradeOptions{}
	}
	readBufSize := opts.ReadBufferSize
	if readBufSize == 0 {
		readBufSize = defaultReadBufferSize
	}
	writeBufSize := opts.WriteBufferSize
	if writeBufSize == 0 {
		writeBufSize = defaultWriteBufferSize
	}

	key, verr := validateUpgrade(r.Method, r.ProtoMajor, r.ProtoMinor, r.Header)
	if verr != nil {
		return nil, verr
	}

	// Origin check: a browser page from another site driving this
	// handshake is a hijack attempt, not a protocol mistake.
	if opts.CheckOrigin != nil && !opts.CheckOrigin(r) {
		return nil, ErrAttackAttempt
	}

	subprotocol := negotiateSubprotocol(r.Header, opts.Subprotocols)
	accept := computeAcceptKey(key)

	// 101 Switching Protocols response (RFC 6455 Section 4.2.2).
	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.Header().Set("Sec-WebSocket-Accept", accept)
	if subprotocol != "" {
		w.Header().Set("Sec-WebSocket-Protocol", subprotocol)
	}
	w.WriteHeader(http.StatusSwitchingProtocols)

	// Take over the TCP socket.
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, FromIOError(http.ErrHijacked)
	}

	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		return nil, FromIOError(err)
	}

	if err := bufrw.Flush(); err != nil {
		_ = netConn.Close()
		return nil, FromIOError(err)
	}

	// Reuse the hijacked reader when its buffer is big enough; data may
	// already be buffered in it.
	var reader *bufio.Reader
	if bufrw.Reader.Size() >= readBufSize {
		reader = bufrw.Reader
	} else {
		reader = bufio.NewReaderSize(netConn, readBufSize)
	}

	writer := bufio.NewWriterSize(netConn, writeBufSize)

	conn := newConn(netConn, reader, writer, true)
	conn.subprotocol = subprotocol
	if opts.MaxMessageSize > 0 {
		conn.SetMaxMessageSize(opts.MaxMessageSize)
	}

	return conn, nil
}

// validateUpgrade checks an upgrade request against RFC 6455 Section 4.1
// in the fixed validation order and returns the Sec-WebSocket-Key.
func validateUpgrade(method string, protoMajor, protoMinor int, h http.Header) (string, *Error) {
	if method != http.MethodGet {
		return "", errProtocol(NewProtocolError(ProtocolWrongHTTPMethod))
	}

	if protoMajor < 1 || (protoMajor == 1 && protoMinor < 1) {
		return "", errProtocol(NewProtocolError(ProtocolWrongHTTPVersion))
	}

	if !headerContainsToken(h.Get("Connection"), "upgrade") {
		return "", errProtocol(NewProtocolError(ProtocolMissingConnectionUpgrade))
	}

	if !headerContainsToken(h.Get("Upgrade"), "websocket") {
		return "", errProtocol(NewProtocolError(ProtocolMissingUpgradeWebSocket))
	}

	if h.Get("Sec-WebSocket-Version") != "13" {
		return "", errProtocol(NewProtocolError(ProtocolMissingSecWebSocketVersion))
	}

	key := h.Get("Sec-WebSocket-Key")
	if key == "" {
		return "", errProtocol(NewProtocolError(ProtocolMissingSecWebSocketKey))
	}

	return key, nil
}

// computeAcceptKey computes Sec-WebSocket-Accept from the client key.
//
// RFC 6455 Section 1.3:
//
//	Sec-WebSocket-Accept = base64(SHA-1(key + GUID))
//
// Example:
//
//	key := "dGhlIHNhbXBsZSBub25jZQ=="
//	accept := computeAcceptKey(key)
//	// accept = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
func computeAcceptKey(key string) string {
	// #nosec G401 - SHA-1 required by RFC 6455 Section 1.3 (not for cryptographic security)
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// negotiateSubprotocol selects first match from client's requested subprotocols.
//
// RFC 6455 Section 1.9: Server selects ONE subprotocol from client's list.
//
// Returns empty string if no match or no subprotocols configured.
func negotiateSubprotocol(h http.Header, serverProtos []string) string {
	if len(serverProtos) == 0 {
		return ""
	}

	clientProtos := strings.Split(h.Get("Sec-WebSocket-Protocol"), ",")
	for _, clientProto := range clientProtos {
		clientProto = strings.TrimSpace(clientProto)
		for _, serverProto := range serverProtos {
			if clientProto == serverProto {
				return clientProto
			}
		}
	}

	return ""
}

// headerContainsToken checks if header value contains token (case-insensitive).
//
// RFC 6455 Section 4.2.1: Header tokens are case-insensitive.
//
// Example:
//
//	headerContainsToken("Upgrade, HTTP/2.0", "upgrade") // true
//	headerContainsToken("keep-alive", "upgrade")        // false
func headerContainsToken(header, token string) bool {
	header = strings.ToLower(header)
	token = strings.ToLower(token)

	for _, h := range strings.Split(header, ",") {
		if strings.TrimSpace(h) == token {
			return true
		}
	}

	return false
}

// CheckSameOrigin is an origin checker that accepts requests whose Origin
// header matches the request host, plus non-browser clients that send no
// Origin at all.
//
// Usage:
//
//	opts := &UpgradeOptions{
//	    CheckOrigin: websocket.CheckSameOrigin,
//	}
func CheckSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header = non-browser client (e.g. curl, Go client).
		return true
	}

	origin = strings.TrimPrefix(origin, "https://")
	origin = strings.TrimPrefix(origin, "http://")
	return strings.EqualFold(origin, r.Host)
}
