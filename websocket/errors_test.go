package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestError_Display verifies the rendered diagnostic for every kind.
// The wording is part of the package contract.
func TestError_Display(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "connection closed",
			err:  ErrConnectionClosed,
			want: "Connection closed normally",
		},
		{
			name: "already closed",
			err:  ErrAlreadyClosed,
			want: "Trying to work with closed connection",
		},
		{
			name: "io",
			err:  FromIOError(errors.New("broken pipe")),
			want: "IO error: broken pipe",
		},
		{
			name: "tls",
			err:  FromTLSError(errors.New("bad certificate")),
			want: "TLS error: bad certificate",
		},
		{
			name: "capacity too many headers",
			err:  errCapacity(errTooManyHeaders),
			want: "Space limit exceeded: Too many headers",
		},
		{
			name: "capacity message too long",
			err:  errCapacity(NewMessageTooLong(128, 64)),
			want: "Space limit exceeded: Message too long: 128 > 64",
		},
		{
			name: "protocol",
			err:  errProtocol(NewProtocolError(ProtocolMissingConnectionUpgrade)),
			want: `WebSocket protocol error: No "Connection: upgrade" header`,
		},
		{
			name: "write buffer full",
			err:  errWriteBufferFull(NewTextMessage("queued")),
			want: "Write buffer is full",
		},
		{
			name: "utf8",
			err:  ErrUTF8,
			want: "UTF-8 encoding error",
		},
		{
			name: "attack attempt",
			err:  ErrAttackAttempt,
			want: "Attack attempt detected",
		},
		{
			name: "url",
			err:  errURL(NewURLError(URLNoHostName)),
			want: "URL error: No host name in the URL",
		},
		{
			name: "http",
			err:  NewHTTPError(&Response{StatusCode: 404}),
			want: "HTTP error: 404",
		},
		{
			name: "http format",
			err:  FromHTTPFormatError(errors.New("invalid header name")),
			want: "HTTP format error: invalid header name",
		},
		{
			name: "blob format unsupported",
			err:  ErrBlobFormatUnsupported,
			want: "Parsing blobs is unsupported",
		},
		{
			name: "unknown format",
			err:  ErrUnknownFormat,
			want: "Unknown data format encountered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestProtocolError_Display verifies the per-violation diagnostics,
// including the ones carrying a payload.
func TestProtocolError_Display(t *testing.T) {
	tests := []struct {
		name string
		err  *ProtocolError
		want string
	}{
		{
			name: "wrong method",
			err:  NewProtocolError(ProtocolWrongHTTPMethod),
			want: "Unsupported HTTP method used - only GET is allowed",
		},
		{
			name: "invalid header carries name",
			err:  NewInvalidHeaderError("Sec-WebSocket-Key"),
			want: "Not allowed to overwrite the standard header Sec-WebSocket-Key",
		},
		{
			name: "unknown control frame carries opcode",
			err:  NewOpcodeError(ProtocolUnknownControlFrameType, 0x0B),
			want: "Unknown control frame type: 11",
		},
		{
			name: "unknown data frame carries opcode",
			err:  NewOpcodeError(ProtocolUnknownDataFrameType, 0x03),
			want: "Unknown data frame type: 3",
		},
		{
			name: "invalid opcode carries value",
			err:  NewOpcodeError(ProtocolInvalidOpcode, 0x1F),
			want: "Encountered invalid opcode: 31",
		},
		{
			name: "expected fragment names frame class",
			err:  NewExpectedFragmentError(DataText),
			want: "While waiting for more fragments received: TEXT",
		},
		{
			name: "header parse wraps cause",
			err:  newHeaderParseError(errors.New("invalid token")),
			want: "header parse error: invalid token",
		},
		{
			name: "send after closing",
			err:  NewProtocolError(ProtocolSendAfterClosing),
			want: "Sending after closing is not allowed",
		},
		{
			name: "reset without closing handshake",
			err:  NewProtocolError(ProtocolResetWithoutClosingHandshake),
			want: "Connection reset without closing handshake",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestData_String covers the reserved descriptor alongside the named ones.
func TestData_String(t *testing.T) {
	tests := []struct {
		data Data
		want string
	}{
		{DataContinue, "CONTINUE"},
		{DataText, "TEXT"},
		{DataBinary, "BINARY"},
		{Data(5), "RESERVED_DATA_5"},
		{Data(7), "RESERVED_DATA_7"},
	}

	for _, tt := range tests {
		if got := tt.data.String(); got != tt.want {
			t.Errorf("Data(%d).String() = %q, want %q", tt.data, got, tt.want)
		}
	}
}

// TestURLError_Display verifies every URL rejection diagnostic.
func TestURLError_Display(t *testing.T) {
	tests := []struct {
		err  *URLError
		want string
	}{
		{NewURLError(URLTLSFeatureNotEnabled), "TLS support not enabled"},
		{NewURLError(URLNoHostName), "No host name in the URL"},
		{NewUnableToConnectError("ws://localhost:9999"), "Unable to connect to ws://localhost:9999"},
		{NewURLError(URLUnsupportedScheme), "URL scheme not supported"},
		{NewURLError(URLEmptyHostName), "URL contains empty host name"},
		{NewURLError(URLNoPathOrQuery), "No path/query in URL"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

// TestError_SentinelMatching verifies that errors.Is matches by kind, so
// sentinels compare equal to independently constructed values.
func TestError_SentinelMatching(t *testing.T) {
	if !errors.Is(ErrConnectionClosed, ErrConnectionClosed) {
		t.Error("sentinel must match itself")
	}

	var fresh error = &Error{kind: KindConnectionClosed}
	if !errors.Is(fresh, ErrConnectionClosed) {
		t.Error("fresh value with same kind must match the sentinel")
	}

	if errors.Is(ErrUTF8, ErrConnectionClosed) {
		t.Error("different kinds must not match")
	}

	wrapped := fmt.Errorf("read: %w", ErrConnectionClosed)
	if !errors.Is(wrapped, ErrConnectionClosed) {
		t.Error("wrapped sentinel must still match")
	}
}

// TestError_Unwrap verifies the payload chain is visible to errors.Is and
// errors.As.
func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	ioErr := FromIOError(cause)
	if !errors.Is(ioErr, cause) {
		t.Error("Io error must unwrap to its cause")
	}

	capErr := errCapacity(NewMessageTooLong(10, 5))
	var ce *CapacityError
	if !errors.As(capErr, &ce) {
		t.Fatal("Capacity error must expose *CapacityError")
	}
	if ce.Size() != 10 || ce.MaxSize() != 5 {
		t.Errorf("capacity payload = (%d, %d), want (10, 5)", ce.Size(), ce.MaxSize())
	}

	protoErr := errProtocol(NewOpcodeError(ProtocolInvalidOpcode, 0x1F))
	var pe *ProtocolError
	if !errors.As(protoErr, &pe) {
		t.Fatal("Protocol error must expose *ProtocolError")
	}
	if pe.Opcode() != 0x1F {
		t.Errorf("opcode payload = 0x%X, want 0x1F", pe.Opcode())
	}

	if ErrUTF8.Unwrap() != nil {
		t.Error("payload-less kinds must unwrap to nil")
	}
}

// TestError_HTTPPayload verifies the response travels inside the error.
func TestError_HTTPPayload(t *testing.T) {
	resp := &Response{
		StatusCode: 503,
		Header:     http.Header{"Retry-After": []string{"120"}},
		Body:       []byte("maintenance"),
	}

	err := NewHTTPError(resp)
	if err.Kind() != KindHTTP {
		t.Fatalf("kind = %v, want Http", err.Kind())
	}
	if err.StatusCode() != 503 {
		t.Errorf("StatusCode() = %d, want 503", err.StatusCode())
	}
	if got := err.Response(); got != resp {
		t.Error("Response() must return the carried response")
	}
	if string(err.Response().Body) != "maintenance" {
		t.Errorf("body = %q, want %q", err.Response().Body, "maintenance")
	}
}

// TestError_WriteBufferFullOwnership verifies the rejected message comes
// back with its payload slice intact.
func TestError_WriteBufferFullOwnership(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	msg := NewBinaryMessage(payload)

	err := errWriteBufferFull(msg)
	got := err.Message()

	if got.Type != BinaryMessage {
		t.Errorf("type = %v, want Binary", got.Type)
	}
	if &got.Data[0] != &payload[0] {
		t.Error("returned message must carry the original payload slice, not a copy")
	}
}

// TestKind_String verifies every kind has a name for logging.
func TestKind_String(t *testing.T) {
	kinds := []Kind{
		KindConnectionClosed, KindAlreadyClosed, KindIO, KindTLS,
		KindCapacity, KindProtocol, KindWriteBufferFull, KindUTF8,
		KindAttackAttempt, KindURL, KindHTTP, KindHTTPFormat,
		KindBlobFormatUnsupported, KindUnknownFormat,
	}

	seen := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		name := k.String()
		if name == "" || name[0] == 'K' && len(name) > 5 && name[:5] == "Kind(" {
			t.Errorf("kind %d has no name", k)
		}
		if seen[name] {
			t.Errorf("duplicate kind name %q", name)
		}
		seen[name] = true
	}
}

// TestError_PayloadAccessorsZero verifies accessors return zero values for
// kinds that carry no such payload.
func TestError_PayloadAccessorsZero(t *testing.T) {
	e := ErrConnectionClosed
	if e.Capacity() != nil || e.Protocol() != nil || e.URL() != nil || e.Response() != nil {
		t.Error("payload accessors must be nil for payload-less kinds")
	}
	if e.StatusCode() != 0 {
		t.Error("StatusCode must be 0 without a response payload")
	}
	if e.Message().Data != nil {
		t.Error("Message must be zero without a rejected message")
	}
}
