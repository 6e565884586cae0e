// Package httphead parses HTTP/1.1 request and response heads for the
// WebSocket opening handshake.
//
// It is deliberately small: the handshake only ever deals with a single
// request line or status line followed by a bounded header block, so the
// full generality of net/http is not needed on the raw-socket paths.
// Every failure is one of the sentinel errors declared below, which lets
// the caller classify parse failures without string matching.
package httphead

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// DefaultMaxHeaders is the header-count limit applied when the caller
// passes maxHeaders <= 0.
const DefaultMaxHeaders = 128

// Parse failures. The set is closed: ReadRequestHead and ReadResponseHead
// return either one of these (possibly wrapped) or an I/O error from the
// underlying reader.
var (
	// ErrTooManyHeaders indicates the header block exceeds the configured
	// header-count limit.
	ErrTooManyHeaders = errors.New("too many headers")

	// ErrHeaderName indicates an invalid byte in a header field name.
	ErrHeaderName = errors.New("invalid header name")

	// ErrHeaderValue indicates an invalid byte in a header field value.
	ErrHeaderValue = errors.New("invalid header value")

	// ErrNewline indicates a bare CR or missing LF in the head.
	ErrNewline = errors.New("invalid newline in header block")

	// ErrToken indicates an invalid token where a method or reason was
	// expected.
	ErrToken = errors.New("invalid token")

	// ErrVersion indicates a malformed HTTP version.
	ErrVersion = errors.New("invalid HTTP version")

	// ErrStatus indicates a malformed status code in a status line.
	ErrStatus = errors.New("invalid status code")

	// ErrValueNotText indicates a header value that is not valid UTF-8 and
	// therefore cannot be converted to text.
	ErrValueNotText = errors.New("header value is not valid UTF-8")
)

// IsParseError reports whether err is one of this package's parse
// failures, as opposed to an I/O error from the underlying reader.
func IsParseError(err error) bool {
	for _, sentinel := range []error{
		ErrTooManyHeaders, ErrHeaderName, ErrHeaderValue,
		ErrNewline, ErrToken, ErrVersion, ErrStatus,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// RequestHead is a parsed HTTP request line plus headers.
type RequestHead struct {
	Method     string
	RequestURI string
	Proto      string // e.g. "HTTP/1.1"
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
}

// ResponseHead is a parsed HTTP status line plus headers.
type ResponseHead struct {
	StatusCode int
	Reason     string
	Proto      string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
}

// ReadRequestHead reads and parses a request line and header block,
// consuming input up to and including the terminating empty line.
//
// A truncated head surfaces the underlying reader error (io.EOF or
// io.ErrUnexpectedEOF); malformed input surfaces one of the sentinel
// parse errors.
func ReadRequestHead(r *bufio.Reader, maxHeaders int) (*RequestHead, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, ErrToken
	}
	if !validToken(method) {
		return nil, ErrToken
	}

	uri, protoStr, ok := strings.Cut(rest, " ")
	if !ok || uri == "" {
		return nil, ErrToken
	}

	major, minor, err := parseVersion(protoStr)
	if err != nil {
		return nil, err
	}

	header, err := readHeaderBlock(r, maxHeaders)
	if err != nil {
		return nil, err
	}

	return &RequestHead{
		Method:     method,
		RequestURI: uri,
		Proto:      protoStr,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     header,
	}, nil
}

// ReadResponseHead reads and parses a status line and header block,
// consuming input up to and including the terminating empty line.
func ReadResponseHead(r *bufio.Reader, maxHeaders int) (*ResponseHead, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	protoStr, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, ErrVersion
	}

	major, minor, err := parseVersion(protoStr)
	if err != nil {
		return nil, err
	}

	// Status code is exactly three digits; the reason phrase is optional.
	codeStr, reason, _ := strings.Cut(rest, " ")
	code, err := ParseStatusCode(codeStr)
	if err != nil {
		return nil, err
	}

	header, err := readHeaderBlock(r, maxHeaders)
	if err != nil {
		return nil, err
	}

	return &ResponseHead{
		StatusCode: code,
		Reason:     reason,
		Proto:      protoStr,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     header,
	}, nil
}

// ParseStatusCode parses a three-digit HTTP status code in the 100-599
// range. Returns ErrStatus for anything else.
func ParseStatusCode(s string) (int, error) {
	if len(s) != 3 {
		return 0, ErrStatus
	}
	code := 0
	for i := 0; i < 3; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, ErrStatus
		}
		code = code*10 + int(c-'0')
	}
	if code < 100 {
		return 0, ErrStatus
	}
	return code, nil
}

// ValidHeaderName reports whether s is a valid header field name token.
// Returns ErrHeaderName when it is not.
func ValidHeaderName(s string) error {
	if s == "" || !validToken(s) {
		return ErrHeaderName
	}
	return nil
}

// ValidHeaderValue reports whether s is a valid header field value:
// visible ASCII plus space and horizontal tab (RFC 9110 Section 5.5).
// Returns ErrHeaderValue when it is not.
func ValidHeaderValue(s string) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\t' && (c < 0x20 || c == 0x7F) {
			return ErrHeaderValue
		}
	}
	return nil
}

// ValueText converts a raw header value to text, failing with
// ErrValueNotText when the bytes are not valid UTF-8.
func ValueText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrValueNotText
	}
	return string(b), nil
}

// readLine reads one CRLF- or LF-terminated line, rejecting bare CR.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			// Head cut off mid-line.
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if strings.ContainsRune(line, '\r') {
		return "", ErrNewline
	}
	return line, nil
}

// readHeaderBlock reads "Name: value" lines until the empty line that
// terminates the head.
func readHeaderBlock(r *bufio.Reader, maxHeaders int) (http.Header, error) {
	if maxHeaders <= 0 {
		maxHeaders = DefaultMaxHeaders
	}

	header := make(http.Header)
	count := 0
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return header, nil
		}

		count++
		if count > maxHeaders {
			return nil, ErrTooManyHeaders
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, ErrHeaderName
		}
		// RFC 9112 Section 5.1: no whitespace between name and colon.
		if name == "" || name != strings.TrimRight(name, " \t") {
			return nil, ErrHeaderName
		}
		if err := ValidHeaderName(name); err != nil {
			return nil, err
		}

		value = strings.Trim(value, " \t")
		if err := ValidHeaderValue(value); err != nil {
			return nil, err
		}

		header.Add(name, value)
	}
}

// parseVersion parses "HTTP/x.y".
func parseVersion(s string) (major, minor int, err error) {
	const prefix = "HTTP/"
	if !strings.HasPrefix(s, prefix) {
		return 0, 0, ErrVersion
	}
	v := s[len(prefix):]
	majStr, minStr, ok := strings.Cut(v, ".")
	if !ok || len(majStr) != 1 || len(minStr) != 1 {
		return 0, 0, ErrVersion
	}
	if majStr[0] < '0' || majStr[0] > '9' || minStr[0] < '0' || minStr[0] > '9' {
		return 0, 0, ErrVersion
	}
	return int(majStr[0] - '0'), int(minStr[0] - '0'), nil
}

// validToken reports whether s consists only of RFC 9110 token characters.
func validToken(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return s != ""
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
