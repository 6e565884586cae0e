package websocket

import "strconv"

// CapacityKind identifies the specific cause of a capacity error.
type CapacityKind int

const (
	// CapacityTooManyHeaders reports a handshake head whose header count
	// exceeds the configured limit.
	CapacityTooManyHeaders CapacityKind = iota

	// CapacityMessageTooLong reports a message or frame bigger than the
	// configured maximum size.
	CapacityMessageTooLong
)

// CapacityError is a configured resource bound being exceeded: too many
// headers during handshake parsing, or a message/frame byte size over the
// configured maximum during a read or write.
//
// Values are immutable; construct them with errTooManyHeaders or
// NewMessageTooLong.
type CapacityError struct {
	kind    CapacityKind
	size    int
	maxSize int
}

// errTooManyHeaders is the single TooManyHeaders value; it carries no
// payload so it can be shared.
var errTooManyHeaders = &CapacityError{kind: CapacityTooManyHeaders}

// NewMessageTooLong records an attempted size against the configured
// maximum. Callers must only construct it when size > maxSize; both values
// are kept so the violation can be reported precisely.
func NewMessageTooLong(size, maxSize int) *CapacityError {
	return &CapacityError{kind: CapacityMessageTooLong, size: size, maxSize: maxSize}
}

// Kind returns the active variant.
func (e *CapacityError) Kind() CapacityKind { return e.kind }

// Size returns the attempted message size for CapacityMessageTooLong.
func (e *CapacityError) Size() int { return e.size }

// MaxSize returns the configured limit for CapacityMessageTooLong.
func (e *CapacityError) MaxSize() int { return e.maxSize }

// Error renders the stable diagnostic for this capacity violation.
func (e *CapacityError) Error() string {
	switch e.kind {
	case CapacityTooManyHeaders:
		return "Too many headers"
	case CapacityMessageTooLong:
		return "Message too long: " + strconv.Itoa(e.size) + " > " + strconv.Itoa(e.maxSize)
	default:
		return "capacity error"
	}
}
