package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCommand = errors.New("protocol: invalid command")
	ErrProtocol       = errors.New("protocol: malformed frame")
	ErrEmptyFrame     = errors.New("protocol: empty frame")
)

// ProtocolError describes one frame that could not be decoded.
type ProtocolError struct {
	Frame  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: malformed frame %q: %s", e.Frame, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func malformed(frame string, format string, args ...any) error {
	return &ProtocolError{Frame: frame, Reason: fmt.Sprintf(format, args...)}
}
