package ipc

import (
	"errors"
	"fmt"
)

// Commands understood by the owner process.
const (
	CommandStatus     = "status"
	CommandForward    = "forward"
	CommandBackward   = "backward"
	CommandStop       = "stop"
	CommandLeft       = "left"
	CommandRight      = "right"
	CommandCenter     = "center"
	CommandHalt       = "halt"
	CommandDisconnect = "disconnect"
)

// Request is one newline-delimited JSON command sent to the owner process.
// Value is a speed percentage for forward/backward and an angle for
// left/right; nil selects the owner's configured default.
type Request struct {
	Command string `json:"command"`
	Value   *int   `json:"value,omitempty"`
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Session string `json:"session,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Validate checks the command name and that only drive commands carry a
// non-negative value.
func (r Request) Validate() error {
	switch r.Command {
	case CommandForward, CommandBackward, CommandLeft, CommandRight:
		if r.Value != nil && *r.Value < 0 {
			return fmt.Errorf("%s value must be non-negative, got %d", r.Command, *r.Value)
		}
	case CommandStatus, CommandStop, CommandCenter, CommandHalt, CommandDisconnect:
		if r.Value != nil {
			return fmt.Errorf("%s takes no value", r.Command)
		}
	case "":
		return errors.New("missing command")
	default:
		return fmt.Errorf("unknown command: %s", r.Command)
	}
	return nil
}

func failure(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}
