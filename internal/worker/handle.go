package worker

import (
	"context"
	"fmt"

	"github.com/rbright/hubdrive/internal/ipc"
	"github.com/rbright/hubdrive/internal/protocol"
)

// Handle serves IPC commands for the owner process.
func (w *Worker) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return w.respond(true, "status", "")
	case ipc.CommandForward:
		return w.submit(req.Command, protocol.Forward(w.value(req, w.opts.SpeedPercent)))
	case ipc.CommandBackward:
		return w.submit(req.Command, protocol.Backward(w.value(req, w.opts.SpeedPercent)))
	case ipc.CommandStop:
		return w.submit(req.Command, protocol.Stop())
	case ipc.CommandLeft:
		return w.submit(req.Command, protocol.Left(w.value(req, w.opts.SteerAngle)))
	case ipc.CommandRight:
		return w.submit(req.Command, protocol.Right(w.value(req, w.opts.SteerAngle)))
	case ipc.CommandCenter:
		return w.submit(req.Command, protocol.Center())
	case ipc.CommandHalt:
		if !w.Submit(protocol.Stop()) || !w.Submit(protocol.Center()) {
			return w.respond(false, "", "halt rejected: no active session")
		}
		return w.respond(true, "halt queued", "")
	case ipc.CommandDisconnect:
		if !w.State().Active() {
			return w.respond(false, "", "no active session")
		}
		go w.Stop()
		return w.respond(true, "disconnect requested", "")
	default:
		return w.respond(false, "", fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func (w *Worker) submit(name string, cmd protocol.Command) ipc.Response {
	if err := cmd.Validate(); err != nil {
		return w.respond(false, "", fmt.Sprintf("%s: %v", name, err))
	}
	if !w.Submit(cmd) {
		return w.respond(false, "", fmt.Sprintf("%s rejected: no active session", name))
	}
	return w.respond(true, fmt.Sprintf("queued %s", cmd), "")
}

func (w *Worker) value(req ipc.Request, fallback int) int {
	if req.Value == nil {
		return fallback
	}
	return *req.Value
}

func (w *Worker) respond(ok bool, message string, errText string) ipc.Response {
	return ipc.Response{
		OK:      ok,
		State:   string(w.State()),
		Session: w.SessionID(),
		Message: message,
		Error:   errText,
	}
}
