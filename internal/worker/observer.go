package worker

import (
	"context"

	"github.com/rbright/hubdrive/internal/fsm"
	"github.com/rbright/hubdrive/internal/protocol"
)

// Observer receives worker events synchronously on the worker goroutine.
// Implementations must return quickly.
type Observer interface {
	StateChanged(ctx context.Context, state fsm.State)
	SessionFailed(ctx context.Context, err error)
	FrameDropped(ctx context.Context, cmd protocol.Command, err error)
}

// NopObserver can be embedded to implement only the callbacks of interest.
type NopObserver struct{}

func (NopObserver) StateChanged(context.Context, fsm.State)               {}
func (NopObserver) SessionFailed(context.Context, error)                  {}
func (NopObserver) FrameDropped(context.Context, protocol.Command, error) {}
