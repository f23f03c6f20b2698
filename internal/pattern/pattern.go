// Package pattern drives a hub through a scripted, repeating sequence of
// intents, for demos and soak runs without a front end.
package pattern

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/hubdrive/internal/fsm"
	"github.com/rbright/hubdrive/internal/protocol"
)

const (
	// DefaultSteerAngle is the turn the demo pattern makes each cycle.
	DefaultSteerAngle = 50

	readyPoll  = 20 * time.Millisecond
	drainLimit = time.Second
)

// ErrSessionEnded reports that the session went away before the pattern
// finished.
var ErrSessionEnded = errors.New("session ended during pattern")

// Step submits Command and holds it for Hold before the next step.
type Step struct {
	Command protocol.Command
	Hold    time.Duration
}

// Driver is the subset of the command worker a pattern needs.
type Driver interface {
	Submit(cmd protocol.Command) bool
	State() fsm.State
	Done() <-chan struct{}
	Pending() int
}

// Default is the demo loop: forward, pause, turn right, recenter, reverse,
// then a longer pause before repeating.
func Default(speedPercent int) []Step {
	return []Step{
		{Command: protocol.Forward(speedPercent), Hold: 2 * time.Second},
		{Command: protocol.Stop(), Hold: time.Second},
		{Command: protocol.Right(DefaultSteerAngle), Hold: time.Second},
		{Command: protocol.Center(), Hold: 500 * time.Millisecond},
		{Command: protocol.Backward(speedPercent), Hold: 2 * time.Second},
		{Command: protocol.Stop(), Hold: 3 * time.Second},
	}
}

// Options tunes Run.
type Options struct {
	// Cycles is how many times the steps repeat; zero repeats until ctx ends.
	Cycles int
	Logger *slog.Logger
}

// Run waits for the session to be ready, then submits steps in order. It
// always finishes with a halt (stop, then center) and waits for the queue to
// drain. Cancelling ctx ends the pattern cleanly with a nil error.
func Run(ctx context.Context, d Driver, steps []Step, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if len(steps) == 0 {
		return errors.New("pattern has no steps")
	}

	if err := awaitReady(ctx, d); err != nil {
		if errors.Is(err, ErrSessionEnded) {
			return err
		}
		return nil
	}
	logger.Info("pattern started", "steps", len(steps), "cycles", opts.Cycles)

	err := loop(ctx, d, steps, opts.Cycles, logger)
	if errors.Is(err, ErrSessionEnded) {
		return err
	}

	halt(d, logger)
	return nil
}

func loop(ctx context.Context, d Driver, steps []Step, cycles int, logger *slog.Logger) error {
	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for cycle := 1; cycles == 0 || cycle <= cycles; cycle++ {
		for _, step := range steps {
			if !d.Submit(step.Command) {
				return ErrSessionEnded
			}
			logger.Info("pattern step", "cycle", cycle, "command", step.Command.String(), "hold", step.Hold)

			timer.Reset(step.Hold)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.Done():
				return ErrSessionEnded
			case <-timer.C:
			}
		}
	}
	return nil
}

func awaitReady(ctx context.Context, d Driver) error {
	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()
	for d.State() != fsm.StateReady {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.Done():
			return ErrSessionEnded
		case <-ticker.C:
		}
	}
	return nil
}

func halt(d Driver, logger *slog.Logger) {
	if !d.Submit(protocol.Stop()) || !d.Submit(protocol.Center()) {
		return
	}
	logger.Info("pattern halted")

	deadline := time.Now().Add(drainLimit)
	for d.Pending() > 0 && time.Now().Before(deadline) {
		select {
		case <-d.Done():
			return
		case <-time.After(readyPoll):
		}
	}
}
