// Package worker owns the single transport session to a hub and serializes
// drive intents from any number of front ends onto it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/hubdrive/internal/fsm"
	"github.com/rbright/hubdrive/internal/protocol"
	"github.com/rbright/hubdrive/internal/transport"
)

// ErrReadyTimeout reports that the hub never sent its readiness marker.
var ErrReadyTimeout = fmt.Errorf("hub did not report ready: %w", transport.ErrConnect)

// ReadyMode selects how the worker decides the hub program is alive.
type ReadyMode string

const (
	ReadyHandshake ReadyMode = "handshake"
	ReadyDelay     ReadyMode = "delay"
)

const (
	DefaultReadyTimeout    = 5 * time.Second
	DefaultSettleDelay     = 2 * time.Second
	DefaultWriteTimeout    = 2 * time.Second
	DefaultTeardownTimeout = time.Second
)

// Options configures one Worker.
type Options struct {
	Selector        transport.Selector
	Ready           ReadyMode
	ReadyTimeout    time.Duration
	SettleDelay     time.Duration
	WriteTimeout    time.Duration
	TeardownTimeout time.Duration
	// Coalesce drops a pending command when a newer one of the same
	// category is submitted.
	Coalesce bool

	// SpeedPercent and SteerAngle are used by Handle when a request
	// carries no value.
	SpeedPercent int
	SteerAngle   int
}

// DefaultOptions returns handshake readiness with coalescing enabled.
func DefaultOptions() Options {
	return Options{
		Ready:           ReadyHandshake,
		ReadyTimeout:    DefaultReadyTimeout,
		SettleDelay:     DefaultSettleDelay,
		WriteTimeout:    DefaultWriteTimeout,
		TeardownTimeout: DefaultTeardownTimeout,
		Coalesce:        true,
		SpeedPercent:    50,
		SteerAngle:      protocol.DefaultSteerAngle,
	}
}

// Worker is an actor: one goroutine per session consumes the intent queue
// and is the only caller of the transport session.
type Worker struct {
	logger    *slog.Logger
	transport transport.Transport
	opts      Options
	observers []Observer
	queue     *queue

	mu        sync.Mutex
	running   bool
	accepting bool
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	sessionID string

	stateMu sync.RWMutex
	state   fsm.State
}

// New constructs an idle worker. Zero durations fall back to defaults.
func New(logger *slog.Logger, t transport.Transport, opts Options, observers ...Observer) *Worker {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	defaults := DefaultOptions()
	if opts.Ready == "" {
		opts.Ready = defaults.Ready
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaults.ReadyTimeout
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaults.SettleDelay
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = defaults.TeardownTimeout
	}
	if opts.SpeedPercent <= 0 {
		opts.SpeedPercent = defaults.SpeedPercent
	}
	if opts.SteerAngle == 0 {
		opts.SteerAngle = defaults.SteerAngle
	}

	done := make(chan struct{})
	close(done)

	live := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}

	return &Worker{
		logger:    logger,
		transport: t,
		opts:      opts,
		observers: live,
		queue:     newQueue(opts.Coalesce),
		done:      done,
		state:     fsm.StateDisconnected,
	}
}

// Start begins a session in the background. It is a no-op while a session
// is already running.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.accepting = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.err = nil
	w.sessionID = uuid.NewString()

	go w.run(sessionCtx, cancel, w.sessionID, w.done)
}

// Stop cancels the running session and blocks until teardown has finished.
// It is safe to call repeatedly and concurrently.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.accepting = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
}

// Submit enqueues cmd without blocking. It reports false when cmd is invalid
// or no session is running.
func (w *Worker) Submit(cmd protocol.Command) bool {
	if err := cmd.Validate(); err != nil {
		w.logger.Debug("command rejected", "command", cmd.String(), "error", err)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.accepting {
		w.logger.Debug("command dropped without session", "command", cmd.String())
		return false
	}
	if w.queue.push(cmd) {
		w.logger.Debug("pending command superseded", "command", cmd.String())
	}
	return true
}

// State returns the connection state snapshot.
func (w *Worker) State() fsm.State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// Done is closed when the current session has fully ended.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Err returns why the last session ended; nil after a clean stop.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// SessionID returns the ID of the current or most recent session.
func (w *Worker) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// Pending reports how many commands wait to be sent.
func (w *Worker) Pending() int {
	return w.queue.len()
}

func (w *Worker) run(ctx context.Context, cancel context.CancelFunc, id string, done chan struct{}) {
	defer close(done)
	logger := w.logger.With("session", id)

	err := w.session(ctx, logger)
	cancelled := ctx.Err() != nil
	cancel()
	if err != nil && cancelled {
		err = nil
	}

	w.mu.Lock()
	w.accepting = false
	dropped := w.queue.clear()
	w.running = false
	w.err = err
	w.cancel = nil
	w.mu.Unlock()

	if dropped > 0 {
		logger.Debug("pending commands discarded", "count", dropped)
	}
	if err != nil {
		logger.Error("session failed", "error", err)
		for _, o := range w.observers {
			o.SessionFailed(context.Background(), err)
		}
		return
	}
	logger.Info("session ended")
}

func (w *Worker) session(ctx context.Context, logger *slog.Logger) error {
	if err := w.transition(logger, fsm.EventConnect); err != nil {
		return err
	}

	logger.Info("connecting", "selector", w.opts.Selector.String())
	sess, err := w.transport.Connect(ctx, w.opts.Selector)
	if err != nil {
		_ = w.transition(logger, fsm.EventClose)
		_ = w.transition(logger, fsm.EventClosed)
		return fmt.Errorf("connect %s: %w", w.opts.Selector, err)
	}
	defer w.teardown(logger, sess)

	detector := protocol.NewReadyDetector()
	sess.OnNotification(func(payload []byte) {
		detector.Feed(payload)
		logger.Debug("hub output", "payload", string(payload))
	})

	if starter, ok := sess.(transport.ProgramStarter); ok {
		if err := starter.StartProgram(ctx); err != nil {
			return fmt.Errorf("start hub program: %w", err)
		}
	}

	if err := w.awaitReady(ctx, detector); err != nil {
		return err
	}
	if err := w.transition(logger, fsm.EventReady); err != nil {
		return err
	}
	logger.Info("hub ready")

	for {
		cmd, ok := w.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.queue.signal:
				continue
			}
		}
		w.send(ctx, logger, sess, cmd)
	}
}

func (w *Worker) awaitReady(ctx context.Context, detector *protocol.ReadyDetector) error {
	switch w.opts.Ready {
	case ReadyDelay:
		timer := time.NewTimer(w.opts.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	default:
		timer := time.NewTimer(w.opts.ReadyTimeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-detector.Ready():
			return nil
		case <-timer.C:
			return fmt.Errorf("%w after %s", ErrReadyTimeout, w.opts.ReadyTimeout)
		}
	}
}

func (w *Worker) send(ctx context.Context, logger *slog.Logger, sess transport.Session, cmd protocol.Command) {
	frame, err := protocol.Encode(cmd)
	if err != nil {
		w.dropped(logger, cmd, err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, w.opts.WriteTimeout)
	defer cancel()
	if err := sess.Send(writeCtx, frame); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.dropped(logger, cmd, err)
		return
	}
	logger.Debug("frame sent", "frame", string(frame))
}

func (w *Worker) dropped(logger *slog.Logger, cmd protocol.Command, err error) {
	logger.Warn("frame dropped", "command", cmd.String(), "error", err)
	for _, o := range w.observers {
		o.FrameDropped(context.Background(), cmd, err)
	}
}

// teardown leaves the vehicle centred and stopped, then disconnects. Stop is
// always the final frame.
func (w *Worker) teardown(logger *slog.Logger, sess transport.Session) {
	_ = w.transition(logger, fsm.EventClose)

	ctx, cancel := context.WithTimeout(context.Background(), w.opts.TeardownTimeout)
	defer cancel()
	for _, cmd := range []protocol.Command{protocol.Center(), protocol.Stop()} {
		frame, _ := protocol.Encode(cmd)
		if err := sess.Send(ctx, frame); err != nil {
			logger.Debug("teardown frame not sent", "frame", string(frame), "error", err)
		}
	}

	if err := sess.Disconnect(); err != nil && !errors.Is(err, transport.ErrClosed) {
		logger.Debug("disconnect failed", "error", err)
	}
	_ = w.transition(logger, fsm.EventClosed)
}

func (w *Worker) transition(logger *slog.Logger, event fsm.Event) error {
	w.stateMu.Lock()
	next, err := fsm.Transition(w.state, event)
	if err != nil {
		w.stateMu.Unlock()
		return err
	}
	w.state = next
	w.stateMu.Unlock()

	logger.Debug("state changed", "state", next, "event", event)
	for _, o := range w.observers {
		o.StateChanged(context.Background(), next)
	}
	return nil
}
