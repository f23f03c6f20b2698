// Package transport defines the link between the command worker and a hub.
package transport

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound reports that discovery finished without a matching endpoint.
	ErrNotFound = errors.New("hub not found")
	// ErrConnect reports a link-level connect failure.
	ErrConnect = errors.New("hub connect failed")
	// ErrWrite reports that one frame could not be transmitted.
	ErrWrite = errors.New("hub write failed")
	// ErrClosed reports use of a session after Disconnect.
	ErrClosed = errors.New("session closed")
)

// Transport opens sessions to hubs matching a selector.
type Transport interface {
	Connect(ctx context.Context, sel Selector) (Session, error)
}

// Session is one established link. Only the worker goroutine calls it.
type Session interface {
	Send(ctx context.Context, frame []byte) error
	// OnNotification registers the inbound payload handler. Payloads that
	// arrived before registration are delivered immediately, in order.
	OnNotification(func([]byte))
	// Disconnect is idempotent; its error is informational only.
	Disconnect() error
}

// ProgramStarter is implemented by sessions that install or launch the hub
// program as part of session establishment.
type ProgramStarter interface {
	StartProgram(ctx context.Context) error
}

// Notifier buffers inbound payloads until a handler is registered.
type Notifier struct {
	mu      sync.Mutex
	handler func([]byte)
	pending [][]byte
}

// Set installs handler and flushes buffered payloads to it.
func (n *Notifier) Set(handler func([]byte)) {
	n.mu.Lock()
	n.handler = handler
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()

	if handler == nil {
		return
	}
	for _, payload := range pending {
		handler(payload)
	}
}

// Deliver hands payload to the handler, or buffers a copy of it.
func (n *Notifier) Deliver(payload []byte) {
	if len(payload) == 0 {
		return
	}
	cp := append([]byte(nil), payload...)

	n.mu.Lock()
	handler := n.handler
	if handler == nil {
		n.pending = append(n.pending, cp)
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()
	handler(cp)
}

// WriteGate runs blocking link writes one at a time. A caller whose context
// ends stops waiting; the abandoned write still holds the gate until the
// link returns, so later writes never overtake it.
type WriteGate struct {
	once sync.Once
	slot chan struct{}
}

func (g *WriteGate) init() {
	g.once.Do(func() { g.slot = make(chan struct{}, 1) })
}

// Do runs write once the gate is free and returns its result, or ctx.Err()
// if ctx ends first.
func (g *WriteGate) Do(ctx context.Context, write func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	result := make(chan error, 1)
	go func() {
		defer g.Release()
		result <- write()
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire holds the gate for a caller that writes directly.
func (g *WriteGate) Acquire(ctx context.Context) error {
	g.init()
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *WriteGate) Release() {
	g.init()
	<-g.slot
}
