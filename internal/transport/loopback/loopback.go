// Package loopback connects to hub programs running in-process.
package loopback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rbright/hubdrive/internal/interpreter"
	"github.com/rbright/hubdrive/internal/transport"
)

// Program is a hub program: it reads stdin from in and writes stdout to out
// until ctx ends.
type Program func(ctx context.Context, in interpreter.Input, out io.Writer) error

// Endpoint is one named in-process hub.
type Endpoint struct {
	Name    string
	Program Program

	// ConnectDelay holds Connect before the link comes up.
	ConnectDelay time.Duration
	// ConnectErr fails Connect after ConnectDelay.
	ConnectErr error
	// WriteErr, when set, is consulted before each frame is delivered.
	WriteErr func(frame []byte) error
}

// Network is a registry of endpoints that implements transport.Transport.
type Network struct {
	logger *slog.Logger

	mu        sync.Mutex
	endpoints map[string]*Endpoint
	sent      map[string][]string
	connects  map[string]int
}

var _ transport.Transport = (*Network)(nil)

func NewNetwork(logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Network{
		logger:    logger,
		endpoints: make(map[string]*Endpoint),
		sent:      make(map[string][]string),
		connects:  make(map[string]int),
	}
}

// Add registers or replaces an endpoint.
func (n *Network) Add(ep Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := ep
	n.endpoints[ep.Name] = &cp
}

// Remove unregisters an endpoint; established sessions keep running.
func (n *Network) Remove(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, name)
}

// Names lists registered endpoints in sorted order.
func (n *Network) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.endpoints))
	for name := range n.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sent returns every frame delivered to name, across sessions, in order.
func (n *Network) Sent(name string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent[name]...)
}

// Connects reports how many sessions were established to name.
func (n *Network) Connects(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connects[name]
}

// Connect opens a session to the first endpoint, by name order, matching sel.
func (n *Network) Connect(ctx context.Context, sel transport.Selector) (transport.Session, error) {
	ep, ok := n.lookup(sel)
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint matches %q", transport.ErrNotFound, sel)
	}

	if ep.ConnectDelay > 0 {
		timer := time.NewTimer(ep.ConnectDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ep.ConnectErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrConnect, ep.Name, ep.ConnectErr)
	}

	n.mu.Lock()
	n.connects[ep.Name]++
	n.mu.Unlock()

	s := newSession(n, *ep)
	n.logger.Debug("loopback session opened", "endpoint", ep.Name)
	return s, nil
}

func (n *Network) lookup(sel transport.Selector) (*Endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	names := make([]string, 0, len(n.endpoints))
	for name := range n.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if sel.Match(name) {
			return n.endpoints[name], true
		}
	}
	return nil, false
}

func (n *Network) record(name string, frame []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[name] = append(n.sent[name], string(frame))
}

type session struct {
	network  *Network
	endpoint Endpoint
	pipe     *Pipe
	notifier transport.Notifier

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newSession(n *Network, ep Endpoint) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		network:  n,
		endpoint: ep,
		pipe:     NewPipe(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if ep.Program == nil {
			<-ctx.Done()
			return
		}
		if err := ep.Program(ctx, s.pipe, notifyWriter{s}); err != nil {
			n.logger.Warn("loopback program exited", "endpoint", ep.Name, "error", err)
		}
	}()
	return s
}

func (s *session) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: %w", transport.ErrWrite, transport.ErrClosed)
	}

	if s.endpoint.WriteErr != nil {
		if err := s.endpoint.WriteErr(frame); err != nil {
			return fmt.Errorf("%w: %w", transport.ErrWrite, err)
		}
	}

	s.network.record(s.endpoint.Name, frame)
	if _, err := s.pipe.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrWrite, err)
	}
	return nil
}

func (s *session) OnNotification(handler func([]byte)) {
	s.notifier.Set(handler)
}

func (s *session) Disconnect() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		// The program applies frames still buffered, such as the final
		// stop, before it is cancelled.
		s.pipe.Close()
		if s.endpoint.Program == nil {
			s.cancel()
			<-s.done
		} else {
			AwaitDrain(s.done, s.cancel)
		}
		s.network.logger.Debug("loopback session closed", "endpoint", s.endpoint.Name)
	})
	return nil
}

type notifyWriter struct {
	s *session
}

func (w notifyWriter) Write(p []byte) (int, error) {
	w.s.notifier.Deliver(p)
	return len(p), nil
}
