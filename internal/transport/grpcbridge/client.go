package grpcbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rbright/hubdrive/internal/transport"
)

const (
	DefaultDialTimeout = 3 * time.Second
	// closeGrace bounds the wait for the server to finish the stream after
	// the client half-closes it.
	closeGrace = time.Second
)

// Client dials a bridge server. It implements transport.Transport.
type Client struct {
	logger      *slog.Logger
	address     string
	dialTimeout time.Duration
	dialOpts    []grpc.DialOption
}

var _ transport.Transport = (*Client)(nil)

func NewClient(logger *slog.Logger, address string, dialTimeout time.Duration, opts ...grpc.DialOption) *Client {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	return &Client{logger: logger, address: strings.TrimSpace(address), dialTimeout: dialTimeout, dialOpts: opts}
}

// Connect dials the bridge and attaches to the hub matching sel.
func (c *Client) Connect(ctx context.Context, sel transport.Selector) (transport.Session, error) {
	if c.address == "" {
		return nil, fmt.Errorf("%w: bridge address is empty", transport.ErrConnect)
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.dialOpts...)
	conn, err := grpc.NewClient(c.address, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: dial bridge %q: %w", transport.ErrConnect, c.address, err)
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, c.dialTimeout)
	defer cancelReady()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: wait for bridge readiness: %w", transport.ErrConnect, err)
	}

	// The stream outlives ctx; Disconnect ends it.
	streamCtx, cancelStream := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, HubNameKey, sel.String())
	stream, err := conn.NewStream(streamCtx, &serviceDesc.Streams[0], AttachMethod)
	if err != nil {
		cancelStream()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open attach stream: %w", transport.ErrConnect, err)
	}

	hubName, err := awaitAttach(ctx, stream)
	if err != nil {
		cancelStream()
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mapAttachError(sel, err)
	}

	s := &clientSession{
		logger:   c.logger,
		conn:     conn,
		stream:   stream,
		cancel:   cancelStream,
		recvDone: make(chan struct{}),
	}
	go s.recvLoop()
	c.logger.Info("bridge attached", "address", c.address, "hub", hubName)
	return s, nil
}

// awaitAttach waits for the server's header, which it sends only after
// accepting the attach.
func awaitAttach(ctx context.Context, stream grpc.ClientStream) (string, error) {
	type result struct {
		name string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		md, err := stream.Header()
		if err != nil {
			done <- result{err: err}
			return
		}
		if names := md.Get(HubNameKey); len(names) > 0 {
			done <- result{name: names[0]}
			return
		}
		// Terminated without headers; RecvMsg surfaces the status.
		var msg wrapperspb.BytesValue
		err = stream.RecvMsg(&msg)
		if err == nil || errors.Is(err, io.EOF) {
			err = errors.New("stream closed before attach")
		}
		done <- result{err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.name, r.err
	}
}

func mapAttachError(sel transport.Selector, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s: %s", transport.ErrNotFound, sel, status.Convert(err).Message())
	default:
		return fmt.Errorf("%w: attach %s: %w", transport.ErrConnect, sel, err)
	}
}

type clientSession struct {
	logger   *slog.Logger
	conn     *grpc.ClientConn
	stream   grpc.ClientStream
	cancel   context.CancelFunc
	notifier transport.Notifier
	gate     transport.WriteGate
	recvDone chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *clientSession) recvLoop() {
	defer close(s.recvDone)
	for {
		var msg wrapperspb.BytesValue
		if err := s.stream.RecvMsg(&msg); err != nil {
			if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
				s.logger.Warn("bridge receive failed", "error", err)
			}
			return
		}
		s.notifier.Deliver(msg.GetValue())
	}
}

func (s *clientSession) Send(ctx context.Context, frame []byte) error {
	if s.isClosed() {
		return fmt.Errorf("%w: %w", transport.ErrWrite, transport.ErrClosed)
	}
	err := s.gate.Do(ctx, func() error {
		if s.isClosed() {
			return transport.ErrClosed
		}
		return s.stream.SendMsg(wrapperspb.Bytes(frame))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", transport.ErrWrite, err)
	}
	return nil
}

func (s *clientSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *clientSession) OnNotification(handler func([]byte)) {
	s.notifier.Set(handler)
}

// Disconnect half-closes the stream and waits, up to closeGrace, for the
// server to apply what was sent and end the stream before cancelling it.
func (s *clientSession) Disconnect() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		graceCtx, cancelGrace := context.WithTimeout(context.Background(), closeGrace)
		defer cancelGrace()
		if s.gate.Acquire(graceCtx) == nil {
			_ = s.stream.CloseSend()
			s.gate.Release()
			select {
			case <-s.recvDone:
			case <-graceCtx.Done():
			}
		}

		s.cancel()
		<-s.recvDone
		err = s.conn.Close()
	})
	return err
}

// Probe reports whether a bridge at address reaches connectivity Ready
// within timeout.
func Probe(ctx context.Context, address string, timeout time.Duration, opts ...grpc.DialOption) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("bridge address is empty")
	}
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return fmt.Errorf("dial bridge %q: %w", address, err)
	}
	defer conn.Close()

	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	return waitForReady(readyCtx, conn)
}
