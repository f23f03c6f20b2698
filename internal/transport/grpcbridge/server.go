package grpcbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rbright/hubdrive/internal/transport"
	"github.com/rbright/hubdrive/internal/transport/loopback"
)

const stopGrace = 2 * time.Second

// Server exposes one named hub. A single client may be attached at a time.
type Server struct {
	logger  *slog.Logger
	name    string
	program Program

	mu       sync.Mutex
	attached bool
}

func NewServer(logger *slog.Logger, name string, program Program) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Server{logger: logger, name: name, program: program}
}

// Register adds the bridge service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Serve runs a gRPC server on lis until ctx ends.
func (s *Server) Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()

	select {
	case <-ctx.Done():
		stopped := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(stopped)
		}()
		// An attached client keeps its stream open until it disconnects.
		select {
		case <-stopped:
		case <-time.After(stopGrace):
			gs.Stop()
			<-stopped
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve bridge: %w", err)
	}
}

func (s *Server) attach(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	requested := md.Get(HubNameKey)
	if len(requested) == 0 {
		return status.Error(codes.InvalidArgument, "missing "+HubNameKey)
	}
	sel, err := transport.ParseSelector(requested[0])
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if !sel.Match(s.name) {
		return status.Errorf(codes.NotFound, "hub %q does not match %q", s.name, sel)
	}

	if !s.claim() {
		return status.Errorf(codes.Unavailable, "hub %q already has a client", s.name)
	}
	defer s.release()

	if err := stream.SendHeader(metadata.Pairs(HubNameKey, s.name)); err != nil {
		return err
	}
	s.logger.Info("bridge client attached", "hub", s.name)

	// The program outlives the stream context so frames sent just before
	// the client closed are still applied.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe := loopback.NewPipe()
	out := &streamWriter{stream: stream}
	programDone := make(chan struct{})
	go func() {
		defer close(programDone)
		if s.program == nil {
			<-ctx.Done()
			return
		}
		if err := s.program(ctx, pipe, out); err != nil {
			s.logger.Warn("hub program exited", "hub", s.name, "error", err)
		}
	}()

	defer func() {
		pipe.Close()
		if s.program == nil {
			cancel()
			<-programDone
		} else {
			loopback.AwaitDrain(programDone, cancel)
		}
		s.logger.Info("bridge client detached", "hub", s.name)
	}()

	for {
		var msg wrapperspb.BytesValue
		if err := stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		if _, err := pipe.Write(msg.GetValue()); err != nil {
			return status.Error(codes.Aborted, err.Error())
		}
	}
}

func (s *Server) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return false
	}
	s.attached = true
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
}

// streamWriter forwards hub stdout to the client.
type streamWriter struct {
	mu     sync.Mutex
	stream grpc.ServerStream
}

func (w *streamWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.stream.SendMsg(wrapperspb.Bytes(append([]byte(nil), p...))); err != nil {
		return 0, err
	}
	return len(p), nil
}
