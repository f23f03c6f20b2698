package ble

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rbright/hubdrive/internal/transport"
)

// characteristic is the subset of a GATT characteristic a session needs.
type characteristic interface {
	Write(p []byte) (int, error)
}

const stopProgramTimeout = time.Second

type session struct {
	logger      *slog.Logger
	char        characteristic
	maxWrite    int
	programPath string
	disconnect  func() error

	notifier transport.Notifier
	gate     transport.WriteGate

	mu     sync.Mutex
	closed bool
	status uint32
	once   sync.Once
}

var (
	_ transport.Session        = (*session)(nil)
	_ transport.ProgramStarter = (*session)(nil)
)

func newSession(logger *slog.Logger, char characteristic, caps Capabilities, programPath string, disconnect func() error) *session {
	maxWrite := caps.MaxWriteSize
	if maxWrite < 6 {
		maxWrite = DefaultMaxWriteSize
	}
	return &session{
		logger:      logger,
		char:        char,
		maxWrite:    maxWrite,
		programPath: programPath,
		disconnect:  disconnect,
	}
}

func (s *session) Send(ctx context.Context, frame []byte) error {
	for _, packet := range stdinPackets(frame, s.maxWrite) {
		if err := s.write(ctx, packet); err != nil {
			return fmt.Errorf("%w: %w", transport.ErrWrite, err)
		}
	}
	return nil
}

func (s *session) OnNotification(handler func([]byte)) {
	s.notifier.Set(handler)
}

// StartProgram downloads the configured program, if any, and starts the
// user program slot.
func (s *session) StartProgram(ctx context.Context) error {
	if s.programPath != "" {
		program, err := os.ReadFile(s.programPath)
		if err != nil {
			return fmt.Errorf("%w: read hub program: %w", transport.ErrConnect, err)
		}
		for _, packet := range programPackets(program, s.maxWrite) {
			if err := s.write(ctx, packet); err != nil {
				return fmt.Errorf("%w: download hub program: %w", transport.ErrConnect, err)
			}
		}
		s.logger.Info("hub program downloaded", "path", s.programPath, "bytes", len(program))
	}

	if err := s.write(ctx, []byte{cmdStartUserProgram}); err != nil {
		return fmt.Errorf("%w: start hub program: %w", transport.ErrConnect, err)
	}
	return nil
}

func (s *session) Disconnect() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		stopCtx, cancel := context.WithTimeout(context.Background(), stopProgramTimeout)
		defer cancel()
		if s.ProgramRunning() {
			if stopErr := s.writeUnlocked(stopCtx, []byte{cmdStopUserProgram}); stopErr != nil {
				s.logger.Debug("stop hub program failed", "error", stopErr)
			}
		}
		if s.disconnect != nil {
			err = s.disconnect()
		}
	})
	return err
}

// ProgramRunning reports the last status flag seen from the hub.
func (s *session) ProgramRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status&StatusUserProgramRunning != 0
}

// onEvent handles command/event characteristic notifications.
func (s *session) onEvent(buf []byte) {
	kind, payload, ok := parseEvent(buf)
	if !ok {
		return
	}
	switch kind {
	case eventWriteStdout:
		s.notifier.Deliver(payload)
	case eventStatusReport:
		flags, ok := parseStatus(payload)
		if !ok {
			return
		}
		s.mu.Lock()
		s.status = flags
		s.mu.Unlock()
		s.logger.Debug("hub status", "flags", flags)
	}
}

func (s *session) write(ctx context.Context, packet []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	return s.writeUnlocked(ctx, packet)
}

// writeUnlocked ignores the closed flag. A GATT write that outlives ctx is
// abandoned to finish in the background.
func (s *session) writeUnlocked(ctx context.Context, packet []byte) error {
	return s.gate.Do(ctx, func() error {
		_, err := s.char.Write(packet)
		return err
	})
}
