package ble

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/hubdrive/internal/transport"
)

func TestParseCapabilities(t *testing.T) {
	raw := make([]byte, 10)
	binary.LittleEndian.PutUint16(raw[0:2], 158)
	binary.LittleEndian.PutUint32(raw[2:6], 1)
	binary.LittleEndian.PutUint32(raw[6:10], 32768)

	caps, err := ParseCapabilities(raw)
	require.NoError(t, err)
	require.Equal(t, Capabilities{MaxWriteSize: 158, Flags: 1, MaxProgramSize: 32768}, caps)

	_, err = ParseCapabilities(raw[:6])
	require.Error(t, err)
}

func TestStdinPacketsChunkToMaxWrite(t *testing.T) {
	packets := stdinPackets([]byte("F1000;"), 4)
	require.Equal(t, [][]byte{
		{cmdWriteStdin, 'F', '1', '0'},
		{cmdWriteStdin, '0', '0', ';'},
	}, packets)

	single := stdinPackets([]byte("S;"), 20)
	require.Equal(t, [][]byte{{cmdWriteStdin, 'S', ';'}}, single)

	require.Empty(t, stdinPackets(nil, 20))
}

func TestProgramPacketsSequence(t *testing.T) {
	program := []byte("0123456789")
	packets := programPackets(program, 11)

	require.Len(t, packets, 4)
	require.Equal(t, []byte{cmdWriteUserProgramMeta, 0, 0, 0, 0}, packets[0])

	require.Equal(t, cmdWriteUserRAM, packets[1][0])
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(packets[1][1:5]))
	require.Equal(t, []byte("012345"), packets[1][5:])

	require.Equal(t, uint32(6), binary.LittleEndian.Uint32(packets[2][1:5]))
	require.Equal(t, []byte("6789"), packets[2][5:])

	require.Equal(t, []byte{cmdWriteUserProgramMeta, 10, 0, 0, 0}, packets[3])
}

func TestSessionSendWrapsStdin(t *testing.T) {
	char := &fakeChar{}
	s := newSession(discardLogger(), char, Capabilities{MaxWriteSize: 20}, "", nil)

	require.NoError(t, s.Send(context.Background(), []byte("R45;")))
	require.Equal(t, [][]byte{{cmdWriteStdin, 'R', '4', '5', ';'}}, char.packets())

	char.err = errors.New("gatt busy")
	err := s.Send(context.Background(), []byte("S;"))
	require.ErrorIs(t, err, transport.ErrWrite)
}

func TestSessionEventsDeliverStdoutAndTrackStatus(t *testing.T) {
	s := newSession(discardLogger(), &fakeChar{}, Capabilities{}, "", nil)

	s.onEvent([]byte{eventWriteStdout, 'R'})
	s.onEvent(nil)
	status := make([]byte, 5)
	status[0] = eventStatusReport
	binary.LittleEndian.PutUint32(status[1:], StatusUserProgramRunning)
	s.onEvent(status)
	s.onEvent([]byte{eventWriteStdout, 'Y'})

	require.True(t, s.ProgramRunning())

	var got []byte
	s.OnNotification(func(b []byte) { got = append(got, b...) })
	require.Equal(t, "RY", string(got))
}

func TestStartProgramDownloadsThenStarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.mpy")
	require.NoError(t, os.WriteFile(path, []byte("abcdefgh"), 0o600))

	char := &fakeChar{}
	s := newSession(discardLogger(), char, Capabilities{MaxWriteSize: 9}, path, nil)
	require.NoError(t, s.StartProgram(context.Background()))

	packets := char.packets()
	require.Equal(t, cmdWriteUserProgramMeta, packets[0][0])
	require.Equal(t, cmdWriteUserRAM, packets[1][0])
	require.Equal(t, cmdWriteUserProgramMeta, packets[len(packets)-2][0])
	require.Equal(t, []byte{cmdStartUserProgram}, packets[len(packets)-1])
}

func TestStartProgramWithoutDownload(t *testing.T) {
	char := &fakeChar{}
	s := newSession(discardLogger(), char, Capabilities{}, "", nil)
	require.NoError(t, s.StartProgram(context.Background()))
	require.Equal(t, [][]byte{{cmdStartUserProgram}}, char.packets())

	missing := newSession(discardLogger(), char, Capabilities{}, "/nonexistent/program.mpy", nil)
	require.ErrorIs(t, missing.StartProgram(context.Background()), transport.ErrConnect)
}

func TestDisconnectStopsRunningProgramOnce(t *testing.T) {
	char := &fakeChar{}
	disconnects := 0
	s := newSession(discardLogger(), char, Capabilities{}, "", func() error {
		disconnects++
		return nil
	})
	status := make([]byte, 5)
	binary.LittleEndian.PutUint32(status[1:], StatusUserProgramRunning)
	s.onEvent(status)

	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Disconnect())
	require.Equal(t, 1, disconnects)
	require.Equal(t, [][]byte{{cmdStopUserProgram}}, char.packets())

	err := s.Send(context.Background(), []byte("S;"))
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestSendAbandonsStuckWriteWhenContextEnds(t *testing.T) {
	char := &fakeChar{block: make(chan struct{})}
	s := newSession(discardLogger(), char, Capabilities{MaxWriteSize: 20}, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.Send(ctx, []byte("F500;"))
	require.ErrorIs(t, err, transport.ErrWrite)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)

	close(char.block)
	require.NoError(t, s.Send(context.Background(), []byte("S;")))
	require.Equal(t, [][]byte{
		{cmdWriteStdin, 'F', '5', '0', '0', ';'},
		{cmdWriteStdin, 'S', ';'},
	}, char.packets())
}

type fakeChar struct {
	mu      sync.Mutex
	written [][]byte
	err     error
	block   chan struct{}
}

func (c *fakeChar) Write(p []byte) (int, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.written = append(c.written, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeChar) packets() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
