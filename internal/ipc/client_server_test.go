package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, handler Handler) (string, func()) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), SocketName)
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, handler)
	}()

	return socketPath, func() {
		cancel()
		require.NoError(t, <-serveDone)
	}
}

func TestSendRoundTrip(t *testing.T) {
	received := make(chan Request, 1)
	socketPath, stop := startServer(t, HandlerFunc(func(_ context.Context, req Request) Response {
		received <- req
		return Response{OK: true, State: "ready", Session: "abc", Message: "queued throttle(700)"}
	}))
	defer stop()

	pct := 70
	resp, err := Send(context.Background(), socketPath, Request{Command: CommandForward, Value: &pct}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "ready", resp.State)
	require.Equal(t, "abc", resp.Session)
	require.Equal(t, "queued throttle(700)", resp.Message)

	req := <-received
	require.Equal(t, CommandForward, req.Command)
	require.NotNil(t, req.Value)
	require.Equal(t, 70, *req.Value)
}

func TestSendFillsMissingErrorText(t *testing.T) {
	socketPath, stop := startServer(t, HandlerFunc(func(context.Context, Request) Response {
		return Response{OK: false}
	}))
	defer stop()

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandHalt}, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "halt failed", resp.Error)
}

func TestSendRejectsInvalidRequestWithoutDialing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), SocketName)

	_, err := Send(context.Background(), missing, Request{Command: "wheelie"}, 50*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid request")
	require.False(t, isSocketMissing(err))
}

func TestSendDecodeResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), SocketName)

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		_, _ = reader.ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), SocketName)

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeAnswersEveryRequestOnOneConnection(t *testing.T) {
	var handled atomic.Int32
	socketPath, stop := startServer(t, HandlerFunc(func(_ context.Context, req Request) Response {
		handled.Add(1)
		return Response{OK: true, Message: req.Command}
	}))
	defer stop()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"command":"forward","value":40}` + "\n\n" +
		"not-json\n" +
		`{"command":"left","value":-5}` + "\n" +
		`{"command":"stop"}` + "\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	var responses []Response
	for range 4 {
		line, readErr := reader.ReadBytes('\n')
		require.NoError(t, readErr)
		var resp Response
		require.NoError(t, json.Unmarshal(line, &resp))
		responses = append(responses, resp)
	}

	require.True(t, responses[0].OK)
	require.Equal(t, CommandForward, responses[0].Message)
	require.False(t, responses[1].OK)
	require.Contains(t, responses[1].Error, "decode request")
	require.False(t, responses[2].OK)
	require.Contains(t, responses[2].Error, "non-negative")
	require.True(t, responses[3].OK)
	require.Equal(t, int32(2), handled.Load())
}

func TestServeClosesIdleClientsOnShutdown(t *testing.T) {
	socketPath, stop := startServer(t, HandlerFunc(func(context.Context, Request) Response {
		return Response{OK: true}
	}))

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return while a client was connected")
	}
}

func TestProbe(t *testing.T) {
	socketPath, stop := startServer(t, HandlerFunc(func(_ context.Context, req Request) Response {
		if req.Command == CommandStatus {
			return Response{OK: true, State: "disconnected"}
		}
		return Response{OK: false, Error: "bad"}
	}))

	alive, probeErr := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, probeErr)
	require.True(t, alive)

	stop()

	alive, probeErr = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, probeErr)
	require.False(t, alive)
}

func TestRequestValidate(t *testing.T) {
	pct := 30
	negative := -1
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{name: "status", req: Request{Command: CommandStatus}},
		{name: "forward default", req: Request{Command: CommandForward}},
		{name: "right angle", req: Request{Command: CommandRight, Value: &pct}},
		{name: "negative", req: Request{Command: CommandBackward, Value: &negative}, wantErr: "non-negative"},
		{name: "stop with value", req: Request{Command: CommandStop, Value: &pct}, wantErr: "takes no value"},
		{name: "missing", req: Request{}, wantErr: "missing command"},
		{name: "unknown", req: Request{Command: "toggle"}, wantErr: "unknown command: toggle"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
