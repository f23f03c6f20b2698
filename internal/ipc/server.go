package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// IdleTimeout closes a client connection that sends nothing for this long.
const IdleTimeout = 30 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve accepts unix-socket clients until ctx ends or the listener closes.
// A client may send any number of requests on one connection; each gets one
// response line, in order. Malformed or invalid requests are answered with
// an error and never reach handler.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	conns := make(map[net.Conn]struct{})

	go func() {
		<-ctx.Done()
		_ = listener.Close()
		mu.Lock()
		for c := range conns {
			_ = c.Close()
		}
		mu.Unlock()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		mu.Lock()
		if ctx.Err() != nil {
			mu.Unlock()
			_ = conn.Close()
			continue
		}
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, c)
				mu.Unlock()
				_ = c.Close()
			}()
			serveConn(ctx, c, handler)
		}(conn)
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	reader := bufio.NewReader(conn)
	enc := json.NewEncoder(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				if len(line) > 0 {
					_ = enc.Encode(failure("read request: %v", err))
				}
				return
			}
			continue
		}

		var resp Response
		var req Request
		switch {
		case err != nil:
			resp = failure("read request: %v", err)
		default:
			if decodeErr := json.Unmarshal(line, &req); decodeErr != nil {
				resp = failure("decode request: %v", decodeErr)
			} else if validErr := req.Validate(); validErr != nil {
				resp = failure("invalid request: %v", validErr)
			} else {
				resp = handler.Handle(ctx, req)
			}
		}

		if encErr := enc.Encode(resp); encErr != nil || err != nil {
			return
		}
	}
}
