package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

const maxRequestBytes = 64 * 1024

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve accepts unix-socket clients until context cancellation or listener
// close. The context passed to the handler is also cancelled when the client
// hangs up, so long-running commands can give up early.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
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

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			serveConn(ctx, c, handler)
		}(conn)
	}
}

func serveConn(ctx context.Context, c net.Conn, handler Handler) {
	reader := bufio.NewReader(io.LimitReader(c, maxRequestBytes))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		_ = json.NewEncoder(c).Encode(Failure(fmt.Errorf("read request: %w", err)))
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		_ = json.NewEncoder(c).Encode(Failure(fmt.Errorf("decode request: %w", err)))
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Clients send nothing after the request line; any read result
		// means the peer is gone or the connection was closed.
		var buf [1]byte
		_, _ = c.Read(buf[:])
		cancel()
	}()

	resp := handler.Handle(reqCtx, req)
	_ = json.NewEncoder(c).Encode(resp)
}
