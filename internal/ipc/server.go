package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"

	werrors "github.com/rbright/wakeproof/internal/errors"
)

// requestReadTimeout bounds how long a client may take to send its request line.
const requestReadTimeout = 2 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve accepts unix-socket clients until context cancellation or listener close.
// Each connection carries exactly one request line and one response line.
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
	_ = c.SetReadDeadline(time.Now().Add(requestReadTimeout))

	line, err := bufio.NewReader(c).ReadBytes('\n')
	if err != nil {
		writeResponse(c, ErrorResponse(werrors.Wrap(werrors.EUsage, "read request", err)))
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		writeResponse(c, ErrorResponse(werrors.Wrap(werrors.EUsage, "decode request", err)))
		return
	}

	// Session commands such as stop can block on recognition; only the read is bounded.
	_ = c.SetReadDeadline(time.Time{})
	writeResponse(c, handler.Handle(ctx, req))
}

func writeResponse(c net.Conn, resp Response) {
	_ = json.NewEncoder(c).Encode(resp)
}
