package memcache

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"github.com/pior/mctext/text"
)

// aLongTimeAgo is a deadline in the past, used to interrupt blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Connection wraps a net.Conn with buffered I/O for the text protocol.
// A Connection is used by one request at a time.
type Connection struct {
	net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// NewConnection creates a new Connection wrapping the given net.Conn.
func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		Conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// Execute writes the request and reads the complete raw reply.
//
// The context deadline bounds the write and the read. Cancelling the context
// interrupts blocked I/O, and a context that ends while the reply completes
// still fails the call. Any returned error leaves the stream or the deadline
// in an unknown state: the connection must be discarded.
func (c *Connection) Execute(ctx context.Context, req *text.Request) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.Conn.SetDeadline(deadline); err != nil {
		return nil, &text.ConnectionError{Op: "deadline", Err: err}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.Conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	if err := c.send(req); err != nil {
		return nil, contextError(ctx, "write", err)
	}

	raw, err := text.ReadResponse(c.reader, req)
	if err != nil {
		return nil, contextError(ctx, "read", err)
	}

	// The interrupt already started and may still hit the next request
	if !stop() {
		return nil, contextError(ctx, "read", ctx.Err())
	}
	return raw, nil
}

func (c *Connection) send(req *text.Request) error {
	if err := text.WriteRequest(c.writer, req); err != nil {
		return text.WrapIOError("write", err)
	}
	if err := c.writer.Flush(); err != nil {
		return text.WrapIOError("write", err)
	}
	return nil
}

// contextError reports a cancelled context instead of the I/O error it caused.
func contextError(ctx context.Context, op string, err error) error {
	ctxErr := ctx.Err()
	switch {
	case ctxErr == nil:
		return err
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return &text.TimeoutError{Op: op, Err: ctxErr}
	default:
		return &text.ConnectionError{Op: op, Err: ctxErr}
	}
}
