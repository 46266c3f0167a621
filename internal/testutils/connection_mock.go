package testutils

import (
	"bytes"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// ConnectionMock is a net.Conn replaying canned server replies.
//
// Once the replies are consumed, Read returns io.EOF, or blocks until the
// deadline or Close when created with NewBlockingConnectionMock.
type ConnectionMock struct {
	mu       sync.Mutex
	cond     *sync.Cond
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	block    bool
	closed   bool
	deadline time.Time
}

// NewConnectionMock creates a mock connection replying with responseData.
func NewConnectionMock(responseData ...string) *ConnectionMock {
	m := &ConnectionMock{
		readBuf:  bytes.NewBufferString(strings.Join(responseData, "")),
		writeBuf: &bytes.Buffer{},
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// NewBlockingConnectionMock is like NewConnectionMock but simulates a server
// that stops replying once responseData is consumed.
func NewBlockingConnectionMock(responseData ...string) *ConnectionMock {
	m := NewConnectionMock(responseData...)
	m.block = true
	return m
}

func (m *ConnectionMock) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if m.closed {
			return 0, net.ErrClosed
		}
		if !m.deadline.IsZero() && !time.Now().Before(m.deadline) {
			return 0, os.ErrDeadlineExceeded
		}
		if m.readBuf.Len() > 0 {
			return m.readBuf.Read(b)
		}
		if !m.block {
			return 0, io.EOF
		}
		m.waitLocked()
	}
}

// waitLocked waits for Close, a deadline change or the deadline to pass.
func (m *ConnectionMock) waitLocked() {
	if !m.deadline.IsZero() {
		timer := time.AfterFunc(time.Until(m.deadline), func() {
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		defer timer.Stop()
	}
	m.cond.Wait()
}

func (m *ConnectionMock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	if !m.deadline.IsZero() && !time.Now().Before(m.deadline) {
		return 0, os.ErrDeadlineExceeded
	}
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11211}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	m.cond.Broadcast()
	return nil
}

func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return m.SetDeadline(t) }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return m.SetDeadline(t) }

// GetWrittenRequest returns the raw request bytes written to the mock connection
func (m *ConnectionMock) GetWrittenRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBuf.String()
}

// IsClosed reports whether Close was called.
func (m *ConnectionMock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
