package text

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestReadResponse_OneLine(t *testing.T) {
	r := reader("STORED\r\nNEXT\r\n")

	raw, err := ReadResponse(r, NewStorageRequest(CmdSet, "foo", []byte("bar"), 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "STORED\r\n", string(raw))

	// The rest of the stream is untouched
	rest, _ := io.ReadAll(r)
	assert.Equal(t, "NEXT\r\n", string(rest))
}

func TestReadResponse_LongLine(t *testing.T) {
	long := "VERSION " + strings.Repeat("x", 10000) + "\r\n"
	r := bufio.NewReaderSize(strings.NewReader(long), 16)

	raw, err := ReadResponse(r, NewVersionRequest())
	require.NoError(t, err)
	assert.Equal(t, long, string(raw))
}

func TestReadResponse_Stats(t *testing.T) {
	reply := "STAT pid 1\r\nSTAT version 1.6.21\r\nEND\r\n"
	raw, err := ReadResponse(reader(reply+"trailing"), NewStatsRequest())
	require.NoError(t, err)
	assert.Equal(t, reply, string(raw))
}

func TestReadResponse_StatsStopsOnError(t *testing.T) {
	raw, err := ReadResponse(reader("ERROR\r\n"), NewStatsRequest("bogus"))
	require.NoError(t, err)
	assert.Equal(t, "ERROR\r\n", string(raw))
}

func TestReadResponse_Blocks(t *testing.T) {
	// The data block contains "END\r\n" and must be read by length, not by line
	reply := "VALUE a 0 5\r\nEND\r\n\r\nVALUE b 3 2 99\r\nhi\r\nEND\r\n"
	raw, err := ReadResponse(reader(reply+"extra"), NewRetrievalRequest(CmdGets, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, reply, string(raw))
}

func TestReadResponse_BlocksEmpty(t *testing.T) {
	raw, err := ReadResponse(reader("END\r\n"), NewRetrievalRequest(CmdGet, "a"))
	require.NoError(t, err)
	assert.Equal(t, "END\r\n", string(raw))
}

func TestReadResponse_BlocksStopOnErrorLine(t *testing.T) {
	raw, err := ReadResponse(reader("SERVER_ERROR out of memory\r\nEND\r\n"), NewRetrievalRequest(CmdGet, "a"))
	require.NoError(t, err)
	assert.Equal(t, "SERVER_ERROR out of memory\r\n", string(raw))
}

func TestReadResponse_UnexpectedFinalLine(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		req   *Request
	}{
		{"get", "BOGUS\r\nEND\r\n", NewRetrievalRequest(CmdGet, "a")},
		{"get after item", "VALUE a 0 1\r\nx\r\nBOGUS\r\nEND\r\n", NewRetrievalRequest(CmdGet, "a")},
		{"stats", "STAT a 1\r\nitem:1 foo\r\nEND\r\n", NewStatsRequest()},
		{"stats empty line", "\r\nEND\r\n", NewStatsRequest()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ReadResponse(reader(tt.reply), tt.req)
			assert.Nil(t, raw)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.True(t, ShouldCloseConnection(err))
		})
	}
}

func TestReadResponse_InvalidBlockSize(t *testing.T) {
	_, err := ReadResponse(reader("VALUE a 0 abc\r\nxx\r\nEND\r\n"), NewRetrievalRequest(CmdGet, "a"))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.True(t, ShouldCloseConnection(err))
}

func TestReadResponse_MissingBlockTerminator(t *testing.T) {
	_, err := ReadResponse(reader("VALUE a 0 2\r\nabcdEND\r\n"), NewRetrievalRequest(CmdGet, "a"))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestReadResponse_EOF(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		req   *Request
	}{
		{"empty", "", NewDeleteRequest("a")},
		{"partial line", "STOR", NewStorageRequest(CmdSet, "a", nil, 0, 0)},
		{"truncated block", "VALUE a 0 10\r\nabc", NewRetrievalRequest(CmdGet, "a")},
		{"missing END", "STAT pid 1\r\n", NewStatsRequest()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadResponse(reader(tt.reply), tt.req)

			var connErr *ConnectionError
			require.ErrorAs(t, err, &connErr)
			assert.Equal(t, "read", connErr.Op)
			assert.True(t, ShouldCloseConnection(err))
		})
	}
}

type deadlineReader struct{}

func (deadlineReader) Read([]byte) (int, error) {
	return 0, os.ErrDeadlineExceeded
}

func TestReadResponse_Timeout(t *testing.T) {
	_, err := ReadResponse(bufio.NewReader(deadlineReader{}), NewVersionRequest())

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, timeoutErr.Timeout())
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
	assert.True(t, ShouldCloseConnection(err))
}

func TestWrapIOError(t *testing.T) {
	assert.NoError(t, WrapIOError("write", nil))

	var connErr *ConnectionError
	assert.ErrorAs(t, WrapIOError("write", io.ErrClosedPipe), &connErr)

	var timeoutErr *TimeoutError
	assert.ErrorAs(t, WrapIOError("write", os.ErrDeadlineExceeded), &timeoutErr)

	// Already classified errors pass through
	orig := &ParseError{Message: "x"}
	assert.Same(t, orig, WrapIOError("read", orig))
}
