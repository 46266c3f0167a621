package text

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
)

// Pre-allocated byte slices for comparisons (avoid allocation in hot path)
var (
	crlfBytes        = []byte(CRLF)
	endLineBytes     = []byte(EndMarker + CRLF)
	valuePrefixBytes = []byte(ValuePrefix + " ")
	statPrefixBytes  = []byte(StatPrefix + " ")
)

// maxBlockLength bounds the data block size announced by a VALUE header.
// Anything larger is treated as a corrupted header rather than allocated.
const maxBlockLength = 1 << 30

// ReadResponse reads the complete reply to req from r and returns the raw
// bytes, including line terminators and data blocks.
//
// The end of the reply is detected according to the command termination:
//   - OneLine: a single line
//   - EndTerminated: STAT lines up to END\r\n or an error line
//   - Blocks: VALUE headers each followed by their data block, up to END\r\n
//     or an error line
//
// The returned bytes are a fresh allocation owned by the caller.
//
// Errors:
//   - TimeoutError: a read deadline expired
//   - ConnectionError: the connection failed or was closed mid-reply
//   - ParseError: a VALUE header cannot be framed, or a line that is neither
//     an item, END nor an error leaves the end of the reply unknown
//
// In all error cases the connection must be closed.
func ReadResponse(r *bufio.Reader, req *Request) ([]byte, error) {
	var buf []byte

	switch req.Command.Termination() {
	case OneLine:
		return readLine(r, buf)

	case EndTerminated:
		for {
			var err error
			start := len(buf)
			buf, err = readLine(r, buf)
			if err != nil {
				return nil, err
			}
			line := buf[start:]
			if !bytes.HasPrefix(line, statPrefixBytes) {
				if err := finalLine(req, line); err != nil {
					return nil, err
				}
				return buf, nil
			}
		}

	case Blocks:
		for {
			var err error
			start := len(buf)
			buf, err = readLine(r, buf)
			if err != nil {
				return nil, err
			}
			line := buf[start:]
			if !bytes.HasPrefix(line, valuePrefixBytes) {
				if err := finalLine(req, line); err != nil {
					return nil, err
				}
				return buf, nil
			}

			size, err := blockSize(line)
			if err != nil {
				return nil, err
			}

			// Read data + CRLF together in single read
			buf = grow(buf, size+2)
			block := buf[len(buf) : len(buf)+size+2]
			if _, err := io.ReadFull(r, block); err != nil {
				return nil, wrapIOError("read", err)
			}
			if !bytes.HasSuffix(block, crlfBytes) {
				return nil, &ParseError{Message: "invalid data block terminator"}
			}
			buf = buf[:len(buf)+size+2]
		}
	}

	return nil, &ParseError{Message: "unknown termination for command " + string(req.Command)}
}

// finalLine accepts END or an error line as the last line of a multi-line
// reply. Anything else may be followed by more data from the server.
func finalLine(req *Request, line []byte) error {
	trimmed := bytes.TrimSuffix(line, crlfBytes)
	if bytes.Equal(line, endLineBytes) || errorLine(trimmed) != nil {
		return nil
	}
	return &ParseError{Message: "unexpected line in " + string(req.Command) + " reply: " + strconv.Quote(string(trimmed))}
}

// readLine appends one line, terminator included, to buf.
func readLine(r *bufio.Reader, buf []byte) ([]byte, error) {
	for {
		// ReadSlice returns a slice into the reader buffer: copy it before the next read
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if err == nil {
			return buf, nil
		}
		if err != bufio.ErrBufferFull {
			return nil, wrapIOError("read", err)
		}
	}
}

// blockSize extracts the <bytes> field of a VALUE <key> <flags> <bytes>[ <cas>] header.
func blockSize(line []byte) (int, error) {
	fields := bytes.Fields(line)
	if len(fields) < 4 {
		return 0, &ParseError{Message: "VALUE header missing size: " + strconv.Quote(string(line))}
	}
	size, err := strconv.Atoi(string(fields[3]))
	if err != nil {
		return 0, &ParseError{Message: "invalid size in VALUE header", Err: err}
	}
	if size < 0 || size > maxBlockLength {
		return 0, &ParseError{Message: "size out of range in VALUE header: " + strconv.Itoa(size)}
	}
	return size, nil
}

func grow(buf []byte, n int) []byte {
	if cap(buf)-len(buf) >= n {
		return buf
	}
	grown := make([]byte, len(buf), len(buf)+n)
	copy(grown, buf)
	return grown
}

// wrapIOError classifies a transport error as TimeoutError or ConnectionError.
func wrapIOError(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	return &ConnectionError{Op: op, Err: err}
}

// WrapIOError is exported for transports that perform their own I/O.
func WrapIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	var state ErrorWithConnectionState
	if errors.As(err, &state) {
		return err
	}
	return wrapIOError(op, err)
}
