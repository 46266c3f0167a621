package text

import (
	"bytes"
	"io"
	"strconv"
	"sync"
)

// Buffer pool for building requests
var bufferPool = sync.Pool{
	New: func() any {
		// Typical request is ~100 bytes, allocate 256 bytes
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	// Don't keep buffers grown by large values
	if buf.Cap() > 64*1024 {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// WriteRequest serializes a Request to wire format and writes it to w.
// The request is assumed valid, see Request.Validate.
func WriteRequest(w io.Writer, req *Request) error {
	buf := getBuffer()
	defer putBuffer(buf)

	buf.Write(AppendRequest(buf.AvailableBuffer(), req))
	_, err := w.Write(buf.Bytes())
	return err
}

// AppendRequest appends the wire format of req to dst.
//
// Formats:
//
//	<cmd> <key> <flags> <exptime> <bytes>\r\n<data>\r\n
//	cas <key> <flags> <exptime> <bytes> <cas>\r\n<data>\r\n
//	get|gets <key>*\r\n
//	delete <key>\r\n
//	incr|decr <key> <amount>\r\n
//	touch <key> <exptime>\r\n
//	stats[ <args>]\r\n
//	version\r\n
//	flush_all[ <delay>]\r\n
func AppendRequest(dst []byte, req *Request) []byte {
	dst = append(dst, req.Command...)

	family, _ := req.Command.Family()
	switch family {
	case FamilyStorage:
		dst = append(dst, ' ')
		dst = append(dst, req.Key()...)
		dst = append(dst, ' ')
		dst = strconv.AppendUint(dst, uint64(req.Flags), 10)
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, req.Exptime, 10)
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(len(req.Value)), 10)
		if req.Command == CmdCAS {
			dst = append(dst, ' ')
			dst = strconv.AppendUint(dst, req.CAS, 10)
		}
		dst = append(dst, CRLF...)
		dst = append(dst, req.Value...)

	case FamilyRetrieval:
		for _, key := range req.Keys {
			dst = append(dst, ' ')
			dst = append(dst, key...)
		}

	case FamilyDeletion:
		dst = append(dst, ' ')
		dst = append(dst, req.Key()...)

	case FamilyArithmetic:
		dst = append(dst, ' ')
		dst = append(dst, req.Key()...)
		dst = append(dst, ' ')
		dst = strconv.AppendUint(dst, req.Delta, 10)

	case FamilyTouch:
		dst = append(dst, ' ')
		dst = append(dst, req.Key()...)
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, req.Exptime, 10)

	case FamilyStats:
		for _, arg := range req.Args {
			dst = append(dst, ' ')
			dst = append(dst, arg...)
		}

	case FamilyFlush:
		if req.Exptime > 0 {
			dst = append(dst, ' ')
			dst = strconv.AppendInt(dst, req.Exptime, 10)
		}
	}

	return append(dst, CRLF...)
}
