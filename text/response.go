package text

import (
	"bytes"
	"strconv"
	"strings"
)

// Item is a value returned by a retrieval command.
type Item struct {
	Key    string
	Value  []byte
	Flags  uint32
	CAS    uint64
	HasCAS bool // true when the reply carried a CAS token (gets)
}

var (
	errorGenericBytes = []byte(ErrorGeneric)
	clientErrorPrefix = []byte(ErrorClientPrefix + " ")
	serverErrorPrefix = []byte(ErrorServerPrefix + " ")
)

// newResponseError builds a ResponseError carrying the encoded request and raw reply.
func newResponseError(req *Request, raw []byte, msg string) *ResponseError {
	return &ResponseError{
		Message:  msg,
		Request:  AppendRequest(nil, req),
		Response: raw,
	}
}

// errorLine maps ERROR, CLIENT_ERROR and SERVER_ERROR replies to their error type.
// Returns nil for any other line.
func errorLine(line []byte) error {
	switch {
	case bytes.Equal(line, errorGenericBytes):
		return &GenericError{Message: ErrorGeneric}
	case bytes.Equal(line, []byte(ErrorClientPrefix)):
		return &ClientError{}
	case bytes.Equal(line, []byte(ErrorServerPrefix)):
		return &ServerError{}
	case bytes.HasPrefix(line, clientErrorPrefix):
		return &ClientError{Message: string(line[len(clientErrorPrefix):])}
	case bytes.HasPrefix(line, serverErrorPrefix):
		return &ServerError{Message: string(line[len(serverErrorPrefix):])}
	}
	return nil
}

// nextLine splits the first CRLF terminated line off raw.
func nextLine(raw []byte) (line, rest []byte, ok bool) {
	i := bytes.Index(raw, crlfBytes)
	if i < 0 {
		return nil, nil, false
	}
	return raw[:i], raw[i+2:], true
}

// singleLine returns the only line of a one-line reply.
// Error replies and malformed framing are reported as ResponseError.
func singleLine(req *Request, raw []byte) ([]byte, error) {
	line, rest, ok := nextLine(raw)
	if !ok {
		return nil, newResponseError(req, raw, "reply is not CRLF terminated")
	}
	if len(rest) != 0 {
		return nil, newResponseError(req, raw, "unexpected data after reply line")
	}
	if cause := errorLine(line); cause != nil {
		respErr := newResponseError(req, raw, "server error reply")
		respErr.Cause = cause
		return nil, respErr
	}
	return line, nil
}

// DecodeStorage decodes the reply to a storage command.
//
// STORED and NOT_STORED are valid for every storage command, EXISTS and
// NOT_FOUND only for cas.
func DecodeStorage(req *Request, raw []byte) (StorageStatus, error) {
	line, err := singleLine(req, raw)
	if err != nil {
		return "", err
	}

	switch string(line) {
	case ReplyStored:
		return Stored, nil
	case ReplyNotStored:
		return NotStored, nil
	case ReplyExists, ReplyNotFound:
		if req.Command == CmdCAS {
			return StorageStatus(line), nil
		}
	}
	return "", newResponseError(req, raw, "unexpected reply to "+string(req.Command))
}

// DecodeRetrieval decodes the reply to get or gets.
//
// Each item is VALUE <key> <flags> <bytes>[ <cas>]\r\n<data>\r\n and the
// reply ends with END\r\n. A key returned twice, a data block whose length
// differs from the header, or more items than requested keys are protocol
// errors.
func DecodeRetrieval(req *Request, raw []byte) (map[string]Item, error) {
	items := make(map[string]Item, len(req.Keys))
	rest := raw

	for {
		line, after, ok := nextLine(rest)
		if !ok {
			return nil, newResponseError(req, raw, "missing END marker")
		}

		if bytes.Equal(line, []byte(EndMarker)) {
			if len(after) != 0 {
				return nil, newResponseError(req, raw, "unexpected data after END")
			}
			break
		}

		if cause := errorLine(line); cause != nil {
			respErr := newResponseError(req, raw, "server error reply")
			respErr.Cause = cause
			return nil, respErr
		}

		item, size, err := parseValueHeader(req, raw, line)
		if err != nil {
			return nil, err
		}

		if _, dup := items[item.Key]; dup {
			return nil, newResponseError(req, raw, "duplicate key in reply: "+item.Key)
		}

		if len(after) < size+2 || !bytes.Equal(after[size:size+2], crlfBytes) {
			return nil, newResponseError(req, raw, "data block length does not match header")
		}
		item.Value = after[:size:size]
		items[item.Key] = item

		if len(items) > len(req.Keys) {
			return nil, newResponseError(req, raw, "more items returned than keys requested")
		}

		rest = after[size+2:]
	}

	return items, nil
}

func parseValueHeader(req *Request, raw, line []byte) (Item, int, error) {
	fields := bytes.Fields(line)
	if len(fields) == 0 || string(fields[0]) != ValuePrefix {
		return Item{}, 0, newResponseError(req, raw, "expected VALUE, got "+strconv.Quote(string(line)))
	}
	if len(fields) != 4 && len(fields) != 5 {
		return Item{}, 0, newResponseError(req, raw, "malformed VALUE header")
	}
	if req.Command == CmdGets && len(fields) != 5 {
		return Item{}, 0, newResponseError(req, raw, "VALUE header missing CAS token")
	}

	item := Item{Key: string(fields[1])}

	flags, err := strconv.ParseUint(string(fields[2]), 10, 32)
	if err != nil {
		return Item{}, 0, newResponseError(req, raw, "invalid flags in VALUE header")
	}
	item.Flags = uint32(flags)

	size, err := strconv.Atoi(string(fields[3]))
	if err != nil || size < 0 {
		return Item{}, 0, newResponseError(req, raw, "invalid size in VALUE header")
	}

	if len(fields) == 5 {
		cas, err := strconv.ParseUint(string(fields[4]), 10, 64)
		if err != nil {
			return Item{}, 0, newResponseError(req, raw, "invalid CAS in VALUE header")
		}
		item.CAS = cas
		item.HasCAS = true
	}

	return item, size, nil
}

// DecodeDelete decodes the reply to delete: true for DELETED, false for NOT_FOUND.
func DecodeDelete(req *Request, raw []byte) (bool, error) {
	return decodeFound(req, raw, ReplyDeleted)
}

// DecodeTouch decodes the reply to touch: true for TOUCHED, false for NOT_FOUND.
func DecodeTouch(req *Request, raw []byte) (bool, error) {
	return decodeFound(req, raw, ReplyTouched)
}

func decodeFound(req *Request, raw []byte, success string) (bool, error) {
	line, err := singleLine(req, raw)
	if err != nil {
		return false, err
	}

	switch string(line) {
	case success:
		return true, nil
	case ReplyNotFound:
		return false, nil
	}
	return false, newResponseError(req, raw, "unexpected reply to "+string(req.Command))
}

// DecodeArithmetic decodes the reply to incr or decr.
// Returns found=false on NOT_FOUND.
func DecodeArithmetic(req *Request, raw []byte) (value uint64, found bool, err error) {
	line, err := singleLine(req, raw)
	if err != nil {
		return 0, false, err
	}

	if string(line) == ReplyNotFound {
		return 0, false, nil
	}

	value, err = strconv.ParseUint(string(line), 10, 64)
	if err != nil {
		return 0, false, newResponseError(req, raw, "non-numeric reply to "+string(req.Command))
	}
	return value, true, nil
}

// DecodeStats decodes a stats reply.
//
// Each STAT <name>[ <value>...] line maps name to the remaining tokens joined
// by a single space, or to nil when the line carries only a name.
func DecodeStats(req *Request, raw []byte) (map[string]*string, error) {
	stats := make(map[string]*string)
	rest := raw

	for {
		line, after, ok := nextLine(rest)
		if !ok {
			return nil, newResponseError(req, raw, "missing END marker")
		}
		rest = after

		if bytes.Equal(line, []byte(EndMarker)) {
			if len(rest) != 0 {
				return nil, newResponseError(req, raw, "unexpected data after END")
			}
			return stats, nil
		}

		if cause := errorLine(line); cause != nil {
			respErr := newResponseError(req, raw, "server error reply")
			respErr.Cause = cause
			return nil, respErr
		}

		fields := strings.Fields(string(line))
		if len(fields) < 2 || fields[0] != StatPrefix {
			return nil, newResponseError(req, raw, "invalid stats line: "+strconv.Quote(string(line)))
		}

		if len(fields) == 2 {
			stats[fields[1]] = nil
			continue
		}
		value := strings.Join(fields[2:], Space)
		stats[fields[1]] = &value
	}
}

// DecodeVersion decodes VERSION <version> and returns the version string.
func DecodeVersion(req *Request, raw []byte) (string, error) {
	line, err := singleLine(req, raw)
	if err != nil {
		return "", err
	}

	head, version, ok := strings.Cut(string(line), Space)
	if !ok || head != VersionPrefix {
		return "", newResponseError(req, raw, "unexpected reply to version")
	}
	return strings.TrimSpace(version), nil
}

// DecodeFlushAll decodes the OK reply to flush_all.
func DecodeFlushAll(req *Request, raw []byte) (bool, error) {
	line, err := singleLine(req, raw)
	if err != nil {
		return false, err
	}
	if string(line) != ReplyOK {
		return false, newResponseError(req, raw, "unexpected reply to flush_all")
	}
	return true, nil
}

// ReplyError returns the error carried by the last line of a raw reply, if
// that line is ERROR, CLIENT_ERROR or SERVER_ERROR. It returns nil otherwise.
//
// ReadResponse always stops at such a line, so the last line is enough to
// decide whether the connection can be reused before decoding.
func ReplyError(raw []byte) error {
	raw = bytes.TrimSuffix(raw, crlfBytes)
	if i := bytes.LastIndex(raw, crlfBytes); i >= 0 {
		raw = raw[i+2:]
	}
	return errorLine(raw)
}
