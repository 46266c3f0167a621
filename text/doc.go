// Package text provides a low-level wire protocol implementation for the
// classic Memcached text protocol.
//
// This package serves as the codec of the memcache client. It performs no
// connection management: encoding and decoding are pure functions, and
// ReadResponse only frames a reply read from a bufio.Reader.
//
// # Core Types
//
//   - Request: a text protocol command with its key(s) and arguments
//   - Item: a value returned by get or gets
//   - StorageStatus: the outcome of a storage command
//
// # Serialization and Parsing
//
// WriteRequest serializes requests to wire format:
//
//	req := text.NewStorageRequest(text.CmdSet, "foo", []byte("bar"), 0, 0)
//	if err := req.Validate(text.DefaultMaxValueLength); err != nil {
//	    return err
//	}
//	err := text.WriteRequest(conn, req) // set foo 0 0 3\r\nbar\r\n
//
// ReadResponse accumulates the raw reply, which is then decoded:
//
//	raw, err := text.ReadResponse(reader, req)
//	if err != nil {
//	    conn.Close() // stream position is unknown
//	    return err
//	}
//	status, err := text.DecodeStorage(req, raw)
//
// # Error Handling
//
// ShouldCloseConnection tells whether a connection can be reused after an error:
//
//   - ValidationError: nothing was sent
//   - ConnectionError, TimeoutError, ParseError: close
//   - ResponseError: reuse, unless caused by ERROR or CLIENT_ERROR
package text
