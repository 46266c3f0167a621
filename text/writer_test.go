package text

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRequest(t *testing.T) {
	tests := []struct {
		name     string
		req      *Request
		expected string
	}{
		{
			name:     "set",
			req:      NewStorageRequest(CmdSet, "foo", []byte("bar"), 0, 0),
			expected: "set foo 0 0 3\r\nbar\r\n",
		},
		{
			name:     "set with flags and exptime",
			req:      NewStorageRequest(CmdSet, "foo", []byte("bar"), 42, 3600),
			expected: "set foo 42 3600 3\r\nbar\r\n",
		},
		{
			name:     "set with negative exptime",
			req:      NewStorageRequest(CmdSet, "foo", []byte("bar"), 0, -1),
			expected: "set foo 0 -1 3\r\nbar\r\n",
		},
		{
			name:     "add empty value",
			req:      NewStorageRequest(CmdAdd, "foo", nil, 0, 0),
			expected: "add foo 0 0 0\r\n\r\n",
		},
		{
			name:     "replace",
			req:      NewStorageRequest(CmdReplace, "foo", []byte("x"), 1, 2),
			expected: "replace foo 1 2 1\r\nx\r\n",
		},
		{
			name:     "append carries flags and exptime",
			req:      NewStorageRequest(CmdAppend, "foo", []byte("tail"), 7, 9),
			expected: "append foo 7 9 4\r\ntail\r\n",
		},
		{
			name:     "prepend",
			req:      NewStorageRequest(CmdPrepend, "foo", []byte("head"), 0, 0),
			expected: "prepend foo 0 0 4\r\nhead\r\n",
		},
		{
			name:     "cas",
			req:      NewCASRequest("foo", []byte("bar"), 5, 10, 123456789),
			expected: "cas foo 5 10 3 123456789\r\nbar\r\n",
		},
		{
			name:     "value with CRLF inside",
			req:      NewStorageRequest(CmdSet, "foo", []byte("a\r\nb"), 0, 0),
			expected: "set foo 0 0 4\r\na\r\nb\r\n",
		},
		{
			name:     "get",
			req:      NewRetrievalRequest(CmdGet, "foo"),
			expected: "get foo\r\n",
		},
		{
			name:     "gets multiple keys",
			req:      NewRetrievalRequest(CmdGets, "a", "b", "c"),
			expected: "gets a b c\r\n",
		},
		{
			name:     "get duplicate keys",
			req:      NewRetrievalRequest(CmdGet, "a", "a"),
			expected: "get a\r\n",
		},
		{
			name:     "delete",
			req:      NewDeleteRequest("foo"),
			expected: "delete foo\r\n",
		},
		{
			name:     "incr",
			req:      NewArithmeticRequest(CmdIncr, "counter", 1),
			expected: "incr counter 1\r\n",
		},
		{
			name:     "decr max uint64",
			req:      NewArithmeticRequest(CmdDecr, "counter", 18446744073709551615),
			expected: "decr counter 18446744073709551615\r\n",
		},
		{
			name:     "touch",
			req:      NewTouchRequest("foo", 60),
			expected: "touch foo 60\r\n",
		},
		{
			name:     "stats",
			req:      NewStatsRequest(),
			expected: "stats\r\n",
		},
		{
			name:     "stats with args",
			req:      NewStatsRequest("slabs"),
			expected: "stats slabs\r\n",
		},
		{
			name:     "version",
			req:      NewVersionRequest(),
			expected: "version\r\n",
		},
		{
			name:     "flush_all",
			req:      NewFlushAllRequest(0),
			expected: "flush_all\r\n",
		},
		{
			name:     "flush_all with delay",
			req:      NewFlushAllRequest(30),
			expected: "flush_all 30\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteRequest(&buf, tt.req))
			assert.Equal(t, tt.expected, buf.String())

			assert.Equal(t, tt.expected, string(AppendRequest(nil, tt.req)))
		})
	}
}

func TestAppendRequest_ReusesBuffer(t *testing.T) {
	dst := make([]byte, 0, 64)
	dst = append(dst, "prefix|"...)

	out := AppendRequest(dst, NewDeleteRequest("foo"))
	assert.Equal(t, "prefix|delete foo\r\n", string(out))
}
