// Package fakeserver implements an in-memory memcached text protocol server
// for tests. It supports the commands used by the client and exposes
// connection counters and fault injection hooks.
package fakeserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const Version = "1.6.21-fake"

type entry struct {
	value   []byte
	flags   uint32
	cas     uint64
	expires time.Time // zero means never
}

// Override replies to a command line instead of the server.
// Return handled=false to let the server process the command.
type Override func(line string) (reply string, handled bool)

// Server is an in-memory memcached server.
type Server struct {
	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	items   map[string]*entry
	nextCAS uint64
	conns   map[net.Conn]struct{}

	opened    atomic.Int64
	active    atomic.Int64
	maxActive atomic.Int64
	commands  atomic.Int64

	delay    atomic.Int64 // nanoseconds to wait before each reply
	override atomic.Pointer[Override]
}

// Start starts a server on a random local port. It is stopped at the end of the test.
func Start(t testing.TB) *Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakeserver: listen: %v", err)
	}

	s := &Server{
		listener: listener,
		items:    make(map[string]*entry),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URI returns the memcached:// URI of the server.
func (s *Server) URI() string {
	return "memcached://" + s.Addr()
}

// Opened returns the number of connections accepted so far.
func (s *Server) Opened() int64 { return s.opened.Load() }

// Active returns the number of connections currently open.
func (s *Server) Active() int64 { return s.active.Load() }

// MaxActive returns the highest number of concurrently open connections.
func (s *Server) MaxActive() int64 { return s.maxActive.Load() }

// Commands returns the number of commands processed.
func (s *Server) Commands() int64 { return s.commands.Load() }

// SetDelay makes the server wait before each reply.
func (s *Server) SetDelay(d time.Duration) {
	s.delay.Store(int64(d))
}

// SetOverride installs a hook replying to commands in place of the server. Nil removes it.
func (s *Server) SetOverride(fn Override) {
	if fn == nil {
		s.override.Store(nil)
		return
	}
	s.override.Store(&fn)
}

// Close stops the server and closes all client connections.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// CloseClientConnections closes the server side of all open connections.
func (s *Server) CloseClientConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.opened.Add(1)
		active := s.active.Add(1)
		for {
			max := s.maxActive.Load()
			if active <= max || s.maxActive.CompareAndSwap(max, active) {
				break
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConnection(c)
		}(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.active.Add(-1)
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		s.commands.Add(1)

		reply, quit := s.execute(line, reader)
		if quit {
			return
		}

		if d := time.Duration(s.delay.Load()); d > 0 {
			time.Sleep(d)
		}

		if _, err := writer.WriteString(reply); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) execute(line string, reader *bufio.Reader) (reply string, quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERROR\r\n", false
	}

	// Data blocks are consumed before any override so the stream stays in sync
	var data []byte
	switch fields[0] {
	case "set", "add", "replace", "append", "prepend", "cas":
		if len(fields) < 5 {
			return "ERROR\r\n", false
		}
		size, err := strconv.Atoi(fields[4])
		if err != nil || size < 0 {
			return "CLIENT_ERROR bad command line format\r\n", false
		}
		data = make([]byte, size+2)
		if _, err := io.ReadFull(reader, data); err != nil {
			return "", true
		}
		if string(data[size:]) != "\r\n" {
			return "CLIENT_ERROR bad data chunk\r\n", false
		}
		data = data[:size]
	}

	if fn := s.override.Load(); fn != nil {
		if reply, handled := (*fn)(line); handled {
			return reply, false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch fields[0] {
	case "set", "add", "replace", "append", "prepend", "cas":
		return s.store(fields, data), false
	case "get", "gets":
		return s.retrieve(fields), false
	case "delete":
		if len(fields) != 2 {
			return "ERROR\r\n", false
		}
		if s.lookup(fields[1]) == nil {
			return "NOT_FOUND\r\n", false
		}
		delete(s.items, fields[1])
		return "DELETED\r\n", false
	case "incr", "decr":
		return s.arithmetic(fields), false
	case "touch":
		if len(fields) != 3 {
			return "ERROR\r\n", false
		}
		e := s.lookup(fields[1])
		if e == nil {
			return "NOT_FOUND\r\n", false
		}
		exptime, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return "CLIENT_ERROR invalid exptime argument\r\n", false
		}
		e.expires = expiresAt(exptime)
		return "TOUCHED\r\n", false
	case "stats":
		return s.stats(fields[1:]), false
	case "version":
		return "VERSION " + Version + "\r\n", false
	case "flush_all":
		return s.flush(fields[1:]), false
	case "quit":
		return "", true
	}
	return "ERROR\r\n", false
}

// flush drops every item, or expires them after the optional delay. Must hold mu.
func (s *Server) flush(args []string) string {
	if len(args) > 1 {
		return "ERROR\r\n"
	}
	if len(args) == 0 {
		s.items = make(map[string]*entry)
		return "OK\r\n"
	}

	delay, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || delay < 0 {
		return "CLIENT_ERROR bad command line format\r\n"
	}
	if delay == 0 {
		s.items = make(map[string]*entry)
		return "OK\r\n"
	}

	at := expiresAt(delay)
	for _, e := range s.items {
		if e.expires.IsZero() || e.expires.After(at) {
			e.expires = at
		}
	}
	return "OK\r\n"
}

func expiresAt(exptime int64) time.Time {
	switch {
	case exptime == 0:
		return time.Time{}
	case exptime < 0:
		return time.Unix(1, 0)
	case exptime <= 60*60*24*30:
		return time.Now().Add(time.Duration(exptime) * time.Second)
	default:
		return time.Unix(exptime, 0)
	}
}

// lookup returns the live entry for key, dropping it if expired. Must hold mu.
func (s *Server) lookup(key string) *entry {
	e, ok := s.items[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !time.Now().Before(e.expires) {
		delete(s.items, key)
		return nil
	}
	return e
}

func (s *Server) store(fields []string, data []byte) string {
	cmd, key := fields[0], fields[1]

	flags, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return "CLIENT_ERROR bad command line format\r\n"
	}
	exptime, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return "CLIENT_ERROR bad command line format\r\n"
	}

	existing := s.lookup(key)

	switch cmd {
	case "add":
		if existing != nil {
			return "NOT_STORED\r\n"
		}
	case "replace":
		if existing == nil {
			return "NOT_STORED\r\n"
		}
	case "append", "prepend":
		if existing == nil {
			return "NOT_STORED\r\n"
		}
		if cmd == "append" {
			data = append(append([]byte{}, existing.value...), data...)
		} else {
			data = append(append([]byte{}, data...), existing.value...)
		}
		s.nextCAS++
		existing.value = data
		existing.cas = s.nextCAS
		return "STORED\r\n"
	case "cas":
		if len(fields) != 6 {
			return "ERROR\r\n"
		}
		cas, err := strconv.ParseUint(fields[5], 10, 64)
		if err != nil {
			return "CLIENT_ERROR bad command line format\r\n"
		}
		if existing == nil {
			return "NOT_FOUND\r\n"
		}
		if existing.cas != cas {
			return "EXISTS\r\n"
		}
	}

	s.nextCAS++
	s.items[key] = &entry{
		value:   data,
		flags:   uint32(flags),
		cas:     s.nextCAS,
		expires: expiresAt(exptime),
	}
	return "STORED\r\n"
}

func (s *Server) retrieve(fields []string) string {
	var b strings.Builder
	for _, key := range fields[1:] {
		e := s.lookup(key)
		if e == nil {
			continue
		}
		if fields[0] == "gets" {
			fmt.Fprintf(&b, "VALUE %s %d %d %d\r\n", key, e.flags, len(e.value), e.cas)
		} else {
			fmt.Fprintf(&b, "VALUE %s %d %d\r\n", key, e.flags, len(e.value))
		}
		b.Write(e.value)
		b.WriteString("\r\n")
	}
	b.WriteString("END\r\n")
	return b.String()
}

func (s *Server) arithmetic(fields []string) string {
	if len(fields) != 3 {
		return "ERROR\r\n"
	}
	delta, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return "CLIENT_ERROR invalid numeric delta argument\r\n"
	}

	e := s.lookup(fields[1])
	if e == nil {
		return "NOT_FOUND\r\n"
	}

	current, err := strconv.ParseUint(string(e.value), 10, 64)
	if err != nil {
		return "CLIENT_ERROR cannot increment or decrement non-numeric value\r\n"
	}

	if fields[0] == "incr" {
		current += delta
	} else if delta > current {
		current = 0
	} else {
		current -= delta
	}

	s.nextCAS++
	e.value = []byte(strconv.FormatUint(current, 10))
	e.cas = s.nextCAS
	return strconv.FormatUint(current, 10) + "\r\n"
}

func (s *Server) stats(args []string) string {
	var stats map[string]string
	switch {
	case len(args) == 0:
		stats = map[string]string{
			"pid":          "1",
			"version":      Version,
			"curr_items":   strconv.Itoa(len(s.items)),
			"total_items":  strconv.FormatUint(s.nextCAS, 10),
			"curr_conns":   strconv.FormatInt(s.active.Load(), 10),
			"total_conns":  strconv.FormatInt(s.opened.Load(), 10),
			"rusage_user":  "0.1 0.2",
			"cmd_get_fake": "",
		}
	case len(args) == 1 && args[0] == "settings":
		stats = map[string]string{"maxbytes": "67108864", "item_size_max": "1048576"}
	default:
		return "ERROR\r\n"
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if stats[name] == "" {
			fmt.Fprintf(&b, "STAT %s\r\n", name)
			continue
		}
		fmt.Fprintf(&b, "STAT %s %s\r\n", name, stats[name])
	}
	b.WriteString("END\r\n")
	return b.String()
}
