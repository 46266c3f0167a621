package text

import "strconv"

// Request represents a text protocol request.
//
// Only the fields relevant to the command are encoded:
//   - storage: Keys[0], Value, Flags, Exptime (and CAS for CmdCAS)
//   - retrieval: Keys
//   - delete: Keys[0]
//   - incr/decr: Keys[0], Delta
//   - touch: Keys[0], Exptime
//   - stats: Args
//   - flush_all: Exptime as the optional delay
type Request struct {
	Command Command
	Keys    []string
	Value   []byte
	Flags   uint32
	Exptime int64
	CAS     uint64
	Delta   uint64
	Args    []string
}

// Key returns the first key of the request, or "" when there is none.
func (r *Request) Key() string {
	if len(r.Keys) == 0 {
		return ""
	}
	return r.Keys[0]
}

// NewStorageRequest creates a set, add, replace, append or prepend request.
func NewStorageRequest(cmd Command, key string, value []byte, flags uint32, exptime int64) *Request {
	return &Request{
		Command: cmd,
		Keys:    []string{key},
		Value:   value,
		Flags:   flags,
		Exptime: exptime,
	}
}

// NewCASRequest creates a cas request.
func NewCASRequest(key string, value []byte, flags uint32, exptime int64, cas uint64) *Request {
	return &Request{
		Command: CmdCAS,
		Keys:    []string{key},
		Value:   value,
		Flags:   flags,
		Exptime: exptime,
		CAS:     cas,
	}
}

// NewRetrievalRequest creates a get or gets request.
// Duplicate keys are dropped, keeping the first occurrence order.
func NewRetrievalRequest(cmd Command, keys ...string) *Request {
	return &Request{
		Command: cmd,
		Keys:    uniqueKeys(keys),
	}
}

func NewDeleteRequest(key string) *Request {
	return &Request{Command: CmdDelete, Keys: []string{key}}
}

// NewArithmeticRequest creates an incr or decr request.
func NewArithmeticRequest(cmd Command, key string, delta uint64) *Request {
	return &Request{Command: cmd, Keys: []string{key}, Delta: delta}
}

func NewTouchRequest(key string, exptime int64) *Request {
	return &Request{Command: CmdTouch, Keys: []string{key}, Exptime: exptime}
}

// NewStatsRequest creates a stats request. Args selects a sub-group
// (e.g. "items", "slabs", "settings").
func NewStatsRequest(args ...string) *Request {
	return &Request{Command: CmdStats, Args: args}
}

func NewVersionRequest() *Request {
	return &Request{Command: CmdVersion}
}

// NewFlushAllRequest creates a flush_all request. A positive delay postpones
// the invalidation by that many seconds, zero flushes immediately and a
// negative delay fails validation.
func NewFlushAllRequest(delay int64) *Request {
	return &Request{Command: CmdFlushAll, Exptime: delay}
}

// ValidateKey checks if a key is valid for the memcache protocol.
// Keys must be 1-250 bytes and contain no control characters, space or DEL.
func ValidateKey(key string) error {
	if len(key) < MinKeyLength {
		return &ValidationError{Field: "key", Message: "key is empty"}
	}

	if len(key) > MaxKeyLength {
		return &ValidationError{Field: "key", Message: "key exceeds maximum length of 250 bytes"}
	}

	for i := 0; i < len(key); i++ {
		if b := key[i]; b <= ' ' || b == 0x7f {
			return &ValidationError{
				Field:   "key",
				Message: "key contains invalid byte 0x" + strconv.FormatUint(uint64(b), 16) + " at position " + strconv.Itoa(i),
			}
		}
	}

	return nil
}

// Validate checks the request before it is sent.
// A maxValueLength <= 0 disables the value size check.
func (r *Request) Validate(maxValueLength int) error {
	family, ok := r.Command.Family()
	if !ok {
		return &ValidationError{Field: "command", Message: "unknown command " + strconv.Quote(string(r.Command))}
	}

	switch family {
	case FamilyRetrieval:
		if len(r.Keys) == 0 {
			return &ValidationError{Field: "key", Message: "no keys"}
		}
		for _, key := range r.Keys {
			if err := ValidateKey(key); err != nil {
				return err
			}
		}
		return nil

	case FamilyStats:
		for _, arg := range r.Args {
			if err := validateArg(arg); err != nil {
				return err
			}
		}
		return nil

	case FamilyVersion:
		return nil

	case FamilyFlush:
		if r.Exptime < 0 {
			return &ValidationError{Field: "delay", Message: "negative delay " + strconv.FormatInt(r.Exptime, 10)}
		}
		return nil
	}

	if len(r.Keys) != 1 {
		return &ValidationError{Field: "key", Message: "expected exactly one key"}
	}
	if err := ValidateKey(r.Keys[0]); err != nil {
		return err
	}

	if family == FamilyStorage && maxValueLength > 0 && len(r.Value) > maxValueLength {
		return &ValidationError{
			Field:   "value",
			Message: "value length " + strconv.Itoa(len(r.Value)) + " exceeds maximum of " + strconv.Itoa(maxValueLength),
		}
	}

	return nil
}

func validateArg(arg string) error {
	if arg == "" {
		return &ValidationError{Field: "argument", Message: "argument is empty"}
	}
	for i := 0; i < len(arg); i++ {
		if b := arg[i]; b <= ' ' || b == 0x7f {
			return &ValidationError{Field: "argument", Message: "argument contains invalid byte"}
		}
	}
	return nil
}

func uniqueKeys(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}

	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	return unique
}
