package text

// Command is a memcached text protocol command name.
type Command string

// Family groups commands sharing the same request grammar and reply shape.
type Family int

// Termination describes how the end of a reply is detected on the wire.
type Termination int

// StorageStatus is the outcome of a storage command.
type StorageStatus string

// Protocol delimiters
const (
	// CRLF is the line terminator for the memcached protocol
	CRLF = "\r\n"

	// Space separates command tokens
	Space = " "
)

// Command names
const (
	// CmdSet stores the value unconditionally.
	//
	// Wire format: set <key> <flags> <exptime> <bytes>\r\n<data>\r\n
	CmdSet Command = "set"

	// CmdAdd stores the value only if the key does not exist.
	CmdAdd Command = "add"

	// CmdReplace stores the value only if the key exists.
	CmdReplace Command = "replace"

	// CmdAppend appends data to an existing value. Flags and exptime are
	// still sent but ignored by the server.
	CmdAppend Command = "append"

	// CmdPrepend prepends data to an existing value.
	CmdPrepend Command = "prepend"

	// CmdCAS stores the value only if nobody updated it since it was fetched.
	//
	// Wire format: cas <key> <flags> <exptime> <bytes> <cas>\r\n<data>\r\n
	//
	// Response statuses:
	//   - STORED: value stored
	//   - EXISTS: item modified since the CAS token was issued
	//   - NOT_FOUND: item does not exist
	CmdCAS Command = "cas"

	// CmdGet retrieves one or more values.
	//
	// Wire format: get <key>*\r\n
	//
	// Response: VALUE <key> <flags> <bytes>\r\n<data>\r\n ... END\r\n
	CmdGet Command = "get"

	// CmdGets retrieves one or more values with their CAS token.
	//
	// Response: VALUE <key> <flags> <bytes> <cas>\r\n<data>\r\n ... END\r\n
	CmdGets Command = "gets"

	// CmdDelete removes an item.
	//
	// Response statuses: DELETED, NOT_FOUND
	CmdDelete Command = "delete"

	// CmdIncr increments a numeric value.
	//
	// Wire format: incr <key> <amount>\r\n
	//
	// Response: <new value>\r\n or NOT_FOUND\r\n
	CmdIncr Command = "incr"

	// CmdDecr decrements a numeric value. The server floors at zero.
	CmdDecr Command = "decr"

	// CmdTouch updates the expiration time of an item.
	//
	// Response statuses: TOUCHED, NOT_FOUND
	CmdTouch Command = "touch"

	// CmdStats returns server statistics.
	//
	// Response: STAT <name> <value>\r\n ... END\r\n
	CmdStats Command = "stats"

	// CmdVersion returns the server version.
	//
	// Response: VERSION <version>\r\n
	CmdVersion Command = "version"

	// CmdFlushAll invalidates all items.
	//
	// Response: OK\r\n
	CmdFlushAll Command = "flush_all"
)

// Command families
const (
	FamilyStorage Family = iota
	FamilyRetrieval
	FamilyDeletion
	FamilyArithmetic
	FamilyTouch
	FamilyStats
	FamilyVersion
	FamilyFlush
)

// Reply termination policies
const (
	// OneLine replies are exactly one line.
	OneLine Termination = iota

	// EndTerminated replies are lines ended by END\r\n.
	EndTerminated

	// Blocks replies are VALUE headers followed by data blocks, ended by END\r\n.
	Blocks
)

// Reply lines
const (
	ReplyStored    = "STORED"
	ReplyNotStored = "NOT_STORED"
	ReplyExists    = "EXISTS"
	ReplyNotFound  = "NOT_FOUND"
	ReplyDeleted   = "DELETED"
	ReplyTouched   = "TOUCHED"
	ReplyOK        = "OK"

	// EndMarker terminates retrieval and stats replies
	EndMarker = "END"

	// ValuePrefix starts each item header in a retrieval reply
	ValuePrefix = "VALUE"

	// StatPrefix starts each line of a stats reply
	StatPrefix = "STAT"

	// VersionPrefix starts the reply of the version command
	VersionPrefix = "VERSION"
)

// Error replies
const (
	// ErrorGeneric is the reply to an unknown command
	ErrorGeneric = "ERROR"

	// ErrorClientPrefix is followed by a message describing the invalid input.
	// Format: CLIENT_ERROR <message>\r\n
	ErrorClientPrefix = "CLIENT_ERROR"

	// ErrorServerPrefix is followed by a message describing the server failure.
	// Format: SERVER_ERROR <message>\r\n
	ErrorServerPrefix = "SERVER_ERROR"
)

// Storage outcomes
const (
	Stored    StorageStatus = ReplyStored
	NotStored StorageStatus = ReplyNotStored
	Exists    StorageStatus = ReplyExists
	NotFound  StorageStatus = ReplyNotFound
)

// Protocol limits
const (
	MinKeyLength = 1
	MaxKeyLength = 250

	// DefaultMaxValueLength matches the default memcached item size limit (1MiB).
	DefaultMaxValueLength = 1024 * 1024
)

type commandInfo struct {
	family      Family
	termination Termination
}

var commandTable = map[Command]commandInfo{
	CmdSet:      {FamilyStorage, OneLine},
	CmdAdd:      {FamilyStorage, OneLine},
	CmdReplace:  {FamilyStorage, OneLine},
	CmdAppend:   {FamilyStorage, OneLine},
	CmdPrepend:  {FamilyStorage, OneLine},
	CmdCAS:      {FamilyStorage, OneLine},
	CmdGet:      {FamilyRetrieval, Blocks},
	CmdGets:     {FamilyRetrieval, Blocks},
	CmdDelete:   {FamilyDeletion, OneLine},
	CmdIncr:     {FamilyArithmetic, OneLine},
	CmdDecr:     {FamilyArithmetic, OneLine},
	CmdTouch:    {FamilyTouch, OneLine},
	CmdStats:    {FamilyStats, EndTerminated},
	CmdVersion:  {FamilyVersion, OneLine},
	CmdFlushAll: {FamilyFlush, OneLine},
}

// Family returns the command family. Unknown commands report ok=false.
func (c Command) Family() (Family, bool) {
	info, ok := commandTable[c]
	return info.family, ok
}

// Termination returns how the reply to this command ends.
func (c Command) Termination() Termination {
	return commandTable[c].termination
}
