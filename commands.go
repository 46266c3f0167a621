package memcache

import (
	"context"

	"github.com/pior/mctext/text"
)

// NoExpiration makes an item never expire.
const NoExpiration = 0

// Item is an item to store, or an item returned by a retrieval operation.
type Item struct {
	Key   string
	Value []byte

	// Flags are opaque to the server and returned as stored.
	Flags uint32

	// Exptime is the expiration time in seconds: 0 never expires, up to 30
	// days it is relative to now, above it is an absolute Unix time.
	// Negative values expire the item immediately.
	Exptime int64

	// CAS is the item version returned by Gets, and compared by CompareAndSwap.
	CAS uint64
}

func itemFromText(it text.Item) Item {
	return Item{
		Key:   it.Key,
		Value: it.Value,
		Flags: it.Flags,
		CAS:   it.CAS,
	}
}

// Set stores the item unconditionally.
// Returns false if the server did not store it.
func (c *Client) Set(ctx context.Context, item Item) (bool, error) {
	return c.store(ctx, text.CmdSet, item)
}

// Add stores the item only if the key does not exist.
// Returns false if the key already exists.
func (c *Client) Add(ctx context.Context, item Item) (bool, error) {
	return c.store(ctx, text.CmdAdd, item)
}

// Replace stores the item only if the key already exists.
// Returns false if the key does not exist.
func (c *Client) Replace(ctx context.Context, item Item) (bool, error) {
	return c.store(ctx, text.CmdReplace, item)
}

// Append adds the value after the existing value. Flags and Exptime are ignored by the server.
// Returns false if the key does not exist.
func (c *Client) Append(ctx context.Context, item Item) (bool, error) {
	return c.store(ctx, text.CmdAppend, item)
}

// Prepend adds the value before the existing value. Flags and Exptime are ignored by the server.
// Returns false if the key does not exist.
func (c *Client) Prepend(ctx context.Context, item Item) (bool, error) {
	return c.store(ctx, text.CmdPrepend, item)
}

func (c *Client) store(ctx context.Context, cmd text.Command, item Item) (bool, error) {
	req := text.NewStorageRequest(cmd, item.Key, item.Value, item.Flags, item.Exptime)

	status, err := execute(ctx, c, req, text.DecodeStorage)
	if err != nil {
		return false, err
	}

	c.stats.recordStore()
	return status == text.Stored, nil
}

// CompareAndSwap stores the item only if it was not modified since item.CAS
// was returned by Gets.
// Returns false if the item was modified (EXISTS) or deleted (NOT_FOUND).
func (c *Client) CompareAndSwap(ctx context.Context, item Item) (bool, error) {
	status, err := c.CompareAndSwapStatus(ctx, item)
	return status == text.Stored, err
}

// CompareAndSwapStatus is like CompareAndSwap but returns the server outcome:
// text.Stored, text.Exists, text.NotFound or text.NotStored.
func (c *Client) CompareAndSwapStatus(ctx context.Context, item Item) (text.StorageStatus, error) {
	req := text.NewCASRequest(item.Key, item.Value, item.Flags, item.Exptime, item.CAS)

	status, err := execute(ctx, c, req, text.DecodeStorage)
	if err != nil {
		return "", err
	}

	c.stats.recordStore()
	return status, nil
}

// Get retrieves a single item. found is false on a cache miss.
func (c *Client) Get(ctx context.Context, key string) (item Item, found bool, err error) {
	return c.getOne(ctx, text.CmdGet, key)
}

// Gets retrieves a single item with its CAS token.
func (c *Client) Gets(ctx context.Context, key string) (item Item, found bool, err error) {
	return c.getOne(ctx, text.CmdGets, key)
}

func (c *Client) getOne(ctx context.Context, cmd text.Command, key string) (Item, bool, error) {
	items, err := c.retrieve(ctx, cmd, []string{key})
	if err != nil {
		return Item{}, false, err
	}

	item, found := items[key]
	return item, found, nil
}

// GetMany retrieves several items in a single round-trip.
// Missing keys are absent from the returned map. Duplicate keys are sent once.
// An empty key list returns an empty map without contacting the server.
func (c *Client) GetMany(ctx context.Context, keys []string) (map[string]Item, error) {
	return c.retrieve(ctx, text.CmdGet, keys)
}

// GetsMany is like GetMany and also returns the CAS tokens.
func (c *Client) GetsMany(ctx context.Context, keys []string) (map[string]Item, error) {
	return c.retrieve(ctx, text.CmdGets, keys)
}

func (c *Client) retrieve(ctx context.Context, cmd text.Command, keys []string) (map[string]Item, error) {
	if len(keys) == 0 {
		return map[string]Item{}, nil
	}

	req := text.NewRetrievalRequest(cmd, keys...)

	found, err := execute(ctx, c, req, text.DecodeRetrieval)
	if err != nil {
		return nil, err
	}

	c.stats.recordGet(len(req.Keys), len(found))

	items := make(map[string]Item, len(found))
	for key, it := range found {
		items[key] = itemFromText(it)
	}
	return items, nil
}

// Delete removes an item. Returns false if the key does not exist.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	deleted, err := execute(ctx, c, text.NewDeleteRequest(key), text.DecodeDelete)
	if err != nil {
		return false, err
	}

	c.stats.recordDelete()
	return deleted, nil
}

// Touch updates the expiration time of an item. Returns false if the key does not exist.
func (c *Client) Touch(ctx context.Context, key string, exptime int64) (bool, error) {
	touched, err := execute(ctx, c, text.NewTouchRequest(key, exptime), text.DecodeTouch)
	if err != nil {
		return false, err
	}

	c.stats.recordTouch()
	return touched, nil
}

type arithmeticResult struct {
	value uint64
	found bool
}

func decodeArithmetic(req *text.Request, raw []byte) (arithmeticResult, error) {
	value, found, err := text.DecodeArithmetic(req, raw)
	return arithmeticResult{value: value, found: found}, err
}

// Increment adds delta to a numeric value and returns the new value.
// found is false if the key does not exist. The server wraps around at 2^64.
//
// Incrementing a non-numeric value returns a *text.ResponseError.
func (c *Client) Increment(ctx context.Context, key string, delta uint64) (value uint64, found bool, err error) {
	return c.arithmetic(ctx, text.CmdIncr, key, delta)
}

// Decrement subtracts delta from a numeric value and returns the new value.
// found is false if the key does not exist. The server floors the value at 0.
func (c *Client) Decrement(ctx context.Context, key string, delta uint64) (value uint64, found bool, err error) {
	return c.arithmetic(ctx, text.CmdDecr, key, delta)
}

func (c *Client) arithmetic(ctx context.Context, cmd text.Command, key string, delta uint64) (uint64, bool, error) {
	result, err := execute(ctx, c, text.NewArithmeticRequest(cmd, key, delta), decodeArithmetic)
	if err != nil {
		return 0, false, err
	}

	c.stats.recordArithmetic()
	return result.value, result.found, nil
}

// ServerStats returns the server statistics. Args selects a statistics group,
// for example "items", "slabs" or "settings".
// A statistic reported without a value maps to nil.
func (c *Client) ServerStats(ctx context.Context, args ...string) (map[string]*string, error) {
	return execute(ctx, c, text.NewStatsRequest(args...), text.DecodeStats)
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	return execute(ctx, c, text.NewVersionRequest(), text.DecodeVersion)
}

// FlushAll invalidates all items on the server.
func (c *Client) FlushAll(ctx context.Context) (bool, error) {
	return c.FlushAllAfter(ctx, 0)
}

// FlushAllAfter invalidates all items on the server after delay seconds.
func (c *Client) FlushAllAfter(ctx context.Context, delay int64) (bool, error) {
	return execute(ctx, c, text.NewFlushAllRequest(delay), text.DecodeFlushAll)
}
