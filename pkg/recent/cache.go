// Package recent keeps the last N admitted entries of a stream, in arrival
// order, and refuses entries whose identity is already present.
package recent

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// Identity identifies the message an entry was built from. The zero value
// means the message has no identity and is never considered a duplicate.
type Identity string

const NoIdentity Identity = ""

// OffsetIdentity identifies a message by its position in a partition.
func OffsetIdentity(partition int32, offset int64) Identity {
	return Identity("offset:" + strconv.FormatInt(int64(partition), 10) + "/" + strconv.FormatInt(offset, 10))
}

// KeyIdentity identifies a message by its explicit key.
func KeyIdentity(key []byte) Identity {
	if len(key) == 0 {
		return NoIdentity
	}
	return Identity("key:" + string(key))
}

// IdentityFor prefers the broker offset, falls back to the key, and returns
// NoIdentity when neither is usable.
func IdentityFor(partition int32, offset int64, key []byte) Identity {
	if offset >= 0 {
		return OffsetIdentity(partition, offset)
	}
	return KeyIdentity(key)
}

// Entry is one cached message worth of records.
type Entry[T any] struct {
	ID        Identity `json:"-"`
	Partition int32    `json:"partition"`
	Offset    int64    `json:"offset"`
	// Timestamp is the record timestamp in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	Data      T     `json:"data"`
}

// NewEntry builds an entry, stamping it with now when ts is zero.
func NewEntry[T any](partition int32, offset int64, key []byte, ts time.Time, data T) Entry[T] {
	if ts.IsZero() {
		ts = time.Now()
	}
	return Entry[T]{
		ID:        IdentityFor(partition, offset, key),
		Partition: partition,
		Offset:    offset,
		Timestamp: ts.UnixMilli(),
		Data:      data,
	}
}

// Cache is a fixed capacity, insertion ordered buffer with identity based
// deduplication. It is safe for concurrent use.
type Cache[T any] struct {
	mtx      sync.RWMutex
	capacity int
	entries  []Entry[T]
	seen     map[Identity]struct{}
	onEvict  func(Entry[T])
}

// New returns an empty cache holding at most capacity entries. onEvict, when
// not nil, is called for every evicted entry while the cache lock is held.
func New[T any](capacity int, onEvict func(Entry[T])) (*Cache[T], error) {
	if capacity <= 0 {
		return nil, errors.New("cache capacity must be greater than zero")
	}

	return &Cache[T]{
		capacity: capacity,
		entries:  make([]Entry[T], 0, capacity),
		seen:     make(map[Identity]struct{}, capacity),
		onEvict:  onEvict,
	}, nil
}

// Admit appends e unless an entry with the same identity is cached. The
// oldest entries are evicted when capacity is exceeded. It reports whether e
// was added.
func (c *Cache[T]) Admit(e Entry[T]) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if e.ID != NoIdentity {
		if _, dup := c.seen[e.ID]; dup {
			return false
		}
		c.seen[e.ID] = struct{}{}
	}

	if len(c.entries) == c.capacity {
		evicted := c.entries[0]
		if evicted.ID != NoIdentity {
			delete(c.seen, evicted.ID)
		}
		if c.onEvict != nil {
			c.onEvict(evicted)
		}

		// shift down in place, the backing array never grows past capacity
		copy(c.entries, c.entries[1:])
		c.entries = c.entries[:len(c.entries)-1]
	}

	c.entries = append(c.entries, e)
	return true
}

// Snapshot returns a copy of the cached entries, oldest first.
func (c *Cache[T]) Snapshot() []Entry[T] {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	out := make([]Entry[T], len(c.entries))
	copy(out, c.entries)
	return out
}

// Contains reports whether an entry with the given identity is cached.
func (c *Cache[T]) Contains(id Identity) bool {
	if id == NoIdentity {
		return false
	}

	c.mtx.RLock()
	defer c.mtx.RUnlock()

	_, ok := c.seen[id]
	return ok
}

func (c *Cache[T]) Len() int {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	return len(c.entries)
}

func (c *Cache[T]) Capacity() int {
	return c.capacity
}

// Reset drops all entries without calling the eviction callback.
func (c *Cache[T]) Reset() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	clear(c.entries)
	c.entries = c.entries[:0]
	clear(c.seen)
}
