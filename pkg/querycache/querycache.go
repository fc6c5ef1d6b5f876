// Package querycache is a TTL read-through cache for query results. Reads
// hit an in-memory map first and fall back to the durable store; writes land
// in memory synchronously and are flushed to the store by a single writer
// goroutine, so durable writes never reorder.
package querycache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pocketumami/pocketumami/pkg/storage"
)

const writeQueueDepth = 128

// Record is one cached query result. StoredAt is epoch milliseconds; Data is
// the result payload as the caller serialized it.
type Record struct {
	StoredAt int64           `json:"storedAt"`
	Data     json.RawMessage `json:"data"`
}

type write struct {
	key    string
	record []byte
	// A non-nil barrier marks a flush marker instead of a record; the writer
	// closes it once everything queued ahead has been applied.
	barrier chan struct{}
}

// Cache layers an in-memory map over a durable store. Storage failures are
// absorbed: a read error is a miss, a write error is logged and dropped.
type Cache struct {
	store storage.Store
	log   *zap.Logger

	mu  sync.RWMutex
	mem map[string]Record

	writes chan write
	done   chan struct{}

	now func() time.Time
}

// New creates a cache over store and starts its writer goroutine. Call Close
// to flush pending writes.
func New(store storage.Store, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{
		store:  store,
		log:    log,
		mem:    make(map[string]Record),
		writes: make(chan write, writeQueueDepth),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go c.writer()
	return c
}

// Get returns the cached record for key, consulting memory first and the
// durable store second. ok is false on a miss or any storage failure.
func (c *Cache) Get(ctx context.Context, instanceID, key string) (Record, bool) {
	storageKey := storageKey(instanceID, key)

	c.mu.RLock()
	rec, ok := c.mem[storageKey]
	c.mu.RUnlock()
	if ok {
		return rec, true
	}

	raw, err := c.store.Get(ctx, storageKey)
	if err != nil {
		if err != storage.ErrNotFound {
			c.log.Debug("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return Record{}, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Corrupt record, treat as a miss. It gets overwritten on the next Set.
		c.log.Debug("cache record corrupt", zap.String("key", key), zap.Error(err))
		return Record{}, false
	}

	c.mu.Lock()
	c.mem[storageKey] = rec
	c.mu.Unlock()
	return rec, true
}

// Set stores data under key. The in-memory copy is visible immediately; the
// durable write is enqueued and performed in arrival order.
func (c *Cache) Set(ctx context.Context, instanceID, key string, data json.RawMessage) {
	rec := Record{StoredAt: c.now().UnixMilli(), Data: data}
	storageKey := storageKey(instanceID, key)

	c.mu.Lock()
	c.mem[storageKey] = rec
	c.mu.Unlock()

	encoded, err := json.Marshal(rec)
	if err != nil {
		c.log.Warn("cache record not serializable", zap.String("key", key), zap.Error(err))
		return
	}

	select {
	case c.writes <- write{key: storageKey, record: encoded}:
	default:
		// Writer is far behind; the memory copy stays authoritative and the
		// durable copy catches up on the next Set.
		c.log.Warn("cache write queue full, dropping durable write", zap.String("key", key))
	}
}

// IsFresh reports whether a record stored at storedAt is still within ttl.
func (c *Cache) IsFresh(storedAt int64, ttl time.Duration) bool {
	return c.now().UnixMilli()-storedAt <= ttl.Milliseconds()
}

// Clear drops every cached record, memory and durable. Pending writes are
// flushed first so none of them resurrects a record after the delete.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.mem = make(map[string]Record)
	c.mu.Unlock()

	c.flush()
	return c.store.DeletePrefix(ctx, "cache/")
}

// ClearInstance drops all cached records belonging to one instance.
func (c *Cache) ClearInstance(ctx context.Context, instanceID string) error {
	prefix := "cache/" + instanceID + "/"
	c.mu.Lock()
	for key := range c.mem {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.mem, key)
		}
	}
	c.mu.Unlock()

	c.flush()
	return c.store.DeletePrefix(ctx, prefix)
}

// flush blocks until every write queued so far has reached the store.
func (c *Cache) flush() {
	barrier := make(chan struct{})
	c.writes <- write{barrier: barrier}
	<-barrier
}

// Close stops the writer after it drains pending writes.
func (c *Cache) Close() {
	close(c.writes)
	<-c.done
}

func (c *Cache) writer() {
	defer close(c.done)
	for w := range c.writes {
		if w.barrier != nil {
			close(w.barrier)
			continue
		}
		if err := c.store.Set(context.Background(), w.key, w.record); err != nil {
			// One failed write must not wedge the queue.
			c.log.Warn("cache write failed", zap.String("key", w.key), zap.Error(err))
		}
	}
}

// storageKey hashes the logical key so arbitrary query strings become
// fixed-width store keys under the instance's prefix.
func storageKey(instanceID, key string) string {
	return fmt.Sprintf("cache/%s/%s", instanceID, strconv.FormatUint(xxhash.Sum64String(key), 16))
}
