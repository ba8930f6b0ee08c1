package scanner

import (
	"sync"
	"time"

	"github.com/dgryski/go-rendezvous"
	"github.com/google/uuid"

	"github.com/reelbox/reelbox/internal/fsprobe"
)

const defaultCacheShards = 8

// cacheEntry is the last probe taken for a path, keyed for invalidation by
// the size/mtime pair observed at probe time — a rescan only trusts it if
// both still match.
type cacheEntry struct {
	size  int64
	mtime time.Time
	res   fsprobe.Result
}

// probeCache is sharded by index ID via rendezvous hashing so that repeated
// scans of the same index consistently land on the same shard's map rather
// than contending on one lock across every concurrently-scanning index.
type probeCache struct {
	table  *rendezvous.Rendezvous
	shards map[string]*sync.Map
}

func newProbeCache(n int) *probeCache {
	if n <= 0 {
		n = defaultCacheShards
	}
	names := make([]string, n)
	shards := make(map[string]*sync.Map, n)
	for i := 0; i < n; i++ {
		name := shardName(i)
		names[i] = name
		shards[name] = &sync.Map{}
	}
	return &probeCache{
		table:  rendezvous.New(names, rendezvousHash),
		shards: shards,
	}
}

func (c *probeCache) shardFor(indexID uuid.UUID) *sync.Map {
	return c.shards[c.table.Lookup(indexID.String())]
}

func (c *probeCache) lookup(indexID uuid.UUID, path string, size int64, mtime time.Time) (fsprobe.Result, bool) {
	shard := c.shardFor(indexID)
	v, ok := shard.Load(cacheKey(indexID, path))
	if !ok {
		return fsprobe.Result{}, false
	}
	e := v.(cacheEntry)
	if e.size != size || !e.mtime.Equal(mtime) {
		return fsprobe.Result{}, false
	}
	return e.res, true
}

func (c *probeCache) store(indexID uuid.UUID, path string, res fsprobe.Result) {
	shard := c.shardFor(indexID)
	shard.Store(cacheKey(indexID, path), cacheEntry{size: res.Size, mtime: res.MTime, res: res})
}

func cacheKey(indexID uuid.UUID, path string) string {
	return indexID.String() + "\x00" + path
}

func shardName(i int) string {
	return "shard-" + string(rune('a'+i))
}

// rendezvousHash is the scoring function go-rendezvous needs: it only has
// to be a reasonably distributed uint64, not cryptographic.
func rendezvousHash(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
