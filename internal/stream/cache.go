package stream

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// MetaCache keeps resolved file metadata for a bounded TTL so repeated
// stream requests for the same message skip the upstream round trip.
type MetaCache struct {
	cache *lru.Cache
	ttl   time.Duration
}

type metaEntry struct {
	meta    *FileMeta
	expires time.Time
}

func NewMetaCache(size int, ttl time.Duration) (*MetaCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MetaCache{cache: cache, ttl: ttl}, nil
}

func (c *MetaCache) Get(msgID int) (*FileMeta, bool) {
	v, ok := c.cache.Get(msgID)
	if !ok {
		return nil, false
	}
	entry := v.(metaEntry)
	if time.Now().After(entry.expires) {
		c.cache.Remove(msgID)
		return nil, false
	}
	return entry.meta, true
}

func (c *MetaCache) Set(msgID int, meta *FileMeta) {
	c.cache.Add(msgID, metaEntry{meta: meta, expires: time.Now().Add(c.ttl)})
}

func (c *MetaCache) Remove(msgID int) {
	c.cache.Remove(msgID)
}
