package fingerprint

import (
	"encoding/binary"
	"time"

	"github.com/coocood/freecache"
	"github.com/twmb/murmur3"
)

// CachedEngine memoizes fingerprints by content so resubmitting the same
// bytes skips decoding. Failures are never cached.
type CachedEngine struct {
	next   Hasher
	cache  *freecache.Cache
	expire int
}

// NewCachedEngine wraps next with a freecache of sizeBytes (freecache enforces a 512KB minimum)
func NewCachedEngine(next Hasher, sizeBytes int, ttl time.Duration) *CachedEngine {
	return &CachedEngine{
		next:   next,
		cache:  freecache.NewCache(sizeBytes),
		expire: int(ttl / time.Second),
	}
}

// Fingerprint returns the cached fingerprint for data or computes it
func (c *CachedEngine) Fingerprint(data []byte) (Fingerprint, error) {
	key := contentKey(data)

	if cached, err := c.cache.Get(key); err == nil {
		return Fingerprint(cached), nil
	}

	fp, err := c.next.Fingerprint(data)
	if err != nil {
		return nil, err
	}

	_ = c.cache.Set(key, fp, c.expire)
	return fp, nil
}

// HitRate returns the cache hit ratio since creation
func (c *CachedEngine) HitRate() float64 {
	return c.cache.HitRate()
}

func contentKey(data []byte) []byte {
	h1, h2 := murmur3.Sum128(data)
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], h1)
	binary.BigEndian.PutUint64(key[8:], h2)
	return key
}
