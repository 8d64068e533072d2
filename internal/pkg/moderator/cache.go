package moderator

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"postguard/internal/pkg/hash"
)

// VerdictCache keeps unsafe_content rejections by content digest so
// re-uploads of rejected bytes skip the detector. Approvals and failures are
// never stored: a safe verdict always needs a live detector run.
type VerdictCache struct {
	cache *expirable.LRU[string, *Verdict]
}

// NewVerdictCache returns nil when size is not positive, which disables caching.
func NewVerdictCache(size int, ttl time.Duration) *VerdictCache {
	if size <= 0 {
		return nil
	}
	return &VerdictCache{cache: expirable.NewLRU[string, *Verdict](size, nil, ttl)}
}

// Get returns the cached rejection for key.
func (c *VerdictCache) Get(key string) (*Verdict, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if ok && v != nil && !v.IsSafe {
		cacheHitsTotal.Inc()
		return v, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Add stores v under key when it is an unsafe_content rejection.
func (c *VerdictCache) Add(key string, v *Verdict) {
	if c == nil || key == "" || !cacheable(v) {
		return
	}
	c.cache.Add(key, v)
}

func cacheable(v *Verdict) bool {
	return v != nil && !v.IsSafe && v.Reason == ReasonUnsafeContent
}

// contentKey digests the item content, prefixed by media kind.
func contentKey(kind string, item *MediaItem) string {
	if err := item.Rewind(); err != nil {
		return ""
	}
	defer item.Rewind()
	sum, err := hash.NewSha256Hasher().ComputeHashFromReader(item.Content)
	if err != nil {
		return ""
	}
	return kind + ":" + sum.Hash
}
