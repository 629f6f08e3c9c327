package imagegen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached memoizes images by prompt, so a model that repeats the same scene
// call within ttl reuses the earlier illustration.
type Cached struct {
	next  Synthesizer
	cache *cache.Cache
}

func NewCached(next Synthesizer, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Synthesize(ctx context.Context, req Request) (string, error) {
	key := cacheKey(req)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}
	url, err := c.next.Synthesize(ctx, req)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(key, url)
	return url, nil
}

func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Class.String()))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt()))
	h.Write([]byte{0})
	h.Write([]byte(req.Reference))
	return hex.EncodeToString(h.Sum(nil))
}
