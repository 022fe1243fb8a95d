package settings

import (
	"context"
	"time"

	"github.com/kofalt/go-memoize"
	"github.com/patrickmn/go-cache"
)

// CachedProvider keeps the last successful fetch for ttl. Errors are not
// cached and concurrent fetches share one upstream call. A ttl of zero
// keeps the settings for the life of the process.
type CachedProvider struct {
	next     Provider
	memoizer *memoize.Memoizer
}

func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	expiration := ttl
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	return &CachedProvider{
		next: next,
		memoizer: &memoize.Memoizer{
			Storage: cache.New(expiration, 10*time.Minute),
		},
	}
}

// Fetch returns the cached settings or asks upstream. The upstream call is
// shared with concurrent callers, so it keeps ctx values but not its
// cancellation.
func (c *CachedProvider) Fetch(ctx context.Context) (Settings, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.memoizer.Memoize(CacheKey, func() (any, error) {
		return c.next.Fetch(shared)
	})
	if err != nil {
		return Settings{}, err
	}
	return v.(Settings), nil
}

// Invalidate drops the cached settings so the next Fetch goes upstream.
func (c *CachedProvider) Invalidate() {
	c.memoizer.Storage.Delete(CacheKey)
}
