package search

import (
	"context"
	"strconv"
	"time"

	"github.com/ppiankov/dossier/internal/cache"
	"github.com/ppiankov/dossier/internal/model"
)

// Cached memoizes successful searches by provider, query and result count
type Cached struct {
	next      Provider
	cache     cache.Cache
	namespace string
	ttl       time.Duration
}

// NewCached wraps next with c
func NewCached(next Provider, c cache.Cache, namespace string, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: c, namespace: namespace, ttl: ttl}
}

// Search serves from the cache when possible. Errors are never cached.
func (c *Cached) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	key := cache.Key("search", c.namespace, query, strconv.Itoa(maxResults))

	var hits []model.SearchHit
	if cache.GetJSON(c.cache, key, &hits) {
		return hits, nil
	}

	hits, err := c.next.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	_ = cache.SetJSON(c.cache, key, hits, c.ttl)
	return hits, nil
}
