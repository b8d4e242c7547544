// Package search runs web queries for the research pipeline.
// Providers compose: a Tavily client wrapped by an enricher (optional
// page scraping) and a cache.
package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ppiankov/dossier/internal/cache"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/scrape"
	"github.com/ppiankov/dossier/internal/worker"
)

// ErrMissingAPIKey is returned when the search API key is not configured
var ErrMissingAPIKey = errors.New("search api key is not configured")

// Provider executes a single web query
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error)

// Search calls f
func (f ProviderFunc) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	return f(ctx, query, maxResults)
}

// NewFromConfig wires the Tavily client with its decorators.
// c may be nil to disable caching.
func NewFromConfig(cfg model.Config, c cache.Cache, logger *slog.Logger) (Provider, error) {
	limiter := worker.NewLimiter(cfg.Search.RequestsPerSecond, cfg.Search.Burst)

	tavily, err := NewTavily(cfg.Search, cfg.Proxy, limiter)
	if err != nil {
		return nil, err
	}
	var p Provider = tavily

	if cfg.Scrape.Enabled {
		pageLimiter := worker.NewLimiter(1, 2)
		p = NewEnricher(p, scrape.New(cfg.Scrape, cfg.Proxy, pageLimiter, logger), cfg.Scrape.MinContentChars, logger)
	}

	if c != nil {
		p = NewCached(p, c, "tavily", cfg.Cache.MemoryTTL)
	}
	return p, nil
}
