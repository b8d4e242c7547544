package search

import (
	"context"
	"log/slog"

	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/scrape"
)

// PageScraper fetches the readable text of a URL
type PageScraper interface {
	Scrape(ctx context.Context, rawURL string) (*scrape.Page, error)
}

// Enricher scrapes hits whose snippet is shorter than minChars
type Enricher struct {
	next     Provider
	scraper  PageScraper
	minChars int
	logger   *slog.Logger
}

// NewEnricher wraps next with page scraping
func NewEnricher(next Provider, scraper PageScraper, minChars int, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Enricher{next: next, scraper: scraper, minChars: minChars, logger: logger}
}

// Search runs the query then fills thin hits from their pages.
// Scrape failures leave the hit unchanged.
func (e *Enricher) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	hits, err := e.next.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	for i := range hits {
		h := &hits[i]
		if h.URL == "" || h.RawContent != "" || len(h.Content) >= e.minChars {
			continue
		}
		page, err := e.scraper.Scrape(ctx, h.URL)
		if err != nil {
			e.logger.Debug("enrichment skipped", "url", h.URL, "error", err)
			continue
		}
		if len(page.Text) <= len(h.Content) {
			continue
		}
		h.RawContent = page.Text
		h.Content = page.Text
		if h.Title == "" {
			h.Title = page.Title
		}
	}
	return hits, nil
}
