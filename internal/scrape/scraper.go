package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/util"
	"github.com/ppiankov/dossier/internal/worker"
)

// ErrDisallowed is returned for URLs excluded by robots.txt
var ErrDisallowed = errors.New("disallowed by robots.txt")

// DefaultUserAgent identifies the scraper to site operators
const DefaultUserAgent = "dossier/1.0 (+https://github.com/ppiankov/dossier)"

// Page is the readable content of one URL
type Page struct {
	URL   string
	Title string
	Text  string
}

// Scraper fetches pages politely: robots.txt first, then a per-host rate limit
type Scraper struct {
	fetcher  *Fetcher
	robots   *RobotsChecker
	limiter  *worker.Limiter
	maxChars int
	logger   *slog.Logger
	delayed  sync.Map // hosts whose crawl delay was applied
}

// New builds a Scraper from configuration. limiter may be nil.
func New(cfg model.ScrapeConfig, proxy model.ProxyConfig, limiter *worker.Limiter, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var transport http.RoundTripper = util.NewTransport(proxy.HTTP, proxy.HTTPS, proxy.NoProxy)

	s := &Scraper{
		fetcher:  NewFetcher(timeout, ua, cfg.MaxBytes, transport),
		limiter:  limiter,
		maxChars: cfg.MaxChars,
		logger:   logger,
	}
	if cfg.RespectRobots {
		s.robots = NewRobotsChecker(ua, timeout, transport)
	}
	return s
}

// Scrape returns the visible text of rawURL
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	if s.robots != nil {
		allowed, delay, err := s.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		if delay > 0 && s.limiter != nil {
			if host, err := worker.HostKey(rawURL); err == nil {
				if _, seen := s.delayed.LoadOrStore(host, true); !seen {
					s.limiter.SetRate(host, 1/delay.Seconds(), 1)
				}
			}
		}
	}

	if s.limiter != nil {
		if err := s.limiter.WaitURL(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if ct := strings.ToLower(res.ContentType); ct != "" && !strings.Contains(ct, "html") && !strings.HasPrefix(ct, "text/") {
		return nil, fmt.Errorf("unsupported content type %q", res.ContentType)
	}

	title, text, err := ExtractText(res.HTML, s.maxChars)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	s.logger.Debug("page scraped", "url", rawURL, "chars", len(text))
	return &Page{URL: res.FinalURL, Title: title, Text: text}, nil
}
