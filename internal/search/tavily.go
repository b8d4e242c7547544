package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/util"
	"github.com/ppiankov/dossier/internal/worker"
)

const tavilyLimiterKey = "tavily"

// Tavily queries the Tavily search API
type Tavily struct {
	apiKey     string
	baseURL    string
	depth      string
	httpClient *http.Client
	limiter    *worker.Limiter
}

type tavilyRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		Score      float64 `json:"score"`
		RawContent *string `json:"raw_content"`
	} `json:"results"`
}

type tavilyError struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

// NewTavily creates a Tavily client. limiter may be nil.
func NewTavily(cfg model.SearchConfig, proxy model.ProxyConfig, limiter *worker.Limiter) (*Tavily, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	depth := cfg.Depth
	if depth == "" {
		depth = "advanced"
	}

	return &Tavily{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		depth:   depth,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: util.NewTransport(proxy.HTTP, proxy.HTTPS, proxy.NoProxy),
		},
		limiter: limiter,
	}, nil
}

// Search runs one query
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx, tavilyLimiterKey); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(tavilyRequest{
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: t.depth,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr tavilyError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Detail.Error != "" {
			return nil, fmt.Errorf("tavily error (%d): %s", resp.StatusCode, apiErr.Detail.Error)
		}
		return nil, fmt.Errorf("tavily error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		hit := model.SearchHit{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		}
		if r.RawContent != nil {
			hit.RawContent = *r.RawContent
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
