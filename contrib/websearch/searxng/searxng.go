// Package searxng implements the web retriever against a SearXNG instance's
// JSON API. SearXNG is self-hosted, so the base URL always comes from
// deployment configuration.
package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	cserrors "github.com/citeseek/citeseek/errors"
	"github.com/citeseek/citeseek/preprocess"
	"github.com/citeseek/citeseek/search"
)

// Config holds SearXNG client configuration.
type Config struct {
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	Language   string // e.g. "en", "zh"; empty lets the instance decide
}

// DefaultConfig returns defaults for a local instance.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:    baseURL,
		MaxResults: 5,
		Timeout:    10 * time.Second,
	}
}

// Client queries SearXNG. Safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
}

var _ search.WebRetriever = (*Client)(nil)

// New creates a SearXNG client.
func New(config *Config) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("SearXNG base URL not configured")
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

type searxngResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

// Search implements search.WebRetriever. Scores derive from result rank:
// the first result gets 1.0 and each following one decays linearly, so the
// relevance floor applies uniformly to web and document evidence.
func (c *Client) Search(ctx context.Context, query string) ([]search.WebHit, error) {
	endpoint, err := c.buildURL(query)
	if err != nil {
		return nil, err
	}

	resp, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	limit := c.config.MaxResults
	if limit > len(resp.Results) {
		limit = len(resp.Results)
	}

	hits := make([]search.WebHit, 0, limit)
	for i := 0; i < limit; i++ {
		result := resp.Results[i]
		if result.URL == "" {
			continue
		}
		content := preprocess.CleanSnippet(result.Content)
		if result.Title != "" {
			content = result.Title + ": " + content
		}
		hits = append(hits, search.WebHit{
			SourceURL: result.URL,
			Content:   content,
			Score:     rankScore(i, c.config.MaxResults),
		})
	}
	return hits, nil
}

func (c *Client) buildURL(query string) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid SearXNG base URL: %w", err)
	}
	base = base.JoinPath("search")

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	if c.config.Language != "" {
		params.Set("language", c.config.Language)
	}
	base.RawQuery = params.Encode()
	return base.String(), nil
}

// fetch performs the request with one retry on transient failures.
func (c *Client) fetch(ctx context.Context, endpoint string) (*searxngResponse, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(300 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("SearXNG request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
		httpResp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}
		if httpResp.StatusCode >= 500 {
			lastErr = fmt.Errorf("SearXNG server error (status %d)", httpResp.StatusCode)
			continue
		}
		if httpResp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("SearXNG error (status %d): %s", httpResp.StatusCode, string(body))
		}

		var resp searxngResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode SearXNG response: %w", err)
		}
		return &resp, nil
	}
	return nil, fmt.Errorf("searxng: %w: %v", cserrors.ErrProviderUnavailable, lastErr)
}

// rankScore maps a zero-based result rank onto (0, 1].
func rankScore(rank, of int) float32 {
	if of <= 1 {
		return 1
	}
	return 1 - float32(rank)/float32(of)
}
