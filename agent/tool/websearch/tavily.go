package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

var ErrSearchUnavailable = errors.New("search provider unavailable")

const (
	defaultBaseURL       = "https://api.tavily.com"
	defaultMaxResults    = 5
	maxResponseSizeBytes = 2 << 20
)

type Config struct {
	APIKey      string        `envconfig:"API_KEY" split_words:"true"`
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.tavily.com"`
	MaxResults  int           `envconfig:"MAX_RESULTS" split_words:"true" default:"5"`
	SearchDepth string        `envconfig:"SEARCH_DEPTH" split_words:"true" default:"basic"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"20s"`
}

// ClientOption customizes TavilyClient.
type ClientOption func(*TavilyClient)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *TavilyClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// TavilyClient queries the Tavily search REST API.
type TavilyClient struct {
	baseURL    string
	apiKey     string
	depth      string
	maxResults int
	httpClient *http.Client
}

var _ contractx.SearchProvider = (*TavilyClient)(nil)

type searchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func NewTavilyClient(cfg Config, opts ...ClientOption) (*TavilyClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("tavily api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid tavily url: %w", err)
	}

	depth := strings.TrimSpace(cfg.SearchDepth)
	if depth == "" {
		depth = "basic"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	c := &TavilyClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		depth:      depth,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Search returns at most maxResults hits; hits without a URL are dropped
// since they cannot be cited.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) (contractx.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return contractx.SearchResult{}, fmt.Errorf("%w: empty query", contractx.ErrValidation)
	}
	if maxResults <= 0 || maxResults > c.maxResults {
		maxResults = c.maxResults
	}

	body, err := json.Marshal(searchRequest{
		Query:         query,
		SearchDepth:   c.depth,
		MaxResults:    maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return contractx.SearchResult{}, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return contractx.SearchResult{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return contractx.SearchResult{}, ctx.Err()
		}
		return contractx.SearchResult{}, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return contractx.SearchResult{}, fmt.Errorf("%w: read response: %v", ErrSearchUnavailable, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.SearchResult{}, fmt.Errorf("%w: http status=%d", ErrSearchUnavailable, resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.SearchResult{}, fmt.Errorf("%w: decode response: %v", ErrSearchUnavailable, err)
	}

	out := contractx.SearchResult{Answer: strings.TrimSpace(parsed.Answer)}
	for _, r := range parsed.Results {
		if len(out.Hits) == maxResults {
			break
		}
		link := strings.TrimSpace(r.URL)
		if link == "" {
			continue
		}
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = link
		}
		out.Hits = append(out.Hits, contractx.SearchHit{
			Title:   title,
			URL:     link,
			Snippet: strings.TrimSpace(r.Content),
			Score:   r.Score,
		})
	}
	return out, nil
}
