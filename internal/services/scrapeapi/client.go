package scrapeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.scrapestack.example.com"
	defaultPageLimit   = 50
	defaultHTTPTimeout = 30 * time.Second
)

// Sentinel errors callers branch on when deciding how a scrape failure should
// surface in the run.
var (
	ErrNotConfigured = errors.New("scrape api not configured")
	ErrForbidden     = errors.New("scrape api credentials rejected")
	ErrNotFound      = errors.New("source not found")
	ErrRateLimited   = errors.New("scrape api rate limited")
)

// Client wraps the upstream content scraping API.
type Client struct {
	apiKey     string
	baseURL    string
	pageLimit  int
	httpClient *http.Client
}

// Option customizes the scrape client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithPageLimit caps how many posts a single fetch requests.
func WithPageLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.pageLimit = limit
		}
	}
}

// NewClient constructs a scrape API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		pageLimit:  defaultPageLimit,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// FetchedItem is one media entry scraped from a source profile. Carousel
// posts yield one entry per frame sharing the same PostRef.
type FetchedItem struct {
	MediaURL      string     `json:"media_url"`
	PostRef       string     `json:"post_ref"`
	MimeType      string     `json:"mime_type"`
	CarouselPos   int        `json:"carousel_pos"`
	CarouselTotal int        `json:"carousel_total"`
	PostedAt      *time.Time `json:"posted_at"`
}

type fetchResponse struct {
	Items []FetchedItem `json:"items"`
	Error string        `json:"error"`
}

// FetchItems returns the latest posts from a source profile.
func (c *Client) FetchItems(ctx context.Context, sourceHandle string) ([]FetchedItem, error) {
	sourceHandle = strings.TrimSpace(sourceHandle)
	if sourceHandle == "" {
		return nil, errors.New("fetch items: source handle required")
	}
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	endpoint, err := url.JoinPath(c.baseURL, "/v1/profiles", url.PathEscape(sourceHandle), "posts")
	if err != nil {
		return nil, fmt.Errorf("fetch items: build url: %w", err)
	}
	endpoint += fmt.Sprintf("?limit=%d", c.pageLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch items: request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch items: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch items: read body: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var parsed fetchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("fetch items: decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("fetch items: api error: %s", strings.TrimSpace(parsed.Error))
	}
	return parsed.Items, nil
}

// FetchMedia downloads the raw bytes behind a scraped media URL.
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	mediaURL = strings.TrimSpace(mediaURL)
	if mediaURL == "" {
		return nil, "", errors.New("fetch media: url required")
	}
	if c.apiKey == "" {
		return nil, "", ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: read body: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status < http.StatusMultipleChoices:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: http %d", ErrForbidden, status)
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("scrape api http %d: %s", status, strings.TrimSpace(string(body)))
	}
}
