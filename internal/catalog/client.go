// Package catalog searches a STAC API for the tiles of a cube request and
// translates the returned items into tile descriptors.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/stac"
)

// PageRecorder counts fetched search pages.
type PageRecorder interface {
	CatalogPage()
}

// Client handles communication with a STAC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	pageSize   int
	maxItems   int
	recorder   PageRecorder
}

// NewClient creates a new STAC API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:   slog.Default(),
		pageSize: 100,
		maxItems: 2000,
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithPaging sets the page size and the maximum number of items collected by
// one search.
func (c *Client) WithPaging(pageSize, maxItems int) *Client {
	if pageSize > 0 {
		c.pageSize = pageSize
	}
	if maxItems > 0 {
		c.maxItems = maxItems
	}
	return c
}

// WithRecorder reports every fetched page to r.
func (c *Client) WithRecorder(r PageRecorder) *Client {
	c.recorder = r
	return c
}

// SearchItems runs a POST /search and follows next links until the results
// are exhausted or the item limit is reached. Items are returned raw, in the
// order the API produced them.
func (c *Client) SearchItems(ctx context.Context, req stac.SearchRequest) ([]json.RawMessage, error) {
	if req.Limit == 0 {
		req.Limit = c.pageSize
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	method := http.MethodPost
	target := c.baseURL + "/search"
	var items []json.RawMessage
	for page := 1; ; page++ {
		result, err := c.fetch(ctx, method, target, body)
		if err != nil {
			return nil, err
		}
		if c.recorder != nil {
			c.recorder.CatalogPage()
		}

		items = append(items, result.Features...)
		c.logger.DebugContext(ctx, "catalog page fetched",
			slog.Int("page", page),
			slog.Int("feature_count", len(result.Features)),
			slog.Int("total", len(items)),
		)

		if len(items) >= c.maxItems {
			if len(items) > c.maxItems || result.NextLink() != nil {
				c.logger.WarnContext(ctx, "catalog search truncated",
					slog.Int("max_items", c.maxItems),
				)
			}
			return items[:c.maxItems], nil
		}

		next := result.NextLink()
		if next == nil || len(result.Features) == 0 {
			return items, nil
		}

		method, target, body, err = c.followLink(next, body)
		if err != nil {
			return nil, err
		}
	}
}

// followLink turns a next link into the method, URL, and body of the next
// page request.
func (c *Client) followLink(next *stac.SearchLink, prevBody []byte) (string, string, []byte, error) {
	target, err := c.resolve(next.Href)
	if err != nil {
		return "", "", nil, err
	}

	if !strings.EqualFold(next.Method, http.MethodPost) {
		return http.MethodGet, target, nil, nil
	}

	if len(next.Body) == 0 {
		return http.MethodPost, target, prevBody, nil
	}
	if !next.Merge {
		return http.MethodPost, target, next.Body, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(prevBody, &merged); err != nil {
		return "", "", nil, fmt.Errorf("failed to decode previous search body: %w", err)
	}
	var patch map[string]any
	if err := json.Unmarshal(next.Body, &patch); err != nil {
		return "", "", nil, fmt.Errorf("failed to decode next link body: %w", err)
	}
	for k, v := range patch {
		merged[k] = v
	}
	body, err := json.Marshal(merged)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to encode merged search body: %w", err)
	}
	return http.MethodPost, target, body, nil
}

// resolve makes a possibly relative link absolute against the base URL.
func (c *Client) resolve(href string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// fetch executes one search page request.
func (c *Client) fetch(ctx context.Context, method, target string, body []byte) (*stac.ItemCollection, error) {
	c.logger.DebugContext(ctx, "executing catalog search",
		slog.String("method", method),
		slog.String("url", target),
	)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", "stac-cube/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "catalog request failed",
			slog.String("error", err.Error()),
			slog.String("url", target),
		)
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "catalog returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)),
		)
		return nil, fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result stac.ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode catalog response",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	return &result, nil
}
