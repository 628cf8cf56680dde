package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPFeedClient fetches feed items from a JSON endpoint returning
// [{"id": ..., "text": ...}, ...]. Covers webhook-bridge style feeds
// that mirror a social stream.
type HTTPFeedClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPFeedClient creates a feed client for the given endpoint.
func NewHTTPFeedClient(endpoint string, timeout time.Duration) *HTTPFeedClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFeedClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

var _ FeedClient = (*HTTPFeedClient)(nil)

// Fetch returns the current feed page.
func (c *HTTPFeedClient) Fetch(ctx context.Context) ([]FeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	var items []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	out := make([]FeedItem, 0, len(items))
	for _, it := range items {
		out = append(out, FeedItem{ID: it.ID, Text: it.Text})
	}
	return out, nil
}
