package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Fetcher retrieves a share link's HTML over the network. A failed fetch is
// retried once after a short backoff before ErrFetch is surfaced.
type Fetcher struct {
	client  *http.Client
	backoff time.Duration
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. If client is nil a default with a 15s timeout
// is used.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{
		client:  client,
		backoff: time.Second,
		logger:  slog.Default(),
	}
}

// Fetch downloads url, honoring ctx for cancellation.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := f.fetchOnce(ctx, url)
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f.logger.Warn("share link fetch failed, retrying", "url", url, "error", err)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.backoff):
	}

	body, retryErr := f.fetchOnce(ctx, url)
	if retryErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrFetch, retryErr)
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
