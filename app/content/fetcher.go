// Package content fetches live article pages and reduces them to sanitized text.
package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Fetcher downloads the page at url and returns its sanitized text.
type Fetcher interface {
	FetchAndClean(ctx context.Context, url string) (string, error)
}

const maxPageSize = 10 << 20

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher fetches pages with a plain HTTP GET.
type HTTPFetcher struct {
	httpClient *http.Client
	extractor  *Extractor
	limiter    *HostRateLimiter
	userAgent  string
	timeout    time.Duration
}

func NewHTTPFetcher(httpClient *http.Client, extractor *Extractor, limiter *HostRateLimiter, userAgent string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: httpClient,
		extractor:  extractor,
		limiter:    limiter,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (f *HTTPFetcher) FetchAndClean(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("item has no link")
	}

	if err := f.limiter.Wait(ctx, url); err != nil {
		return "", fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	data, err := f.fetchArticleContent(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article content: %w", err)
	}

	text, err := f.extractor.Run(data, url)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	return text, nil
}

func (f *HTTPFetcher) fetchArticleContent(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	utf8Reader, err := charset.NewReader(resp.Body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode charset: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(utf8Reader, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
