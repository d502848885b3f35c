package content

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/chromedp"
)

var _ Fetcher = (*BrowserFetcher)(nil)

// BrowserFetcher renders pages in a remote Chrome instance. Navigation is
// serialized: one page is open at a time.
type BrowserFetcher struct {
	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	extractor     *Extractor
	limiter       *HostRateLimiter
	timeout       time.Duration
}

// NewBrowserFetcher connects to the DevTools endpoint at wsURL, retrying with
// exponential backoff until maxElapsed has passed.
func NewBrowserFetcher(ctx context.Context, wsURL string, extractor *Extractor, limiter *HostRateLimiter, timeout, maxElapsed time.Duration) (*BrowserFetcher, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), wsURL)

	var browserCtx context.Context
	var cancelBrowser context.CancelFunc

	connect := func() error {
		browserCtx, cancelBrowser = chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = maxElapsed

	notify := func(err error, wait time.Duration) {
		slog.Warn("Browser not reachable, retrying", "url", wsURL, "retry_in", wait, "error", err)
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), notify); err != nil {
		cancelAlloc()
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", wsURL, err)
	}

	slog.Info("Connected to browser", "url", wsURL)

	return &BrowserFetcher{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		extractor:     extractor,
		limiter:       limiter,
		timeout:       timeout,
	}, nil
}

func (b *BrowserFetcher) FetchAndClean(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("item has no link")
	}

	if err := b.limiter.Wait(ctx, url); err != nil {
		return "", fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	page, err := b.render(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}

	text, err := b.extractor.Run([]byte(page), url)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	return text, nil
}

func (b *BrowserFetcher) render(ctx context.Context, url string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()

	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	if b.timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, b.timeout)
		defer cancel()
	}

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}

	return html, nil
}

// Close disconnects from the browser.
func (b *BrowserFetcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancelBrowser()
	b.cancelAlloc()
}
