package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// HeadlessConfig controls the chromedp fallback renderer.
type HeadlessConfig struct {
	MaxParallel int
	UserAgent   string
	NavTimeout  time.Duration
}

// ChromeRenderer renders search pages with headless Chrome via chromedp. The
// search surface increasingly assembles results client-side; when the static
// markup carries no candidates a rendered DOM snapshot often still does.
type ChromeRenderer struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	sem           chan struct{}
	timeout       time.Duration
	logger        *zap.Logger
}

// NewChromeRenderer starts a shared headless browser and returns a renderer
// limited to cfg.MaxParallel concurrent tabs.
func NewChromeRenderer(cfg HeadlessConfig, logger *zap.Logger) (*ChromeRenderer, error) {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromeRenderer{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		sem:           make(chan struct{}, cfg.MaxParallel),
		timeout:       cfg.NavTimeout,
		logger:        logger,
	}, nil
}

// Render navigates a fresh tab to rawURL and returns the post-JS DOM.
func (r *ChromeRenderer) Render(ctx context.Context, rawURL string) (string, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("render slot wait: %w", ctx.Err())
	}
	defer func() { <-r.sem }()

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", rawURL, err)
	}
	return html, nil
}

// Close tears down the shared browser.
func (r *ChromeRenderer) Close() {
	if r == nil {
		return
	}
	r.browserCancel()
	r.allocCancel()
}
