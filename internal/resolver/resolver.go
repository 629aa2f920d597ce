// Package resolver turns search phrases into candidate image URLs by
// scraping a third-party image-search surface.
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"imagepack/internal/metrics"
)

// Renderer produces a DOM snapshot of a page with JavaScript executed. Used
// as a fallback when static extraction finds nothing.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// Config controls SearchResolver behavior.
type Config struct {
	Endpoint      string
	UserAgent     string
	Timeout       time.Duration
	MaxCandidates int
}

// SearchResolver implements batch.Resolver against an image-search HTML
// surface. All failures collapse to an empty candidate list: against an
// uncontrolled surface a miss is an expected outcome, not an error.
type SearchResolver struct {
	cfg           Config
	baseCollector *colly.Collector
	renderer      Renderer
	strategies    []Strategy
	logger        *zap.Logger
}

// New builds a SearchResolver. renderer may be nil to disable the headless
// fallback tier.
func New(cfg Config, renderer Renderer, logger *zap.Logger) *SearchResolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &SearchResolver{
		cfg:           cfg,
		baseCollector: c,
		renderer:      renderer,
		strategies: []Strategy{
			metadataStrategy{},
			imageTagStrategy{},
			rawScanStrategy{},
		},
		logger: logger,
	}
}

// Resolve issues one search request for the phrase and extracts up to
// MaxCandidates image URLs, preserving the surface's own result ordering.
func (r *SearchResolver) Resolve(ctx context.Context, phrase string) []string {
	searchURL := fmt.Sprintf("%s?q=%s", r.cfg.Endpoint, url.QueryEscape(phrase))

	body, err := r.fetchPage(ctx, searchURL)
	if err != nil {
		r.logger.Debug("search fetch failed",
			zap.String("phrase", phrase),
			zap.Error(err),
		)
	}
	candidates := r.extract(body)

	if len(candidates) == 0 && r.renderer != nil {
		rendered, rerr := r.renderer.Render(ctx, searchURL)
		if rerr != nil {
			r.logger.Debug("headless render failed",
				zap.String("phrase", phrase),
				zap.Error(rerr),
			)
		} else {
			candidates = r.extract([]byte(rendered))
		}
	}
	return candidates
}

func (r *SearchResolver) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	collector := r.baseCollector.Clone()

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(resp *colly.Response) {
		body = append([]byte(nil), resp.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("search fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("search visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("search response failed: %w", fetchErr)
		}
		return body, nil
	}
}

func (r *SearchResolver) extract(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		doc = nil
	}
	for _, strategy := range r.strategies {
		urls := strategy.Extract(doc, raw)
		if len(urls) == 0 {
			continue
		}
		metrics.CandidatesExtracted(strategy.Name(), len(urls))
		if len(urls) > r.cfg.MaxCandidates {
			urls = urls[:r.cfg.MaxCandidates]
		}
		return urls
	}
	return nil
}
