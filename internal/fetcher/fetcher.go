// Package fetcher downloads candidate image URLs and filters out non-viable
// payloads.
package fetcher

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagepack/internal/batch"
)

// Config controls ImageFetcher behavior.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	MinBytes     int
	UserAgent    string
}

// ImageFetcher implements batch.Fetcher with a plain http.Client. The plain
// client is used here (instead of colly, which fetches the search pages)
// because candidate downloads need an explicit redirect budget, which
// http.Client.CheckRedirect gives directly.
type ImageFetcher struct {
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

var extensionByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

const defaultExtension = ".jpg"

// New builds an ImageFetcher.
func New(cfg Config, logger *zap.Logger) *ImageFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return errors.New("redirect budget exhausted")
			}
			return nil
		},
	}
	return &ImageFetcher{client: client, cfg: cfg, logger: logger}
}

// Fetch downloads one candidate. ok is false on any miss: transport failure,
// non-2xx status, or a payload under the minimum byte floor (error pages and
// tracking pixels masquerading as images). Misses are never errors; the
// caller just moves on to the next candidate.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (batch.Asset, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return batch.Asset{}, false
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("candidate fetch failed", zap.String("url", rawURL), zap.Error(err))
		return batch.Asset{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return batch.Asset{}, false
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Debug("candidate read failed", zap.String("url", rawURL), zap.Error(err))
		return batch.Asset{}, false
	}
	if len(data) < f.cfg.MinBytes {
		f.logger.Debug("candidate below size floor",
			zap.String("url", rawURL),
			zap.Int("bytes", len(data)),
		)
		return batch.Asset{}, false
	}

	return batch.Asset{
		Data:      data,
		Extension: classifyExtension(resp.Header.Get("Content-Type")),
	}, true
}

func classifyExtension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultExtension
	}
	if ext, ok := extensionByType[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return defaultExtension
}
