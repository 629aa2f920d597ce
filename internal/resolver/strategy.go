package resolver

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy extracts candidate image URLs from one search result page. The
// search surface is unversioned third-party markup, so every strategy is a
// best-effort heuristic; returning nothing is normal. Strategies are tried
// in priority order until one yields at least one locator, which keeps the
// resolver's control flow untouched when a new tier is added.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document, raw []byte) []string
}

// metadataStrategy reads the per-result metadata attribute: each result
// anchor carries a JSON blob whose "murl" field is the canonical media URL.
type metadataStrategy struct{}

func (metadataStrategy) Name() string { return "metadata" }

func (metadataStrategy) Extract(doc *goquery.Document, _ []byte) []string {
	if doc == nil {
		return nil
	}
	var urls []string
	doc.Find("a.iusc").Each(func(_ int, sel *goquery.Selection) {
		blob, ok := sel.Attr("m")
		if !ok {
			return
		}
		var meta struct {
			MediaURL string `json:"murl"`
		}
		if err := json.Unmarshal([]byte(blob), &meta); err != nil {
			return
		}
		if isAbsoluteHTTP(meta.MediaURL) {
			urls = append(urls, meta.MediaURL)
		}
	})
	return urls
}

// imageTagStrategy falls back to loose <img> elements, keeping only absolute
// http(s) sources. data-src covers lazily loaded thumbnails.
type imageTagStrategy struct{}

func (imageTagStrategy) Name() string { return "img-tag" }

func (imageTagStrategy) Extract(doc *goquery.Document, _ []byte) []string {
	if doc == nil {
		return nil
	}
	var urls []string
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || !isAbsoluteHTTP(src) {
			src, ok = sel.Attr("data-src")
			if !ok {
				return
			}
		}
		if isAbsoluteHTTP(src) {
			urls = append(urls, src)
		}
	})
	return urls
}

// rawScanStrategy is the last resort: a regexp scan of the raw markup for
// embedded "murl" values, with the JSON escaped-slash encoding normalized
// back to plain slashes. It works even when the page no longer parses as the
// HTML the upper tiers expect.
type rawScanStrategy struct{}

var mediaURLPattern = regexp.MustCompile(`"murl":"(.*?)"`)

func (rawScanStrategy) Name() string { return "raw-scan" }

func (rawScanStrategy) Extract(_ *goquery.Document, raw []byte) []string {
	var urls []string
	for _, match := range mediaURLPattern.FindAllSubmatch(raw, -1) {
		candidate := strings.ReplaceAll(string(match[1]), `\/`, "/")
		if isAbsoluteHTTP(candidate) {
			urls = append(urls, candidate)
		}
	}
	return urls
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
