package feed

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const imageLookupTimeout = 5 * time.Second

// ImageFinder scrapes a lead image from an article page. It is best-effort:
// any fetch or parse problem results in an empty URL.
type ImageFinder struct {
	client *http.Client
}

// NewImageFinder shares the caller's HTTP client.
func NewImageFinder(client *http.Client) *ImageFinder {
	if client == nil {
		client = &http.Client{Timeout: imageLookupTimeout}
	}
	return &ImageFinder{client: client}
}

// Discover returns the first of: an open-graph image meta tag, the first
// absolute inline image, or an empty string.
func (f *ImageFinder) Discover(ctx context.Context, pageURL string) string {
	if pageURL == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, imageLookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "mediaintel/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}

	if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		if og = strings.TrimSpace(og); og != "" {
			return og
		}
	}

	var inline string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok {
			return true
		}
		src = strings.TrimSpace(src)
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			inline = src
			return false
		}
		return true
	})

	return inline
}
