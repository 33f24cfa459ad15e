package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"mediaintel/internal/domain"
	"mediaintel/internal/ports"
)

// Source fetches and parses one syndication feed per call, yielding at most
// the requested number of candidate items, most-recent-first when the feed
// carries publish timestamps.
type Source struct {
	parser *gofeed.Parser
	images *ImageFinder
	logger *slog.Logger
}

var _ ports.FeedSource = (*Source)(nil)

// NewSource wires an HTTP client shared by feed retrieval and image lookup.
func NewSource(client *http.Client, logger *slog.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "mediaintel/1.0"

	return &Source{
		parser: parser,
		images: NewImageFinder(client),
		logger: logger,
	}
}

// Fetch retrieves the feed and maps its entries to RawItems. A single
// malformed entry is skipped; only an unreachable or unparseable feed errors.
func (s *Source) Fetch(ctx context.Context, feedURL string, limit int) ([]domain.RawItem, error) {
	parsed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}

	type candidate struct {
		item  domain.RawItem
		entry *gofeed.Item
	}

	candidates := make([]candidate, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		item, ok := mapEntry(entry)
		if !ok {
			s.debug("skip malformed entry", "feed", feedURL)
			continue
		}
		candidates = append(candidates, candidate{item: item, entry: entry})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].item.PublishedAt.After(candidates[j].item.PublishedAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	// image discovery only for items that survived the pull limit
	items := make([]domain.RawItem, 0, len(candidates))
	for _, c := range candidates {
		c.item.ImageURL = s.resolveImage(ctx, c.entry, c.item.Link)
		items = append(items, c.item)
	}

	s.debug("feed fetched", "feed", feedURL, "items", len(items))
	return items, nil
}

func mapEntry(entry *gofeed.Item) (domain.RawItem, bool) {
	if entry == nil {
		return domain.RawItem{}, false
	}

	link := strings.TrimSpace(entry.Link)
	title := strings.TrimSpace(entry.Title)
	if link == "" || title == "" {
		return domain.RawItem{}, false
	}

	body := entry.Content
	if body == "" {
		body = entry.Description
	}

	published := time.Now().UTC()
	if entry.PublishedParsed != nil {
		published = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		published = entry.UpdatedParsed.UTC()
	}

	return domain.RawItem{
		Link:        link,
		Title:       title,
		Body:        strings.TrimSpace(body),
		PublishedAt: published,
	}, true
}

// resolveImage prefers explicit feed metadata and falls back to scraping the
// linked page. Failures yield an empty URL, never an error.
func (s *Source) resolveImage(ctx context.Context, entry *gofeed.Item, link string) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return s.images.Discover(ctx, link)
}

func (s *Source) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
