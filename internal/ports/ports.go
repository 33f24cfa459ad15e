package ports

import (
	"context"

	"mediaintel/internal/domain"
)

// FeedSource pulls candidate items from one syndication feed.
// Implementations return at most limit items and never fail on a single
// malformed entry; only a wholly unreachable or unparseable feed errors.
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string, limit int) ([]domain.RawItem, error)
}

// Enricher turns raw article text into a validated enrichment result.
type Enricher interface {
	Enrich(ctx context.Context, item domain.RawItem) (domain.EnrichmentResult, error)
}

// ChatCompleter exposes the raw text-generation capability used by the
// natural-language query passthrough.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ArticleStore is the durable, link-unique record of enriched articles.
// Every operation is individually atomic with respect to the others.
type ArticleStore interface {
	Insert(ctx context.Context, article domain.Article) (domain.Article, error)
	ExistingLinks(ctx context.Context, links []string) (map[string]bool, error)
	Query(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error)
	Categories(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteAll(ctx context.Context) (int64, error)
}
