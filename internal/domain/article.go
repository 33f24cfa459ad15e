package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrConflict is returned by the store when an article with the same link
// already exists. Callers treat it as "already present, skip".
var ErrConflict = errors.New("article link already stored")

// RelevanceTier is the ordered classification assigned during enrichment.
type RelevanceTier string

const (
	TierHigh   RelevanceTier = "high"
	TierMedium RelevanceTier = "medium"
	TierLow    RelevanceTier = "low"
)

// NormalizeTier maps free-form provider output onto a recognized tier.
// Anything unrecognized collapses to the lowest tier.
func NormalizeTier(value string) RelevanceTier {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return TierHigh
	case "medium", "mid":
		return TierMedium
	default:
		return TierLow
	}
}

// RawItem is a candidate article produced by a feed source. It is never
// persisted; the link doubles as its identity for deduplication.
type RawItem struct {
	Link        string
	Title       string
	Body        string
	PublishedAt time.Time
	ImageURL    string
	Feed        string
}

// EnrichmentResult carries the structured output of the enrichment provider.
type EnrichmentResult struct {
	Summary   string
	Category  string
	Relevance RelevanceTier
	Tags      []string
}

// Article is the durable unit stored after successful enrichment.
// Articles are immutable once inserted; there is no update path.
type Article struct {
	ID          int64         `json:"id"`
	Link        string        `json:"link"`
	Title       string        `json:"title"`
	Summary     string        `json:"summary"`
	Category    string        `json:"category"`
	Relevance   RelevanceTier `json:"relevance"`
	Tags        []string      `json:"tags"`
	PublishedAt time.Time     `json:"published_at"`
	ImageURL    string        `json:"image_url,omitempty"`
	IngestedAt  time.Time     `json:"ingested_at"`
}

// ArticleFilter narrows store queries. Zero values mean "no constraint".
type ArticleFilter struct {
	Category  string
	Relevance RelevanceTier
	Start     *time.Time
	End       *time.Time
	Limit     uint64
}

// ItemFailure records why a single candidate did not make it into the store.
type ItemFailure struct {
	Feed   string
	Link   string
	Stage  string
	Reason string
}

// IngestionReport is the outcome of one pipeline run.
type IngestionReport struct {
	NewArticles int
	Failures    []ItemFailure
}
