package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mediaintel/internal/config"
	"mediaintel/internal/domain"
	"mediaintel/internal/ports"
)

// PipelineDeps wires the driven adapters into the ingestion workflow.
type PipelineDeps struct {
	Source   ports.FeedSource
	Enricher ports.Enricher
	Store    ports.ArticleStore
	Config   *config.Store
	Logger   *slog.Logger
}

// Pipeline executes one ingestion run: fetch every configured feed, drop
// already-known links, enrich the admitted items with bounded concurrency,
// and persist the successes. Multiple runs may be in flight concurrently;
// the store's link uniqueness is the only cross-run coordination.
type Pipeline struct {
	source   ports.FeedSource
	enricher ports.Enricher
	store    ports.ArticleStore
	config   *config.Store
	logger   *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:   deps.Source,
		enricher: deps.Enricher,
		store:    deps.Store,
		config:   deps.Config,
		logger:   deps.Logger,
	}
}

// Run performs a full ingestion pass and reports how many new articles were
// stored. Per-feed and per-item failures are aggregated into the report;
// only an unreachable store aborts the run.
func (p *Pipeline) Run(ctx context.Context) (domain.IngestionReport, error) {
	cfg := p.config.Current()
	report := domain.IngestionReport{}

	candidates := p.fetchAll(ctx, cfg, &report)
	admitted, err := p.admit(ctx, candidates)
	if err != nil {
		return report, fmt.Errorf("dedupe candidates: %w", err)
	}

	outcomes := p.enrichAll(ctx, admitted, cfg.Scheduling.Workers)

	for i, item := range admitted {
		if outcomes[i].err != nil {
			report.Failures = append(report.Failures, domain.ItemFailure{
				Feed:   item.Feed,
				Link:   item.Link,
				Stage:  "enrich",
				Reason: outcomes[i].err.Error(),
			})
			continue
		}

		result := outcomes[i].result
		_, err := p.store.Insert(ctx, domain.Article{
			Link:        item.Link,
			Title:       item.Title,
			Summary:     result.Summary,
			Category:    result.Category,
			Relevance:   result.Relevance,
			Tags:        result.Tags,
			PublishedAt: item.PublishedAt,
			ImageURL:    item.ImageURL,
		})
		switch {
		case errors.Is(err, domain.ErrConflict):
			// A concurrent run got there first. Same outcome as the gate.
			p.debug("duplicate on insert", "link", item.Link)
		case err != nil:
			return report, fmt.Errorf("persist %s: %w", item.Link, err)
		default:
			report.NewArticles++
		}
	}

	p.info("ingestion run finished",
		"candidates", len(candidates),
		"admitted", len(admitted),
		"new_articles", report.NewArticles,
		"failures", len(report.Failures))
	return report, nil
}

// fetchAll walks the configured feeds; a failing feed is recorded and skipped.
func (p *Pipeline) fetchAll(ctx context.Context, cfg config.Config, report *domain.IngestionReport) []domain.RawItem {
	var candidates []domain.RawItem
	for _, feed := range cfg.Feeds {
		items, err := p.source.Fetch(ctx, feed.URL, cfg.Scheduling.PullLimit)
		if err != nil {
			p.info("feed failed", "feed", feed.Name, "error", err)
			report.Failures = append(report.Failures, domain.ItemFailure{
				Feed:   feed.Name,
				Stage:  "fetch",
				Reason: err.Error(),
			})
			continue
		}
		for i := range items {
			items[i].Feed = feed.Name
		}
		candidates = append(candidates, items...)
	}
	return candidates
}

// admit filters out links already stored, plus repeats within this batch.
// This only saves enrichment work; the insert's conflict handling is the
// actual uniqueness guarantee.
func (p *Pipeline) admit(ctx context.Context, candidates []domain.RawItem) ([]domain.RawItem, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	links := make([]string, 0, len(candidates))
	for _, item := range candidates {
		links = append(links, item.Link)
	}

	existing, err := p.store.ExistingLinks(ctx, links)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(candidates))
	admitted := make([]domain.RawItem, 0, len(candidates))
	for _, item := range candidates {
		if existing[item.Link] {
			continue
		}
		if _, dup := seen[item.Link]; dup {
			continue
		}
		seen[item.Link] = struct{}{}
		admitted = append(admitted, item)
	}

	return admitted, nil
}

type enrichOutcome struct {
	result domain.EnrichmentResult
	err    error
}

// enrichAll fans the admitted items out to a fixed pool of workers. At most
// `workers` enrichment calls are in flight at any instant, and every outcome
// lands at the index of its input before this returns.
func (p *Pipeline) enrichAll(ctx context.Context, items []domain.RawItem, workers int) []enrichOutcome {
	outcomes := make([]enrichOutcome, len(items))
	if len(items) == 0 {
		return outcomes
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = p.enrichOne(ctx, items[i])
			}
		}()
	}

dispatch:
	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				outcomes[j] = enrichOutcome{err: ctx.Err()}
			}
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (p *Pipeline) enrichOne(ctx context.Context, item domain.RawItem) enrichOutcome {
	if p.enricher == nil {
		return enrichOutcome{err: fmt.Errorf("no enrichment provider configured")}
	}

	started := time.Now()
	result, err := p.enricher.Enrich(ctx, item)
	if err != nil {
		return enrichOutcome{err: err}
	}
	p.debug("item enriched", "link", item.Link, "elapsed", time.Since(started))
	return enrichOutcome{result: result}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
