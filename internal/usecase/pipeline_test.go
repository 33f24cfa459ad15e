package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaintel/internal/config"
	"mediaintel/internal/domain"
)

// fakeSource serves canned items per feed URL.
type fakeSource struct {
	items map[string][]domain.RawItem
	errs  map[string]error
}

func (f *fakeSource) Fetch(_ context.Context, feedURL string, limit int) ([]domain.RawItem, error) {
	if err := f.errs[feedURL]; err != nil {
		return nil, err
	}
	items := f.items[feedURL]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// fakeEnricher counts in-flight calls so tests can assert the concurrency cap.
type fakeEnricher struct {
	delay    time.Duration
	failFor  map[string]bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (f *fakeEnricher) Enrich(_ context.Context, item domain.RawItem) (domain.EnrichmentResult, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	f.calls.Add(1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failFor[item.Link] {
		return domain.EnrichmentResult{}, fmt.Errorf("provider timeout")
	}
	return domain.EnrichmentResult{
		Summary:   "summary of " + item.Title,
		Category:  "Tech",
		Relevance: domain.TierMedium,
		Tags:      []string{"test"},
	}, nil
}

// memoryStore is a link-unique in-memory ArticleStore for pipeline tests.
type memoryStore struct {
	mu       sync.Mutex
	nextID   int64
	articles map[string]domain.Article
}

func newMemoryStore() *memoryStore {
	return &memoryStore{articles: map[string]domain.Article{}}
}

func (m *memoryStore) Insert(_ context.Context, a domain.Article) (domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.articles[a.Link]; exists {
		return domain.Article{}, domain.ErrConflict
	}
	m.nextID++
	a.ID = m.nextID
	a.IngestedAt = time.Now().UTC()
	m.articles[a.Link] = a
	return a, nil
}

func (m *memoryStore) ExistingLinks(_ context.Context, links []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]bool, len(links))
	for _, link := range links {
		if _, ok := m.articles[link]; ok {
			result[link] = true
		}
	}
	return result, nil
}

func (m *memoryStore) Query(context.Context, domain.ArticleFilter) ([]domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Article, 0, len(m.articles))
	for _, a := range m.articles {
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryStore) Categories(context.Context) ([]string, error) { return nil, nil }

func (m *memoryStore) Delete(context.Context, int64) (bool, error) { return false, nil }

func (m *memoryStore) DeleteAll(context.Context) (int64, error) { return 0, nil }

func testConfig(t *testing.T, feeds []config.FeedConfig, pullLimit, workers int) *config.Store {
	t.Helper()
	cfg := config.Default()
	cfg.Feeds = feeds
	cfg.Scheduling.PullLimit = pullLimit
	cfg.Scheduling.Workers = workers
	return config.NewStore(filepath.Join(t.TempDir(), "config.yaml"), cfg)
}

func rawItem(n int) domain.RawItem {
	return domain.RawItem{
		Link:        fmt.Sprintf("https://example.org/articles/%d", n),
		Title:       fmt.Sprintf("Story %d", n),
		Body:        "body",
		PublishedAt: time.Now().UTC(),
	}
}

func TestRunPersistsOnlyNewLinks(t *testing.T) {
	t.Parallel()

	// feed with 3 new links + 2 already stored, pull_limit=10, workers=2
	store := newMemoryStore()
	ctx := context.Background()
	for n := 1; n <= 2; n++ {
		_, err := store.Insert(ctx, domain.Article{Link: rawItem(n).Link})
		require.NoError(t, err)
	}

	items := make([]domain.RawItem, 0, 5)
	for n := 1; n <= 5; n++ {
		items = append(items, rawItem(n))
	}

	enricher := &fakeEnricher{}
	pipeline := NewPipeline(PipelineDeps{
		Source:   &fakeSource{items: map[string][]domain.RawItem{"https://feed/a": items}},
		Enricher: enricher,
		Store:    store,
		Config:   testConfig(t, []config.FeedConfig{{Name: "a", URL: "https://feed/a"}}, 10, 2),
	})

	report, err := pipeline.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.NewArticles)
	assert.Empty(t, report.Failures)
	assert.Equal(t, int32(3), enricher.calls.Load(), "known links must not be enriched")
	assert.Len(t, store.articles, 5)
}

func TestRunIsIdempotentAgainstUnchangedFeed(t *testing.T) {
	t.Parallel()

	items := []domain.RawItem{rawItem(1), rawItem(2)}
	store := newMemoryStore()
	pipeline := NewPipeline(PipelineDeps{
		Source:   &fakeSource{items: map[string][]domain.RawItem{"https://feed/a": items}},
		Enricher: &fakeEnricher{},
		Store:    store,
		Config:   testConfig(t, []config.FeedConfig{{Name: "a", URL: "https://feed/a"}}, 10, 2),
	})

	first, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewArticles)

	second, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewArticles)
	assert.Len(t, store.articles, 2)
}

func TestEnrichmentConcurrencyNeverExceedsWorkers(t *testing.T) {
	t.Parallel()

	items := make([]domain.RawItem, 0, 50)
	for n := 0; n < 50; n++ {
		items = append(items, rawItem(n))
	}

	enricher := &fakeEnricher{delay: 2 * time.Millisecond}
	pipeline := NewPipeline(PipelineDeps{
		Source:   &fakeSource{items: map[string][]domain.RawItem{"https://feed/a": items}},
		Enricher: enricher,
		Store:    newMemoryStore(),
		Config:   testConfig(t, []config.FeedConfig{{Name: "a", URL: "https://feed/a"}}, 100, 5),
	})

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 50, report.NewArticles)
	assert.Equal(t, int32(50), enricher.calls.Load())
	assert.LessOrEqual(t, enricher.maxSeen.Load(), int32(5),
		"in-flight enrichment calls must never exceed the configured worker count")
}

func TestEnrichmentFailureSkipsItemOnly(t *testing.T) {
	t.Parallel()

	items := []domain.RawItem{rawItem(1), rawItem(2), rawItem(3)}
	enricher := &fakeEnricher{failFor: map[string]bool{items[1].Link: true}}
	store := newMemoryStore()
	pipeline := NewPipeline(PipelineDeps{
		Source:   &fakeSource{items: map[string][]domain.RawItem{"https://feed/a": items}},
		Enricher: enricher,
		Store:    store,
		Config:   testConfig(t, []config.FeedConfig{{Name: "a", URL: "https://feed/a"}}, 10, 2),
	})

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.NewArticles)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "enrich", report.Failures[0].Stage)
	assert.Equal(t, items[1].Link, report.Failures[0].Link)
	assert.Len(t, store.articles, 2)
}

func TestUnreachableFeedIsRecordedAndOthersContinue(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(PipelineDeps{
		Source: &fakeSource{
			items: map[string][]domain.RawItem{"https://feed/good": {rawItem(1)}},
			errs:  map[string]error{"https://feed/bad": fmt.Errorf("connection refused")},
		},
		Enricher: &fakeEnricher{},
		Store:    newMemoryStore(),
		Config: testConfig(t, []config.FeedConfig{
			{Name: "bad", URL: "https://feed/bad"},
			{Name: "good", URL: "https://feed/good"},
		}, 10, 2),
	})

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.NewArticles)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "fetch", report.Failures[0].Stage)
	assert.Equal(t, "bad", report.Failures[0].Feed)
}

func TestConcurrentRunsNeverDuplicateLinks(t *testing.T) {
	t.Parallel()

	items := []domain.RawItem{rawItem(1), rawItem(2), rawItem(3)}
	store := newMemoryStore()
	pipeline := NewPipeline(PipelineDeps{
		Source:   &fakeSource{items: map[string][]domain.RawItem{"https://feed/a": items}},
		Enricher: &fakeEnricher{delay: time.Millisecond},
		Store:    store,
		Config:   testConfig(t, []config.FeedConfig{{Name: "a", URL: "https://feed/a"}}, 10, 2),
	})

	var wg sync.WaitGroup
	total := atomic.Int32{}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := pipeline.Run(context.Background())
			assert.NoError(t, err)
			total.Add(int32(report.NewArticles))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), total.Load(), "overlapping runs must not double-count")
	assert.Len(t, store.articles, 3)
}

func TestBatchDuplicatesAcrossFeedsAdmittedOnce(t *testing.T) {
	t.Parallel()

	shared := rawItem(1)
	enricher := &fakeEnricher{}
	store := newMemoryStore()
	pipeline := NewPipeline(PipelineDeps{
		Source: &fakeSource{items: map[string][]domain.RawItem{
			"https://feed/a": {shared},
			"https://feed/b": {shared, rawItem(2)},
		}},
		Enricher: enricher,
		Store:    store,
		Config: testConfig(t, []config.FeedConfig{
			{Name: "a", URL: "https://feed/a"},
			{Name: "b", URL: "https://feed/b"},
		}, 10, 2),
	})

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.NewArticles)
	assert.Equal(t, int32(2), enricher.calls.Load(), "same link from two feeds is enriched once")
}

func TestMissingEnricherFailsPerItem(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(PipelineDeps{
		Source: &fakeSource{items: map[string][]domain.RawItem{"https://feed/a": {rawItem(1)}}},
		Store:  newMemoryStore(),
		Config: testConfig(t, []config.FeedConfig{{Name: "a", URL: "https://feed/a"}}, 10, 2),
	})

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.NewArticles)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "enrich", report.Failures[0].Stage)
}
