package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/maltedev/price-spread/internal/aggregate"
	"github.com/maltedev/price-spread/internal/export"
	"github.com/maltedev/price-spread/internal/filter"
	"github.com/maltedev/price-spread/internal/marketplace"
	"github.com/maltedev/price-spread/internal/models"
	"github.com/maltedev/price-spread/internal/parser"
	"github.com/maltedev/price-spread/internal/ratelimit"
	"github.com/maltedev/price-spread/internal/scraper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wbFetcher serves canned Wildberries search pages and sales payloads.
type wbFetcher struct {
	pages   map[int]string
	failAll bool
}

func (f *wbFetcher) Fetch(_ context.Context, raw string) ([]byte, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	if strings.Contains(raw, "product-order-qnt") {
		return []byte(`[{"qnt":7}]`), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	var page int
	fmt.Sscan(u.Query().Get("page"), &page)
	if body, ok := f.pages[page]; ok {
		return []byte(body), nil
	}
	return []byte(`{"data":{"products":[]}}`), nil
}

func wbProduct(id int, name string, full, discounted int) string {
	return fmt.Sprintf(`{"id":%d,"name":%q,"brand":"Acme","priceU":%d,"salePriceU":%d,"rating":4.5,"feedbacks":12}`,
		id, name, full*100, discounted*100)
}

func wbPage(products ...string) string {
	return `{"data":{"products":[` + strings.Join(products, ",") + `]}}`
}

type recordingNotifier struct {
	mu         sync.Mutex
	progress   []string
	deliveries []Delivery
	// artifactExisted records whether the artifact file was on disk at
	// delivery time.
	artifactExisted bool
	deliverErr      error
}

func (n *recordingNotifier) Progress(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, text)
	return nil
}

func (n *recordingNotifier) Deliver(_ context.Context, d Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, d)
	if d.Artifact != nil {
		_, err := os.Stat(d.Artifact.Path)
		n.artifactExisted = err == nil
	}
	return n.deliverErr
}

func (n *recordingNotifier) only(t *testing.T) Delivery {
	t.Helper()
	require.Len(t, n.deliveries, 1)
	return n.deliveries[0]
}

func newTestRunner(t *testing.T, f scraper.Fetcher, opts ...Option) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	base := []Option{
		WithFetcherFactory(func(ratelimit.RateLimiter) scraper.Fetcher { return f }),
		WithLimiterFactory(func() ratelimit.RateLimiter { return ratelimit.NewSimpleRateLimiter(0, 0) }),
	}
	r := NewRunner(marketplace.NewRegistry(marketplace.DefaultSettings()), export.NewExporter(dir), append(base, opts...)...)
	return r, dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "artifacts must not outlive the session")
}

func TestRunTableLamp(t *testing.T) {
	f := &wbFetcher{pages: map[int]string{
		1: wbPage(
			wbProduct(1, "Table Lamp Classic", 1000, 800),
			wbProduct(2, "Desk Chair", 3000, 2500),
			wbProduct(3, "table-lamp with shade", 1200, 900),
		),
		2: wbPage(wbProduct(4, "Office Chair", 4000, 3500)),
		3: wbPage(wbProduct(5, "Table Lamp Never Reached", 10, 5)),
	}}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	r, dir := newTestRunner(t, f, WithMetrics(metrics))
	n := &recordingNotifier{}

	res, err := r.Run(context.Background(), models.Wildberries, "table lamp", n)
	require.NoError(t, err)

	assert.Equal(t, []string{ProgressLoadingPages, ProgressProcessingItems}, n.progress)

	d := n.only(t)
	assert.Equal(t, DeliverySummary, d.Kind)
	require.NotNil(t, d.Artifact)
	assert.True(t, n.artifactExisted)
	assert.Equal(t, 2, d.Artifact.Rows)
	assert.Len(t, d.Pairs, 9)
	assert.Contains(t, d.Text, "*table lamp*")

	require.Equal(t, aggregate.KindSummary, res.Outcome.Kind)
	s := res.Outcome.Summary
	link1 := parser.WildberriesProductURL("1")
	link3 := parser.WildberriesProductURL("3")
	assert.Equal(t, aggregate.Metric{Present: true, Max: 900, MaxLink: link3, Mean: 850, Min: 800, MinLink: link1}, s.Discounted)
	assert.Equal(t, aggregate.Metric{Present: true, Max: 1200, MaxLink: link3, Mean: 1100, Min: 1000, MinLink: link1}, s.Full)
	assert.Equal(t, aggregate.Metric{Present: true, Max: 300, MaxLink: link3, Mean: 250, Min: 200, MinLink: link1}, s.Discount)

	require.Len(t, res.Products, 2)
	for _, p := range res.Products {
		assert.Equal(t, "7", p.Sales)
		assert.Equal(t, "Acme", p.Seller)
	}

	assert.Equal(t, 2, res.Diagnostics.Pages)
	assert.Equal(t, 4, res.Diagnostics.Candidates)
	assert.Equal(t, 2, res.Diagnostics.Accepted)
	assert.Equal(t, map[DropReason]int{DropNoMatch: 2}, res.Diagnostics.Dropped)
	assert.Equal(t, map[string]int{"ok": 2}, res.Diagnostics.Enrichment)

	assert.Equal(t, []State{
		StateIdle, StateFetchingPages, StateParsingPages, StateEnriching,
		StateAggregating, StateExporting, StateDelivered, StateTerminated,
	}, res.States)

	assertDirEmpty(t, dir)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Sessions.WithLabelValues("wildberries", "summary")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Accepted.WithLabelValues("wildberries")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Dropped.WithLabelValues("wildberries", "no_match")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Enrichment.WithLabelValues("wildberries", "ok")))
}

func TestRunFirstPageFailure(t *testing.T) {
	r, dir := newTestRunner(t, &wbFetcher{failAll: true})
	n := &recordingNotifier{}

	res, err := r.Run(context.Background(), models.Wildberries, "table lamp", n)
	require.Error(t, err)
	assert.ErrorIs(t, err, scraper.ErrFatalFetch)

	d := n.only(t)
	assert.Equal(t, DeliveryFailed, d.Kind)
	assert.Equal(t, "Could not retrieve information about *table lamp* :(", d.Text)
	assert.Nil(t, d.Artifact)
	assert.Equal(t, []string{ProgressLoadingPages}, n.progress)

	require.NotNil(t, res)
	assert.Equal(t, StateTerminated, res.States[len(res.States)-1])
	assertDirEmpty(t, dir)
}

func TestRunEmptyOutcome(t *testing.T) {
	f := &wbFetcher{pages: map[int]string{1: wbPage(wbProduct(1, "Desk Chair", 3000, 2500))}}
	r, dir := newTestRunner(t, f)
	n := &recordingNotifier{}

	res, err := r.Run(context.Background(), models.Wildberries, "table lamp", n)
	require.NoError(t, err)

	d := n.only(t)
	assert.Equal(t, DeliveryEmpty, d.Kind)
	assert.Nil(t, d.Artifact)
	assert.Equal(t, aggregate.KindEmpty, res.Outcome.Kind)
	assert.Equal(t, 1, res.Diagnostics.Pages)
	assert.Contains(t, res.States, StateEmpty)
	assertDirEmpty(t, dir)
}

func TestRunSingleOutcome(t *testing.T) {
	f := &wbFetcher{pages: map[int]string{1: wbPage(wbProduct(9, "Table Lamp", 1000, 800))}}
	r, dir := newTestRunner(t, f)
	n := &recordingNotifier{}

	res, err := r.Run(context.Background(), models.Wildberries, "table lamp", n)
	require.NoError(t, err)

	d := n.only(t)
	assert.Equal(t, DeliverySingle, d.Kind)
	require.NotNil(t, d.Artifact)
	assert.True(t, n.artifactExisted)
	assert.Equal(t, 1, d.Artifact.Rows)
	assert.True(t, strings.HasPrefix(d.Text, "Only 1 product was saved"))
	assert.Equal(t, &aggregate.Single{Full: 1000, Discounted: 800, Discount: 200, Link: parser.WildberriesProductURL("9")}, res.Outcome.Single)
	assertDirEmpty(t, dir)
}

func TestRunRemovesArtifactWhenDeliveryFails(t *testing.T) {
	f := &wbFetcher{pages: map[int]string{1: wbPage(
		wbProduct(1, "Table Lamp", 1000, 800),
		wbProduct(2, "Table Lamp", 1200, 900),
	)}}
	r, dir := newTestRunner(t, f)
	n := &recordingNotifier{deliverErr: errors.New("chat unavailable")}

	res, err := r.Run(context.Background(), models.Wildberries, "table lamp", n)
	require.NoError(t, err)
	assert.Equal(t, "chat unavailable", res.Diagnostics.DeliveryError)
	assert.True(t, n.artifactExisted)
	assertDirEmpty(t, dir)
}

func TestRunUnknownMarketplace(t *testing.T) {
	r, _ := newTestRunner(t, &wbFetcher{})
	_, err := r.Run(context.Background(), "aliexpress", "lamp", &recordingNotifier{})
	assert.ErrorIs(t, err, marketplace.ErrUnknownMarketplace)
}

type staticParser []parser.Item

func (p staticParser) ParseResults([]byte) ([]parser.Item, error) {
	return p, nil
}

type staticSource struct {
	pages []scraper.Page
	err   error
}

func (s staticSource) Pages(context.Context) ([]scraper.Page, error) {
	return s.pages, s.err
}

type countingRenderer struct {
	mu     sync.Mutex
	closed int
}

func (r *countingRenderer) Render(context.Context, string) ([]byte, error)     { return nil, nil }
func (r *countingRenderer) RenderFull(context.Context, string) ([]byte, error) { return nil, nil }

func (r *countingRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func candidate(name, link string, tokens ...string) parser.Item {
	return parser.Item{Candidate: models.Candidate{Name: name, Link: link, PriceTokens: tokens}}
}

func customRunner(t *testing.T, a marketplace.Adapter, renderer scraper.Renderer) (*Runner, string) {
	t.Helper()
	reg := marketplace.NewRegistry(marketplace.DefaultSettings())
	reg.Register(a)
	dir := t.TempDir()
	return NewRunner(reg, export.NewExporter(dir),
		WithFetcherFactory(func(ratelimit.RateLimiter) scraper.Fetcher { return &wbFetcher{} }),
		WithLimiterFactory(func() ratelimit.RateLimiter { return ratelimit.NewSimpleRateLimiter(0, 0) }),
		WithRendererFactory(func() scraper.Renderer { return renderer }),
	), dir
}

func TestRunDropReasons(t *testing.T) {
	items := staticParser{
		candidate("Lamp", "a", "1000", "800"),
		candidate("Lamp", "b", "1000", "100"),
		{Err: fmt.Errorf("%w: sku", parser.ErrInvalidID)},
		{Err: fmt.Errorf("%w: no name", parser.ErrCandidateParse)},
		candidate("Lamp cover", "c", "500", "400"),
		candidate("Lamp", "d", "1000"),
		candidate("Chair", "e", "1000", "900"),
		candidate("Lamp", "f", "1100", "700"),
	}
	a := marketplace.Adapter{
		Marketplace:  models.Ozon,
		Parser:       items,
		Outlier:      filter.NewOutlierFilter(0.51),
		Exclusions:   [][]string{{"cover"}},
		NeedsBrowser: true,
		NewSource: func(marketplace.Env, filter.Query, func(scraper.Page) bool) scraper.PageSource {
			return staticSource{pages: []scraper.Page{{Number: 1}}}
		},
	}
	renderer := &countingRenderer{}
	r, _ := customRunner(t, a, renderer)

	res, err := r.Run(context.Background(), models.Ozon, "lamp", &recordingNotifier{})
	require.NoError(t, err)

	assert.Equal(t, 8, res.Diagnostics.Candidates)
	assert.Equal(t, 2, res.Diagnostics.Accepted)
	assert.Equal(t, map[DropReason]int{
		DropOutlier:    1,
		DropInvalidID:  1,
		DropParse:      1,
		DropExcluded:   1,
		DropExtraction: 1,
		DropNoMatch:    1,
	}, res.Diagnostics.Dropped)
	assert.Equal(t, 1, renderer.closed)
}

func TestRunClosesRendererOnFatalFetch(t *testing.T) {
	a := marketplace.Adapter{
		Marketplace:  models.YandexMarket,
		Parser:       staticParser{},
		Outlier:      filter.NewOutlierFilter(0.41),
		NeedsBrowser: true,
		NewSource: func(marketplace.Env, filter.Query, func(scraper.Page) bool) scraper.PageSource {
			return staticSource{err: fmt.Errorf("%w: browser crashed", scraper.ErrFatalFetch)}
		},
	}
	renderer := &countingRenderer{}
	r, _ := customRunner(t, a, renderer)
	n := &recordingNotifier{}

	_, err := r.Run(context.Background(), models.YandexMarket, "mattress", n)
	assert.ErrorIs(t, err, scraper.ErrFatalFetch)
	assert.Equal(t, DeliveryFailed, n.only(t).Kind)
	assert.Equal(t, 1, renderer.closed)
}

func TestRunSkipsRendererForAPIMarketplaces(t *testing.T) {
	created := 0
	r, _ := newTestRunner(t, &wbFetcher{}, WithRendererFactory(func() scraper.Renderer {
		created++
		return &countingRenderer{}
	}))

	_, err := r.Run(context.Background(), models.Wildberries, "lamp", &recordingNotifier{})
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestConcurrentSessionsShareNoState(t *testing.T) {
	f := &wbFetcher{pages: map[int]string{1: wbPage(
		wbProduct(1, "Table Lamp", 1000, 800),
		wbProduct(2, "Table Lamp", 1200, 900),
		wbProduct(3, "Desk Chair", 3000, 2500),
	)}}
	r, dir := newTestRunner(t, f)

	queries := []string{"table lamp", "desk chair", "table lamp", "desk chair"}
	results := make([]*Result, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		i, q := i, q
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Run(context.Background(), models.Wildberries, q, &recordingNotifier{})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	ids := make(map[string]bool)
	for i, res := range results {
		require.NotNil(t, res)
		ids[res.ID] = true
		if queries[i] == "table lamp" {
			assert.Equal(t, 2, res.Diagnostics.Accepted)
			assert.Equal(t, aggregate.KindSummary, res.Outcome.Kind)
		} else {
			assert.Equal(t, 1, res.Diagnostics.Accepted)
			assert.Equal(t, aggregate.KindSingle, res.Outcome.Kind)
		}
	}
	assert.Len(t, ids, len(queries))
	assertDirEmpty(t, dir)
}

func TestRunBrowserMarketplaceWithoutRenderer(t *testing.T) {
	r, _ := newTestRunner(t, &wbFetcher{})
	n := &recordingNotifier{}

	_, err := r.Run(context.Background(), models.Ozon, "lamp", n)
	assert.ErrorIs(t, err, scraper.ErrFatalFetch)
	assert.Equal(t, DeliveryFailed, n.only(t).Kind)
}

func TestRunLampScenario(t *testing.T) {
	f := &wbFetcher{pages: map[int]string{1: wbPage(
		wbProduct(1, "LED table lamp", 1000, 800),
		wbProduct(2, "table lamp holder", 1200, 900),
		wbProduct(3, "desk fan", 500, 400),
	)}}
	r, _ := newTestRunner(t, f)

	res, err := r.Run(context.Background(), models.Wildberries, "table lamp", &recordingNotifier{})
	require.NoError(t, err)

	require.Equal(t, aggregate.KindSummary, res.Outcome.Kind)
	d := res.Outcome.Summary.Discounted
	assert.Equal(t, 800, d.Min)
	assert.Equal(t, 900, d.Max)
	assert.Equal(t, 850, d.Mean)
	assert.Equal(t, map[DropReason]int{DropNoMatch: 1}, res.Diagnostics.Dropped)
	for _, p := range res.Products {
		assert.LessOrEqual(t, p.DiscountedPrice, p.FullPrice)
	}
}
