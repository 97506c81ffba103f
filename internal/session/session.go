package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/price-spread/internal/aggregate"
	"github.com/maltedev/price-spread/internal/export"
	"github.com/maltedev/price-spread/internal/filter"
	"github.com/maltedev/price-spread/internal/marketplace"
	"github.com/maltedev/price-spread/internal/models"
	"github.com/maltedev/price-spread/internal/parser"
	"github.com/maltedev/price-spread/internal/ratelimit"
	"github.com/maltedev/price-spread/internal/scraper"
)

type State string

const (
	StateIdle          State = "idle"
	StateFetchingPages State = "fetching_pages"
	StateParsingPages  State = "parsing_pages"
	StateEnriching     State = "enriching"
	StateAggregating   State = "aggregating"
	StateExporting     State = "exporting"
	StateDelivered     State = "delivered"
	StateEmpty         State = "empty"
	StateTerminated    State = "terminated"
)

type DropReason string

const (
	DropParse      DropReason = "parse"
	DropInvalidID  DropReason = "invalid_id"
	DropNoMatch    DropReason = "no_match"
	DropExcluded   DropReason = "excluded"
	DropExtraction DropReason = "extraction"
	DropOutlier    DropReason = "outlier"
)

// Diagnostics explains what happened to every candidate of a session.
type Diagnostics struct {
	Pages          int                `json:"pages"`
	MalformedPages int                `json:"malformed_pages"`
	Candidates     int                `json:"candidates"`
	Accepted       int                `json:"accepted"`
	Dropped        map[DropReason]int `json:"dropped"`
	Enrichment     map[string]int     `json:"enrichment"`
	DeliveryError  string             `json:"delivery_error,omitempty"`
}

type Result struct {
	ID          string                   `json:"id"`
	Marketplace models.Marketplace       `json:"marketplace"`
	Query       string                   `json:"query"`
	Outcome     aggregate.Outcome        `json:"outcome"`
	Products    []models.AcceptedProduct `json:"products"`
	Diagnostics Diagnostics              `json:"diagnostics"`
	States      []State                  `json:"states"`
}

type Exporter interface {
	Export(ctx context.Context, name string, rows []export.Row) (*export.Artifact, error)
}

// Runner starts crawl sessions. It holds only immutable wiring; every Run
// builds fresh per-session state.
type Runner struct {
	registry    *marketplace.Registry
	exporter    Exporter
	newFetcher  func(limiter ratelimit.RateLimiter) scraper.Fetcher
	newRenderer func() scraper.Renderer
	newLimiter  func() ratelimit.RateLimiter
	newID       func() string
	metrics     *Metrics
	logger      *slog.Logger
}

type Option func(*Runner)

func WithFetcherFactory(f func(limiter ratelimit.RateLimiter) scraper.Fetcher) Option {
	return func(r *Runner) { r.newFetcher = f }
}

func WithRendererFactory(f func() scraper.Renderer) Option {
	return func(r *Runner) { r.newRenderer = f }
}

func WithLimiterFactory(f func() ratelimit.RateLimiter) Option {
	return func(r *Runner) { r.newLimiter = f }
}

func WithIDGenerator(f func() string) Option {
	return func(r *Runner) { r.newID = f }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(registry *marketplace.Registry, exporter Exporter, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		exporter: exporter,
		newFetcher: func(limiter ratelimit.RateLimiter) scraper.Fetcher {
			o := scraper.DefaultFetcherOptions()
			o.Limiter = limiter
			return scraper.NewHTTPFetcher(o)
		},
		newLimiter: func() ratelimit.RateLimiter {
			return ratelimit.NewSimpleRateLimiter(500*time.Millisecond, 1500*time.Millisecond)
		},
		newID:   func() string { return uuid.New().String() },
		metrics: NewMetrics(nil),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Marketplaces lists the marketplaces sessions can run against.
func (r *Runner) Marketplaces() []models.Marketplace {
	return r.registry.Marketplaces()
}

// Run executes one crawl for rawQuery on marketplace m and reports to n. The
// returned error is non-nil only when the marketplace is unknown or the first
// result page could not be fetched.
func (r *Runner) Run(ctx context.Context, m models.Marketplace, rawQuery string, n Notifier) (*Result, error) {
	adapter, err := r.registry.Get(m)
	if err != nil {
		return nil, err
	}

	s := r.newSession(adapter, rawQuery, n)
	defer s.close()

	return s.run(ctx)
}

type session struct {
	id       string
	adapter  marketplace.Adapter
	query    filter.Query
	notifier Notifier
	exporter Exporter
	env      marketplace.Env
	renderer scraper.Renderer
	metrics  *Metrics
	logger   *slog.Logger

	running  *aggregate.Distribution
	products []models.AcceptedProduct
	result   *Result
}

func (r *Runner) newSession(adapter marketplace.Adapter, rawQuery string, n Notifier) *session {
	id := r.newID()
	limiter := r.newLimiter()

	s := &session{
		id:       id,
		adapter:  adapter,
		query:    filter.NewQuery(rawQuery),
		notifier: n,
		exporter: r.exporter,
		metrics:  r.metrics,
		logger:   r.logger.With("component", "session", "session_id", id, "marketplace", adapter.Marketplace),
		running:  aggregate.NewDistribution(),
	}

	s.env = marketplace.Env{
		Fetcher: r.newFetcher(limiter),
		Limiter: limiter,
	}
	if adapter.NeedsBrowser && r.newRenderer != nil {
		s.renderer = r.newRenderer()
		s.env.Renderer = s.renderer
	}

	s.result = &Result{
		ID:          id,
		Marketplace: adapter.Marketplace,
		Query:       s.query.Raw(),
		Diagnostics: Diagnostics{
			Dropped:    make(map[DropReason]int),
			Enrichment: make(map[string]int),
		},
		States: []State{StateIdle},
	}
	return s
}

func (s *session) close() {
	if s.renderer == nil {
		return
	}
	if err := s.renderer.Close(); err != nil {
		s.logger.Warn("failed to release renderer", "error", err)
	}
}

func (s *session) transition(to State) {
	s.logger.Debug("state transition", "from", s.result.States[len(s.result.States)-1], "to", to)
	s.result.States = append(s.result.States, to)
}

func (s *session) run(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() {
		s.metrics.Duration.WithLabelValues(string(s.adapter.Marketplace)).Observe(time.Since(start).Seconds())
	}()

	s.logger.Info("session started", "query", s.query.Raw())

	s.transition(StateFetchingPages)
	s.progress(ctx, ProgressLoadingPages)

	if s.adapter.NewSource == nil {
		return s.fail(ctx, fmt.Errorf("%w: marketplace has no page source", scraper.ErrFatalFetch))
	}
	if s.adapter.NeedsBrowser && s.renderer == nil {
		return s.fail(ctx, fmt.Errorf("%w: no renderer configured", scraper.ErrFatalFetch))
	}
	pages, err := s.adapter.NewSource(s.env, s.query, s.pageHasMatches).Pages(ctx)
	if err != nil {
		return s.fail(ctx, err)
	}
	s.result.Diagnostics.Pages = len(pages)

	s.progress(ctx, ProgressProcessingItems)
	s.transition(StateParsingPages)
	for _, page := range pages {
		s.parsePage(page)
	}

	s.transition(StateEnriching)
	s.enrich(ctx)

	s.transition(StateAggregating)
	engine := aggregate.NewEngine()
	for _, p := range s.products {
		engine.Add(p)
	}
	outcome := engine.Summarize()
	s.result.Outcome = outcome
	s.result.Products = engine.Products()

	s.transition(StateExporting)
	artifact, err := s.exporter.Export(ctx, s.query.Raw(), export.RowsFromProducts(s.result.Products))
	if err != nil {
		s.logger.Error("export failed", "error", err)
	}
	defer func() {
		if err := artifact.Remove(); err != nil {
			s.logger.Warn("failed to remove artifact", "error", err)
		}
	}()

	d := Delivery{
		SessionID:   s.id,
		Marketplace: s.adapter.Marketplace,
		Query:       s.query.Raw(),
		At:          time.Now().UTC(),
	}
	switch outcome.Kind {
	case aggregate.KindEmpty:
		d.Kind = DeliveryEmpty
		d.Text, d.Pairs = emptyDelivery(s.query.Raw())
	case aggregate.KindSingle:
		d.Kind = DeliverySingle
		d.Text, d.Pairs = singleDelivery(outcome.Single)
		d.Artifact = artifact
	default:
		d.Kind = DeliverySummary
		d.Text, d.Pairs = summaryDelivery(s.query.Raw(), outcome.Summary)
		d.Artifact = artifact
	}

	s.deliver(ctx, d)
	if outcome.Kind == aggregate.KindEmpty {
		s.transition(StateEmpty)
	} else {
		s.transition(StateDelivered)
	}
	s.transition(StateTerminated)

	s.metrics.Sessions.WithLabelValues(string(s.adapter.Marketplace), string(outcome.Kind)).Inc()
	s.logger.Info("session finished",
		"outcome", outcome.Kind,
		"pages", s.result.Diagnostics.Pages,
		"candidates", s.result.Diagnostics.Candidates,
		"accepted", s.result.Diagnostics.Accepted,
	)
	return s.result, nil
}

func (s *session) fail(ctx context.Context, err error) (*Result, error) {
	s.logger.Error("could not fetch first page", "error", err)

	text, pairs := failedDelivery(s.query.Raw())
	s.deliver(ctx, Delivery{
		SessionID:   s.id,
		Kind:        DeliveryFailed,
		Marketplace: s.adapter.Marketplace,
		Query:       s.query.Raw(),
		Text:        text,
		Pairs:       pairs,
		At:          time.Now().UTC(),
	})
	s.transition(StateTerminated)
	s.metrics.Sessions.WithLabelValues(string(s.adapter.Marketplace), string(DeliveryFailed)).Inc()

	if !errors.Is(err, scraper.ErrFatalFetch) {
		err = fmt.Errorf("%w: %w", scraper.ErrFatalFetch, err)
	}
	return s.result, err
}

func (s *session) progress(ctx context.Context, text string) {
	if err := s.notifier.Progress(ctx, text); err != nil {
		s.logger.Warn("progress notification failed", "error", err)
	}
}

func (s *session) deliver(ctx context.Context, d Delivery) {
	if err := s.notifier.Deliver(ctx, d); err != nil {
		s.result.Diagnostics.DeliveryError = err.Error()
		s.logger.Error("delivery failed", "kind", d.Kind, "error", err)
	}
}

// pageHasMatches reports whether any parsed candidate on the page satisfies
// the query. Paged sources stop at the first page where none do.
func (s *session) pageHasMatches(page scraper.Page) bool {
	items, err := s.adapter.Parser.ParseResults(page.Body)
	if err != nil {
		return false
	}
	for _, item := range items {
		if item.Err == nil && filter.Matches(s.query, item.Candidate.Name) {
			return true
		}
	}
	return false
}

func (s *session) parsePage(page scraper.Page) {
	items, err := s.adapter.Parser.ParseResults(page.Body)
	if err != nil {
		s.result.Diagnostics.MalformedPages++
		s.logger.Warn("page skipped", "page", page.Number, "error", err)
		return
	}

	for _, item := range items {
		s.result.Diagnostics.Candidates++
		if reason, ok := s.consider(item); !ok {
			s.drop(reason, item)
		}
	}
}

// consider runs one candidate through matching, price extraction and the
// outlier filter. Accepted products extend the running discounted set.
func (s *session) consider(item parser.Item) (DropReason, bool) {
	if item.Err != nil {
		if errors.Is(item.Err, parser.ErrInvalidID) {
			return DropInvalidID, false
		}
		return DropParse, false
	}

	c := item.Candidate
	if !filter.Matches(s.query, c.Name) {
		return DropNoMatch, false
	}
	if filter.Excluded(c.Name, s.adapter.Exclusions) {
		return DropExcluded, false
	}

	full, discounted, err := parser.ExtractPrices(c.PriceTokens)
	if err != nil {
		return DropExtraction, false
	}
	if !s.adapter.Outlier.Accept(discounted, s.running.Values()) {
		return DropOutlier, false
	}

	s.running.Add(discounted, c.Link)
	s.products = append(s.products, models.NewAcceptedProduct(c, full, discounted))
	s.result.Diagnostics.Accepted++
	s.metrics.Accepted.WithLabelValues(string(s.adapter.Marketplace)).Inc()
	return "", true
}

func (s *session) drop(reason DropReason, item parser.Item) {
	s.result.Diagnostics.Dropped[reason]++
	s.metrics.Dropped.WithLabelValues(string(s.adapter.Marketplace), string(reason)).Inc()
	s.logger.Debug("candidate dropped", "reason", reason, "name", item.Candidate.Name, "error", item.Err)
}

func (s *session) enrich(ctx context.Context) {
	if s.adapter.NewEnricher == nil || len(s.products) == 0 {
		return
	}
	enricher := s.adapter.NewEnricher(s.env)

	for i := range s.products {
		if ctx.Err() != nil {
			s.logger.Warn("enrichment interrupted", "remaining", len(s.products)-i)
			return
		}

		result := "ok"
		if err := enricher.Enrich(ctx, &s.products[i]); err != nil {
			result = "parse"
			if errors.Is(err, scraper.ErrEnrichmentTimeout) {
				result = "timeout"
			}
			s.logger.Debug("enrichment failed", "link", s.products[i].Link, "error", err)
		}
		s.result.Diagnostics.Enrichment[result]++
		s.metrics.Enrichment.WithLabelValues(string(s.adapter.Marketplace), result).Inc()
	}
}
