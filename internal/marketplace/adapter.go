package marketplace

import (
	"errors"
	"fmt"
	"sort"

	"github.com/maltedev/price-spread/internal/filter"
	"github.com/maltedev/price-spread/internal/models"
	"github.com/maltedev/price-spread/internal/parser"
	"github.com/maltedev/price-spread/internal/ratelimit"
	"github.com/maltedev/price-spread/internal/scraper"
)

var ErrUnknownMarketplace = errors.New("unknown marketplace")

// Env carries the per-session collaborators an adapter wires into its page
// source and enricher.
type Env struct {
	Fetcher  scraper.Fetcher
	Renderer scraper.Renderer
	Limiter  ratelimit.RateLimiter
}

// Adapter describes how the shared crawl pipeline runs against one
// marketplace.
type Adapter struct {
	Marketplace  models.Marketplace
	Parser       parser.ResultParser
	Outlier      filter.OutlierFilter
	Exclusions   [][]string
	NeedsBrowser bool

	// NewSource builds the page source for a query. hasMatches is consulted
	// by sources that stop paging once a page yields nothing relevant.
	NewSource func(env Env, q filter.Query, hasMatches func(scraper.Page) bool) scraper.PageSource

	// NewEnricher is optional.
	NewEnricher func(env Env) scraper.Enricher
}

type Settings struct {
	MaxAPIPages         int
	OzonOutlierFactor   float64
	YandexOutlierFactor float64
}

func DefaultSettings() Settings {
	return Settings{
		MaxAPIPages:         9,
		OzonOutlierFactor:   0.51,
		YandexOutlierFactor: 0.41,
	}
}

type Registry struct {
	adapters map[models.Marketplace]Adapter
}

func NewRegistry(s Settings) *Registry {
	r := &Registry{adapters: make(map[models.Marketplace]Adapter)}
	for _, a := range []Adapter{
		Wildberries(s.MaxAPIPages),
		Ozon(s.OzonOutlierFactor),
		YandexMarket(s.YandexOutlierFactor),
	} {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Marketplace] = a
}

func (r *Registry) Get(m models.Marketplace) (Adapter, error) {
	a, ok := r.adapters[m]
	if !ok {
		return Adapter{}, fmt.Errorf("%w: %s", ErrUnknownMarketplace, m)
	}
	return a, nil
}

func (r *Registry) Marketplaces() []models.Marketplace {
	out := make([]models.Marketplace, 0, len(r.adapters))
	for m := range r.adapters {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
