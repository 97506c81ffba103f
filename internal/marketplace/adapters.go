package marketplace

import (
	"github.com/maltedev/price-spread/internal/filter"
	"github.com/maltedev/price-spread/internal/models"
	"github.com/maltedev/price-spread/internal/parser"
	"github.com/maltedev/price-spread/internal/scraper"
)

// Wildberries pages through the JSON search API and looks up sales counts.
// Its prices come straight from the API, so no outlier filter applies.
func Wildberries(maxPages int) Adapter {
	p := parser.NewWildberriesParser()
	return Adapter{
		Marketplace: models.Wildberries,
		Parser:      p,
		Outlier:     filter.DisabledOutlierFilter(),
		NewSource: func(env Env, q filter.Query, hasMatches func(scraper.Page) bool) scraper.PageSource {
			return scraper.NewPagedAPISource(env.Fetcher, func(page int) string {
				return parser.WildberriesSearchURL(q.Raw(), page)
			}, maxPages, hasMatches)
		},
		NewEnricher: func(env Env) scraper.Enricher {
			return scraper.NewSalesEnricher(env.Fetcher, parser.WildberriesSalesURL, p.ParseSales)
		},
	}
}

func Ozon(outlierFactor float64) Adapter {
	p := parser.NewOzonParser()
	return Adapter{
		Marketplace:  models.Ozon,
		Parser:       p,
		Outlier:      filter.NewOutlierFilter(outlierFactor),
		NeedsBrowser: true,
		NewSource: func(env Env, q filter.Query, _ func(scraper.Page) bool) scraper.PageSource {
			return scraper.NewRenderedPageSource(env.Renderer, parser.OzonSearchURL(q.Raw()), p, env.Limiter)
		},
		NewEnricher: func(env Env) scraper.Enricher {
			return scraper.NewDetailEnricher(env.Renderer, p, env.Limiter, false)
		},
	}
}

// YandexMarket drops mattress covers that show up under mattress searches.
func YandexMarket(outlierFactor float64) Adapter {
	p := parser.NewYandexParser()
	return Adapter{
		Marketplace:  models.YandexMarket,
		Parser:       p,
		Outlier:      filter.NewOutlierFilter(outlierFactor),
		Exclusions:   [][]string{{"матрац", "к"}},
		NeedsBrowser: true,
		NewSource: func(env Env, q filter.Query, _ func(scraper.Page) bool) scraper.PageSource {
			return scraper.NewRenderedPageSource(env.Renderer, parser.YandexSearchURL(q.Raw(), 1), parser.NewYandexPaginator(q.Raw()), env.Limiter)
		},
		NewEnricher: func(env Env) scraper.Enricher {
			return scraper.NewDetailEnricher(env.Renderer, p, env.Limiter, true)
		},
	}
}
