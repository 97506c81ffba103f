package app

import (
	"log/slog"

	"github.com/maltedev/price-spread/internal/browser"
	"github.com/maltedev/price-spread/internal/config"
	"github.com/maltedev/price-spread/internal/export"
	"github.com/maltedev/price-spread/internal/marketplace"
	"github.com/maltedev/price-spread/internal/ratelimit"
	"github.com/maltedev/price-spread/internal/scraper"
	"github.com/maltedev/price-spread/internal/session"
)

// NewRegistry builds the marketplace adapters from scraper settings.
func NewRegistry(cfg *config.Config) *marketplace.Registry {
	return marketplace.NewRegistry(marketplace.Settings{
		MaxAPIPages:         cfg.Scraper.MaxAPIPages,
		OzonOutlierFactor:   cfg.Scraper.OzonOutlierFactor,
		YandexOutlierFactor: cfg.Scraper.YandexOutlierFactor,
	})
}

// BrowserOptions maps browser settings onto renderer options.
func BrowserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ScrollPause = cfg.Browser.ScrollPause
	opts.MaxScrollAttempts = cfg.Browser.MaxScrollAttempts
	return opts
}

// NewRunner wires a session runner from configuration. Every session gets
// its own limiter, fetcher and lazily launched browser.
func NewRunner(cfg *config.Config, metrics *session.Metrics, logger *slog.Logger) *session.Runner {
	browserOpts := BrowserOptions(cfg)

	return session.NewRunner(NewRegistry(cfg), export.NewExporter(cfg.Export.Dir),
		session.WithLimiterFactory(func() ratelimit.RateLimiter {
			return ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax)
		}),
		session.WithFetcherFactory(func(limiter ratelimit.RateLimiter) scraper.Fetcher {
			opts := scraper.DefaultFetcherOptions()
			opts.Timeout = cfg.Scraper.RequestTimeout
			opts.UserAgent = cfg.Scraper.UserAgent
			opts.Limiter = limiter
			return scraper.NewHTTPFetcher(opts)
		}),
		session.WithRendererFactory(func() scraper.Renderer {
			return browser.NewRenderer(browserOpts)
		}),
		session.WithMetrics(metrics),
		session.WithLogger(logger),
	)
}
