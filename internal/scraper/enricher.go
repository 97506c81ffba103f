package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/maltedev/price-spread/internal/models"
	"github.com/maltedev/price-spread/internal/parser"
	"github.com/maltedev/price-spread/internal/ratelimit"
)

// DetailEnricher renders a product's detail page once and fills its seller
// and id when they are still unknown.
type DetailEnricher struct {
	renderer        Renderer
	parser          parser.DetailParser
	limiter         ratelimit.RateLimiter
	onlyWhenMissing bool
}

// NewDetailEnricher builds a detail enricher. With onlyWhenMissing set, products
// that already carry both id and seller are left alone without a page load.
func NewDetailEnricher(renderer Renderer, p parser.DetailParser, limiter ratelimit.RateLimiter, onlyWhenMissing bool) *DetailEnricher {
	return &DetailEnricher{
		renderer:        renderer,
		parser:          p,
		limiter:         limiter,
		onlyWhenMissing: onlyWhenMissing,
	}
}

func (e *DetailEnricher) Enrich(ctx context.Context, p *models.AcceptedProduct) error {
	if e.onlyWhenMissing && !models.IsUnknown(p.ID) && !models.IsUnknown(p.Seller) {
		return nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := e.renderer.Render(ctx, p.Link)
	if err != nil {
		return classify(err)
	}

	detail, err := e.parser.ParseDetail(body, p.Link)
	if detail.ID != "" && models.IsUnknown(p.ID) {
		p.ID = detail.ID
	}
	if detail.Seller != "" && models.IsUnknown(p.Seller) {
		p.Seller = detail.Seller
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnrichmentParse, err)
	}
	return nil
}

// SalesEnricher asks a JSON endpoint for a product's cumulative sales count.
type SalesEnricher struct {
	fetcher Fetcher
	urlFor  func(id string) string
	parse   func(body []byte) (string, error)
}

func NewSalesEnricher(fetcher Fetcher, urlFor func(id string) string, parse func(body []byte) (string, error)) *SalesEnricher {
	return &SalesEnricher{fetcher: fetcher, urlFor: urlFor, parse: parse}
}

func (e *SalesEnricher) Enrich(ctx context.Context, p *models.AcceptedProduct) error {
	if models.IsUnknown(p.ID) {
		return fmt.Errorf("%w: product id unknown", ErrEnrichmentParse)
	}

	body, err := e.fetcher.Fetch(ctx, e.urlFor(p.ID))
	if err != nil {
		return classify(err)
	}

	sales, err := e.parse(body)
	if err != nil || strings.TrimSpace(sales) == "" {
		return fmt.Errorf("%w: %v", ErrEnrichmentParse, err)
	}
	p.Sales = sales
	return nil
}

// classify separates connect/read timeouts from every other failure.
func classify(err error) error {
	if IsTimeout(err) {
		return fmt.Errorf("%w: %w", ErrEnrichmentTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrEnrichmentParse, err)
}

func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
