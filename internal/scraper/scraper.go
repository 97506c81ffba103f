package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/price-spread/internal/models"
)

var (
	ErrFatalFetch        = errors.New("first result page could not be fetched")
	ErrPageLoad          = errors.New("result page failed to load")
	ErrEnrichmentTimeout = errors.New("enrichment request timed out")
	ErrEnrichmentParse   = errors.New("enrichment response unusable")
	ErrUnexpectedStatus  = errors.New("unexpected HTTP status")
)

// Page is one fetched result page.
type Page struct {
	Number int
	URL    string
	Body   []byte
}

// PageSource yields the result pages of one search, ordered by page number.
// A failure to obtain the first page is reported as ErrFatalFetch; later
// failures only shorten the result.
type PageSource interface {
	Pages(ctx context.Context) ([]Page, error)
}

// Renderer produces markup for pages that need a real browser.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
	RenderFull(ctx context.Context, url string) ([]byte, error)
	Close() error
}

// Fetcher retrieves a raw HTTP response body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Enricher fills additional fields of an accepted product. A returned error
// never removes the product; the affected fields stay unknown.
type Enricher interface {
	Enrich(ctx context.Context, p *models.AcceptedProduct) error
}
