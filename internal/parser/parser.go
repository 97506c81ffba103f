package parser

import (
	"errors"

	"github.com/maltedev/price-spread/internal/models"
)

var (
	ErrCandidateParse = errors.New("candidate markup does not match expected shape")
	ErrExtraction     = errors.New("price tokens unusable")
	ErrInvalidID      = errors.New("inline product id is not numeric")
	ErrMalformedPage  = errors.New("result page has no recognizable product container")
	ErrDetailNotFound = errors.New("detail fields not found")
)

// Item is one entry from a result page. Err is set when the entry could not
// be turned into a candidate; the rest of the page is still usable.
type Item struct {
	Candidate models.Candidate
	Err       error
}

// PageLink is a numbered pagination target discovered on the first page.
type PageLink struct {
	Number int
	URL    string
}

// Detail holds the fields a product detail page can contribute.
type Detail struct {
	ID     string
	Seller string
}

type ResultParser interface {
	ParseResults(body []byte) ([]Item, error)
}

type PaginationParser interface {
	ParsePagination(body []byte) []PageLink
}

type DetailParser interface {
	ParseDetail(body []byte, link string) (Detail, error)
}
