package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/maltedev/price-spread/internal/parser"
	"github.com/maltedev/price-spread/internal/ratelimit"
)

// PagedAPISource walks numbered API pages starting at 1.
type PagedAPISource struct {
	fetcher    Fetcher
	urlFor     func(page int) string
	maxPages   int
	hasMatches func(Page) bool
	logger     *slog.Logger
}

// NewPagedAPISource builds a source that stops after maxPages pages or at
// the first page for which hasMatches reports false.
func NewPagedAPISource(fetcher Fetcher, urlFor func(page int) string, maxPages int, hasMatches func(Page) bool) *PagedAPISource {
	if maxPages < 1 {
		maxPages = 1
	}
	return &PagedAPISource{
		fetcher:    fetcher,
		urlFor:     urlFor,
		maxPages:   maxPages,
		hasMatches: hasMatches,
		logger:     slog.Default().With("component", "paged_api_source"),
	}
}

func (s *PagedAPISource) Pages(ctx context.Context) ([]Page, error) {
	var pages []Page

	for n := 1; n <= s.maxPages; n++ {
		url := s.urlFor(n)
		body, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			if n == 1 {
				return nil, fmt.Errorf("%w: %w", ErrFatalFetch, err)
			}
			s.logger.Warn("page fetch failed, stopping", "page", n, "error", err)
			break
		}

		page := Page{Number: n, URL: url, Body: body}
		pages = append(pages, page)

		if s.hasMatches != nil && !s.hasMatches(page) {
			s.logger.Debug("page has no matching products, stopping", "page", n)
			break
		}
	}

	return pages, nil
}

// RenderedPageSource renders the search page with all lazy content loaded,
// then renders every additional page the pagination control links to.
type RenderedPageSource struct {
	renderer  Renderer
	searchURL string
	paginator parser.PaginationParser
	limiter   ratelimit.RateLimiter
	logger    *slog.Logger
}

func NewRenderedPageSource(renderer Renderer, searchURL string, paginator parser.PaginationParser, limiter ratelimit.RateLimiter) *RenderedPageSource {
	return &RenderedPageSource{
		renderer:  renderer,
		searchURL: searchURL,
		paginator: paginator,
		limiter:   limiter,
		logger:    slog.Default().With("component", "rendered_page_source"),
	}
}

func (s *RenderedPageSource) Pages(ctx context.Context) ([]Page, error) {
	first, err := s.renderer.RenderFull(ctx, s.searchURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFatalFetch, err)
	}

	pages := []Page{{Number: 1, URL: s.searchURL, Body: first}}

	for _, link := range s.discover(first) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.logger.Warn("stopped loading pages", "error", err)
				break
			}
		}

		body, err := s.renderer.RenderFull(ctx, link.URL)
		if err != nil {
			s.logger.Warn("page omitted", "page", link.Number, "error", fmt.Errorf("%w: %w", ErrPageLoad, err))
			continue
		}
		pages = append(pages, Page{Number: link.Number, URL: link.URL, Body: body})
	}

	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// discover returns distinct page links other than page 1, in page order.
func (s *RenderedPageSource) discover(first []byte) []parser.PageLink {
	if s.paginator == nil {
		return nil
	}

	seen := map[int]struct{}{1: {}}
	var links []parser.PageLink
	for _, link := range s.paginator.ParsePagination(first) {
		if _, ok := seen[link.Number]; ok || link.URL == "" {
			continue
		}
		seen[link.Number] = struct{}{}
		links = append(links, link)
	}

	sort.Slice(links, func(i, j int) bool { return links[i].Number < links[j].Number })
	s.logger.Debug("pagination discovered", "extra_pages", len(links))
	return links
}
