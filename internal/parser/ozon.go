package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/price-spread/internal/models"
)

const ozonBaseURL = "https://ozon.ru"

type OzonSelectors struct {
	Container  string
	Product    string
	NameLink   string
	Name       string
	Prices     string
	Pagination string
	Seller     string
}

func DefaultOzonSelectors() OzonSelectors {
	return OzonSelectors{
		Container:  "#paginatorContent div.widget-search-result-container.y8i div.iy9",
		Product:    "div.i6w.iw7 div.i7w",
		NameLink:   "a.tile-hover-target.i3t.it4",
		Name:       "div.b8a.ac.ac0.i3t span.tsBody500Medium",
		Prices:     "div.c3124-a0 span",
		Pagination: "div.pe9 div.eq0 div.pe3 div.p3e a.p1e",
		Seller:     `[data-widget="webCurrentSeller"] a[title], a[href*="/seller/"]`,
	}
}

type OzonParser struct {
	selectors OzonSelectors
	baseURL   string
}

func NewOzonParser() *OzonParser {
	return &OzonParser{
		selectors: DefaultOzonSelectors(),
		baseURL:   ozonBaseURL,
	}
}

var ozonProductIDPattern = regexp.MustCompile(`/product/(?:[^/?#]*-)?(\d+)/?`)

func (p *OzonParser) ParseResults(body []byte) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	container := doc.Find(p.selectors.Container).First()
	if container.Length() == 0 {
		return nil, ErrMalformedPage
	}

	var items []Item
	container.Find(p.selectors.Product).Each(func(_ int, s *goquery.Selection) {
		items = append(items, p.parseProduct(s))
	})
	return items, nil
}

func (p *OzonParser) parseProduct(s *goquery.Selection) Item {
	anchor := s.Find(p.selectors.NameLink).First()
	href, ok := anchor.Attr("href")
	if !ok || href == "" {
		return Item{Err: fmt.Errorf("%w: product link missing", ErrCandidateParse)}
	}

	name := strings.TrimSpace(anchor.Find(p.selectors.Name).First().Text())
	if name == "" {
		return Item{Err: fmt.Errorf("%w: product name missing", ErrCandidateParse)}
	}

	var prices []string
	s.Find(p.selectors.Prices).EachWithBreak(func(i int, span *goquery.Selection) bool {
		prices = append(prices, strings.TrimSpace(span.Text()))
		return len(prices) < 2
	})

	link := p.absolute(href)
	return Item{Candidate: models.Candidate{
		Name:        name,
		Link:        link,
		PriceTokens: prices,
		ID:          OzonProductID(link),
	}}
}

// ParsePagination returns the numbered links of the pagination control. The
// first link points at page 1 and is skipped; a control with a single link
// yields no extra pages.
func (p *OzonParser) ParsePagination(body []byte) []PageLink {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []PageLink
	doc.Find(p.selectors.Pagination).Each(func(i int, a *goquery.Selection) {
		if i == 0 {
			return
		}
		num, err := strconv.Atoi(strings.TrimSpace(a.Text()))
		if err != nil || num < 2 {
			return
		}
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		links = append(links, PageLink{Number: num, URL: p.absolute(href)})
	})
	return links
}

func (p *OzonParser) ParseDetail(body []byte, link string) (Detail, error) {
	detail := Detail{ID: OzonProductID(link)}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return detail, fmt.Errorf("failed to parse HTML: %w", err)
	}

	seller := doc.Find(p.selectors.Seller).First()
	if title, ok := seller.Attr("title"); ok && strings.TrimSpace(title) != "" {
		detail.Seller = strings.TrimSpace(title)
	} else {
		detail.Seller = strings.TrimSpace(seller.Text())
	}

	if detail.Seller == "" && detail.ID == "" {
		return detail, ErrDetailNotFound
	}
	return detail, nil
}

func OzonSearchURL(query string) string {
	return ozonBaseURL + "/search?text=" + url.QueryEscape(query)
}

// OzonProductID extracts the numeric product id from an Ozon product link.
func OzonProductID(link string) string {
	m := ozonProductIDPattern.FindStringSubmatch(link)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (p *OzonParser) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return p.baseURL + href
}
