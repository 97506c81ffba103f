package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/price-spread/internal/models"
)

const yandexBaseURL = "https://market.yandex.ru"

type YandexSelectors struct {
	Results    string
	Product    string
	Article    string
	Name       string
	PriceBlock string
	Seller     string
	Pagination string
}

func DefaultYandexSelectors() YandexSelectors {
	return YandexSelectors{
		Results:    `main#searchResults[aria-label="Результаты поиска"]`,
		Product:    "div[data-index]",
		Article:    "article",
		Name:       "div._1GfBD h3 a span",
		PriceBlock: "div.UZf17 div._2p_cb a",
		Seller:     `div[data-zone-name="shop-name"] span`,
		Pagination: "div._2Y-DM div.B-RPM > div",
	}
}

type YandexParser struct {
	selectors YandexSelectors
	baseURL   string
}

func NewYandexParser() *YandexParser {
	return &YandexParser{
		selectors: DefaultYandexSelectors(),
		baseURL:   yandexBaseURL,
	}
}

var yandexSkuPattern = regexp.MustCompile(`[?&]sku=(\d+)`)

type zoneData struct {
	SkuID json.RawMessage `json:"skuId"`
}

func (p *YandexParser) ParseResults(body []byte) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := doc.Find(p.selectors.Results).First()
	if results.Length() == 0 {
		return nil, ErrMalformedPage
	}

	var items []Item
	results.Find(p.selectors.Product).Each(func(_ int, s *goquery.Selection) {
		idx, err := strconv.Atoi(s.AttrOr("data-index", ""))
		if err != nil || idx <= 0 {
			return
		}
		items = append(items, p.parseProduct(s))
	})
	return items, nil
}

func (p *YandexParser) parseProduct(s *goquery.Selection) Item {
	article := s.Find(p.selectors.Article).First()
	href, ok := article.Find("a").First().Attr("href")
	if !ok || href == "" {
		return Item{Err: fmt.Errorf("%w: product link missing", ErrCandidateParse)}
	}

	name := strings.TrimSpace(s.Find(p.selectors.Name).First().Text())
	if name == "" {
		return Item{Err: fmt.Errorf("%w: product name missing", ErrCandidateParse)}
	}

	block := s.Find(p.selectors.PriceBlock).First()
	if block.Length() == 0 {
		return Item{Err: fmt.Errorf("%w: price block missing", ErrCandidateParse)}
	}

	var prices []string
	block.Find("span").AddSelection(block.Find("h3")).Each(func(_ int, el *goquery.Selection) {
		if cleaned := CleanPriceToken(el.Text()); isDigits(cleaned) {
			prices = append(prices, cleaned)
		}
	})

	candidate := models.Candidate{
		Name:        name,
		Link:        p.absolute(href),
		PriceTokens: prices,
		Seller:      strings.TrimSpace(s.Find(p.selectors.Seller).First().Text()),
	}

	id, err := skuID(article.AttrOr("data-zone-data", ""))
	if err != nil {
		return Item{Candidate: candidate, Err: err}
	}
	candidate.ID = id

	return Item{Candidate: candidate}
}

// skuID reads skuId from the article's zone data. Missing or unreadable data
// yields an empty id; a present but non-numeric id is an error.
func skuID(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	var zd zoneData
	if err := json.Unmarshal([]byte(raw), &zd); err != nil || len(zd.SkuID) == 0 {
		return "", nil
	}

	var id string
	if err := json.Unmarshal(zd.SkuID, &id); err != nil {
		id = string(zd.SkuID)
	}
	if id == "null" || id == "" {
		return "", nil
	}
	if !isDigits(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return id, nil
}

// NewYandexPaginator builds a pagination parser whose page links are derived
// from the raw query text.
func NewYandexPaginator(query string) PaginationParser {
	return &yandexPaginator{parser: NewYandexParser(), query: query}
}

type yandexPaginator struct {
	parser *YandexParser
	query  string
}

func (y *yandexPaginator) ParsePagination(body []byte) []PageLink {
	return y.parser.ParsePagination(body, y.query)
}

// ParsePagination collects page numbers greater than one from the pagination
// control and builds their search URLs for query.
func (p *YandexParser) ParsePagination(body []byte, query string) []PageLink {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[int]struct{})
	var links []PageLink
	doc.Find(p.selectors.Pagination).Each(func(_ int, div *goquery.Selection) {
		num, err := strconv.Atoi(strings.TrimSpace(div.Find("div").First().Text()))
		if err != nil || num <= 1 {
			return
		}
		if _, ok := seen[num]; ok {
			return
		}
		seen[num] = struct{}{}
		links = append(links, PageLink{Number: num, URL: YandexSearchURL(query, num)})
	})
	return links
}

func (p *YandexParser) ParseDetail(body []byte, link string) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Detail{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var detail Detail
	detail.Seller = strings.TrimSpace(doc.Find(p.selectors.Seller).First().Text())

	doc.Find("[data-zone-data]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		id, err := skuID(s.AttrOr("data-zone-data", ""))
		if err == nil && id != "" {
			detail.ID = id
			return false
		}
		return true
	})
	if detail.ID == "" {
		if m := yandexSkuPattern.FindStringSubmatch(link); len(m) == 2 {
			detail.ID = m[1]
		}
	}

	if detail.Seller == "" && detail.ID == "" {
		return detail, ErrDetailNotFound
	}
	return detail, nil
}

// YandexSearchURL builds the search URL; page 1 carries no page parameter.
func YandexSearchURL(query string, page int) string {
	u := yandexBaseURL + "/search?text=" + url.QueryEscape(query)
	if page > 1 {
		u += "&page=" + strconv.Itoa(page)
	}
	return u
}

func (p *YandexParser) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return p.baseURL + href
}
