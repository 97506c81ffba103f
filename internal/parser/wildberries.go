package parser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/maltedev/price-spread/internal/models"
)

const (
	wildberriesSearchURL = "https://search.wb.ru/exactmatch/ru/common/v4/search"
	wildberriesSalesURL  = "https://product-order-qnt.wildberries.ru/by-nm/"
)

type wbSearchResponse struct {
	Data struct {
		Products []wbProduct `json:"products"`
	} `json:"data"`
}

type wbProduct struct {
	ID         *int64   `json:"id"`
	Name       string   `json:"name"`
	Brand      string   `json:"brand"`
	BrandID    int64    `json:"brandId"`
	PriceU     *int64   `json:"priceU"`
	SalePriceU *int64   `json:"salePriceU"`
	Rating     *float64 `json:"rating"`
	Feedbacks  *int64   `json:"feedbacks"`
}

type wbSalesEntry struct {
	Qnt *int64 `json:"qnt"`
}

type WildberriesParser struct{}

func NewWildberriesParser() *WildberriesParser {
	return &WildberriesParser{}
}

// ParseResults decodes one search API page. Prices arrive in kopecks.
func (p *WildberriesParser) ParseResults(body []byte) ([]Item, error) {
	var resp wbSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	items := make([]Item, 0, len(resp.Data.Products))
	for _, product := range resp.Data.Products {
		items = append(items, p.parseProduct(product))
	}
	return items, nil
}

func (p *WildberriesParser) parseProduct(product wbProduct) Item {
	if product.ID == nil || strings.TrimSpace(product.Name) == "" {
		return Item{Err: fmt.Errorf("%w: product id or name missing", ErrCandidateParse)}
	}

	id := strconv.FormatInt(*product.ID, 10)
	candidate := models.Candidate{
		Name:   product.Name,
		Link:   WildberriesProductURL(id),
		ID:     id,
		Seller: strings.TrimSpace(product.Brand),
	}

	if product.PriceU != nil {
		candidate.PriceTokens = append(candidate.PriceTokens, strconv.FormatInt(*product.PriceU/100, 10))
	}
	if product.SalePriceU != nil {
		candidate.PriceTokens = append(candidate.PriceTokens, strconv.FormatInt(*product.SalePriceU/100, 10))
	}
	if product.Rating != nil {
		candidate.Rating = strconv.FormatFloat(*product.Rating, 'f', -1, 64)
	}
	if product.Feedbacks != nil {
		candidate.Reviews = strconv.FormatInt(*product.Feedbacks, 10)
	}

	return Item{Candidate: candidate}
}

// ParseSales reads the cumulative order quantity from a sales endpoint payload.
func (p *WildberriesParser) ParseSales(body []byte) (string, error) {
	var entries []wbSalesEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", fmt.Errorf("failed to decode sales payload: %w", err)
	}
	if len(entries) == 0 || entries[0].Qnt == nil {
		return "", fmt.Errorf("sales payload has no quantity")
	}
	return strconv.FormatInt(*entries[0].Qnt, 10), nil
}

func WildberriesSearchURL(query string, page int) string {
	words := strings.Fields(query)
	for i, w := range words {
		words[i] = url.PathEscape(w)
	}
	return fmt.Sprintf("%s?appType=1&curr=rub&dest=-1257786&page=%d&query=%s&resultset=catalog&sort=popular&spp=24&suppressSpellcheck=false",
		wildberriesSearchURL, page, strings.Join(words, "%20"))
}

func WildberriesProductURL(id string) string {
	return "https://www.wildberries.ru/catalog/" + id + "/detail.aspx"
}

func WildberriesSalesURL(id string) string {
	return wildberriesSalesURL + "?nm=" + url.QueryEscape(id)
}
