package models

import (
	"fmt"
	"strings"
)

// Unknown marks an enrichment field that could not be filled.
const Unknown = "unknown"

type Marketplace string

const (
	Wildberries  Marketplace = "wildberries"
	Ozon         Marketplace = "ozon"
	YandexMarket Marketplace = "yandex_market"
)

var marketplaceNames = map[Marketplace]string{
	Wildberries:  "Wildberries",
	Ozon:         "Ozon",
	YandexMarket: "Yandex Market",
}

func Marketplaces() []Marketplace {
	return []Marketplace{Wildberries, Ozon, YandexMarket}
}

func ParseMarketplace(s string) (Marketplace, error) {
	m := Marketplace(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := marketplaceNames[m]; !ok {
		return "", fmt.Errorf("unknown marketplace: %q", s)
	}
	return m, nil
}

func (m Marketplace) DisplayName() string {
	if name, ok := marketplaceNames[m]; ok {
		return name
	}
	return string(m)
}

// Candidate is a product entry scraped from a result page before any
// matching or price validation.
type Candidate struct {
	Name        string
	Link        string
	PriceTokens []string
	ID          string
	Seller      string
	Rating      string
	Reviews     string
}

// AcceptedProduct is a candidate that passed keyword matching and the
// outlier filter.
type AcceptedProduct struct {
	Link            string `json:"link"`
	ID              string `json:"id"`
	Name            string `json:"name"`
	Seller          string `json:"seller"`
	FullPrice       int    `json:"full_price"`
	DiscountedPrice int    `json:"discounted_price"`
	Discount        int    `json:"discount"`
	Sales           string `json:"sales"`
	Rating          string `json:"rating,omitempty"`
	Reviews         string `json:"reviews,omitempty"`
}

// NewAcceptedProduct derives the discount and fills missing enrichment
// fields with Unknown.
func NewAcceptedProduct(c Candidate, full, discounted int) AcceptedProduct {
	return AcceptedProduct{
		Link:            c.Link,
		ID:              orUnknown(c.ID),
		Name:            c.Name,
		Seller:          orUnknown(c.Seller),
		FullPrice:       full,
		DiscountedPrice: discounted,
		Discount:        full - discounted,
		Sales:           Unknown,
		Rating:          c.Rating,
		Reviews:         c.Reviews,
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return strings.TrimSpace(s)
}

func IsUnknown(s string) bool {
	return s == "" || s == Unknown
}
