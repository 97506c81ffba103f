package aggregate

import (
	"sort"

	"github.com/maltedev/price-spread/internal/filter"
	"github.com/maltedev/price-spread/internal/models"
)

type Kind string

const (
	KindEmpty   Kind = "empty"
	KindSingle  Kind = "single"
	KindSummary Kind = "summary"
)

// Distribution maps a price value to the link of the product that produced
// it. A later product with the same value replaces the earlier link; zero
// values are never stored.
type Distribution struct {
	links map[int]string
}

func NewDistribution() *Distribution {
	return &Distribution{links: make(map[int]string)}
}

func (d *Distribution) Add(value int, link string) {
	if value == 0 {
		return
	}
	d.links[value] = link
}

func (d *Distribution) Len() int {
	return len(d.links)
}

func (d *Distribution) Link(value int) (string, bool) {
	link, ok := d.links[value]
	return link, ok
}

// Values returns the distinct stored values in ascending order.
func (d *Distribution) Values() []int {
	values := make([]int, 0, len(d.links))
	for v := range d.links {
		values = append(values, v)
	}
	sort.Ints(values)
	return values
}

func (d *Distribution) Metric() Metric {
	values := d.Values()
	if len(values) == 0 {
		return Metric{}
	}
	lo, hi := values[0], values[len(values)-1]
	return Metric{
		Present: true,
		Max:     hi,
		MaxLink: d.links[hi],
		Mean:    filter.FloorMean(values),
		Min:     lo,
		MinLink: d.links[lo],
	}
}

type Metric struct {
	Present bool   `json:"present"`
	Max     int    `json:"max"`
	MaxLink string `json:"max_link"`
	Mean    int    `json:"mean"`
	Min     int    `json:"min"`
	MinLink string `json:"min_link"`
}

type Summary struct {
	Discounted Metric `json:"discounted"`
	Full       Metric `json:"full"`
	Discount   Metric `json:"discount"`
}

type Single struct {
	Full       int    `json:"full"`
	Discounted int    `json:"discounted"`
	Discount   int    `json:"discount"`
	Link       string `json:"link"`
}

type Outcome struct {
	Kind    Kind     `json:"kind"`
	Summary *Summary `json:"summary,omitempty"`
	Single  *Single  `json:"single,omitempty"`
}

// Engine accumulates accepted products into the full, discounted and
// discount distributions. It is owned by one session.
type Engine struct {
	full       *Distribution
	discounted *Distribution
	discount   *Distribution
	products   []models.AcceptedProduct
}

func NewEngine() *Engine {
	return &Engine{
		full:       NewDistribution(),
		discounted: NewDistribution(),
		discount:   NewDistribution(),
	}
}

func (e *Engine) Add(p models.AcceptedProduct) {
	e.full.Add(p.FullPrice, p.Link)
	e.discounted.Add(p.DiscountedPrice, p.Link)
	e.discount.Add(p.Discount, p.Link)
	e.products = append(e.products, p)
}

// DiscountedPrices returns the distinct discounted prices accepted so far,
// the running set the outlier filter compares against.
func (e *Engine) DiscountedPrices() []int {
	return e.discounted.Values()
}

func (e *Engine) Count() int {
	return len(e.products)
}

func (e *Engine) Products() []models.AcceptedProduct {
	out := make([]models.AcceptedProduct, len(e.products))
	copy(out, e.products)
	return out
}

// Summarize picks the outcome by the number of accepted products.
func (e *Engine) Summarize() Outcome {
	switch len(e.products) {
	case 0:
		return Outcome{Kind: KindEmpty}
	case 1:
		p := e.products[0]
		return Outcome{Kind: KindSingle, Single: &Single{
			Full:       p.FullPrice,
			Discounted: p.DiscountedPrice,
			Discount:   p.Discount,
			Link:       p.Link,
		}}
	default:
		return Outcome{Kind: KindSummary, Summary: &Summary{
			Discounted: e.discounted.Metric(),
			Full:       e.full.Metric(),
			Discount:   e.discount.Metric(),
		}}
	}
}
