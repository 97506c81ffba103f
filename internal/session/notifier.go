package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maltedev/price-spread/internal/aggregate"
	"github.com/maltedev/price-spread/internal/export"
	"github.com/maltedev/price-spread/internal/models"
)

const (
	ProgressLoadingPages    = "Loading products from result pages..."
	ProgressProcessingItems = "Processing products..."
)

type DeliveryKind string

const (
	DeliveryFailed  DeliveryKind = "failed"
	DeliveryEmpty   DeliveryKind = "empty"
	DeliverySingle  DeliveryKind = "single"
	DeliverySummary DeliveryKind = "summary"
)

// Notifier is the delivery collaborator of a session: a chat front end, the
// console or a message stream. Progress may be called any number of times
// before exactly one Deliver.
type Notifier interface {
	Progress(ctx context.Context, text string) error
	Deliver(ctx context.Context, d Delivery) error
}

// Pair is one reported value with the product link that produced it. Means
// have no link.
type Pair struct {
	Label string `json:"label"`
	Value int    `json:"value"`
	Link  string `json:"link,omitempty"`
}

type Delivery struct {
	SessionID   string             `json:"session_id"`
	Kind        DeliveryKind       `json:"kind"`
	Marketplace models.Marketplace `json:"marketplace"`
	Query       string             `json:"query"`
	Text        string             `json:"text"`
	Pairs       []Pair             `json:"pairs,omitempty"`
	Artifact    *export.Artifact   `json:"-"`
	At          time.Time          `json:"at"`
}

func failedDelivery(query string) (string, []Pair) {
	return fmt.Sprintf("Could not retrieve information about *%s* :(", query), nil
}

func emptyDelivery(query string) (string, []Pair) {
	return fmt.Sprintf("No product matching *%s* was found :(", query), nil
}

func singleDelivery(s *aggregate.Single) (string, []Pair) {
	pairs := []Pair{
		{Label: "Discounted price (sale price)", Value: s.Discounted, Link: s.Link},
		{Label: "Full price", Value: s.Full, Link: s.Link},
		{Label: "Discount", Value: s.Discount, Link: s.Link},
	}

	var b strings.Builder
	b.WriteString("Only 1 product was saved\n\n")
	for _, p := range pairs {
		fmt.Fprintf(&b, "%s: %d\n", p.Label, p.Value)
	}
	fmt.Fprintf(&b, "[Open product](%s)", s.Link)
	return b.String(), pairs
}

func summaryDelivery(query string, s *aggregate.Summary) (string, []Pair) {
	sections := []struct {
		name   string
		metric aggregate.Metric
	}{
		{"discounted price (sale price)", s.Discounted},
		{"full price", s.Full},
		{"discount", s.Discount},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Price information for *%s*\n", query)

	var pairs []Pair
	for _, sec := range sections {
		b.WriteString("\n")
		if !sec.metric.Present {
			fmt.Fprintf(&b, "No %s data\n", sec.name)
			continue
		}
		section := []Pair{
			{Label: "Maximum " + sec.name, Value: sec.metric.Max, Link: sec.metric.MaxLink},
			{Label: "Mean " + sec.name, Value: sec.metric.Mean},
			{Label: "Minimum " + sec.name, Value: sec.metric.Min, Link: sec.metric.MinLink},
		}
		for _, p := range section {
			if p.Link != "" {
				fmt.Fprintf(&b, "[%s: %d](%s)\n", p.Label, p.Value, p.Link)
			} else {
				fmt.Fprintf(&b, "%s: %d\n", p.Label, p.Value)
			}
		}
		pairs = append(pairs, section...)
	}

	return strings.TrimRight(b.String(), "\n"), pairs
}
