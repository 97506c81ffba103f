package filter

// OutlierFilter rejects discounted prices that sit far below the running
// mean of the prices accepted so far in a session. The decision depends on
// acceptance order: the same candidates parsed in another page order can
// produce a different accepted set.
type OutlierFilter struct {
	factor  float64
	enabled bool
}

// NewOutlierFilter returns a filter with the given threshold factor.
func NewOutlierFilter(factor float64) OutlierFilter {
	return OutlierFilter{factor: factor, enabled: true}
}

// DisabledOutlierFilter accepts every price.
func DisabledOutlierFilter() OutlierFilter {
	return OutlierFilter{}
}

func (f OutlierFilter) Enabled() bool {
	return f.enabled
}

func (f OutlierFilter) Factor() float64 {
	return f.factor
}

// Accept returns false when mean > 0 and discounted + factor*mean < mean,
// where mean is the floor mean of running.
func (f OutlierFilter) Accept(discounted int, running []int) bool {
	if !f.enabled {
		return true
	}
	mean := FloorMean(running)
	if mean <= 0 {
		return true
	}
	m := float64(mean)
	return float64(discounted)+f.factor*m >= m
}

// FloorMean returns the integer-floored arithmetic mean, 0 for no values.
func FloorMean(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum / len(values)
}
