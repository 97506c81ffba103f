package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutlierFilterThreshold(t *testing.T) {
	f := NewOutlierFilter(0.5)
	running := []int{100}

	assert.False(t, f.Accept(49, running), "49 + 50 < 100 must be rejected")
	assert.True(t, f.Accept(51, running), "51 + 50 >= 100 must be accepted")
	assert.True(t, f.Accept(50, running), "boundary is accepted")
	assert.True(t, f.Accept(500, running))
}

func TestOutlierFilterEmptyRunningAcceptsAll(t *testing.T) {
	f := NewOutlierFilter(0.51)

	assert.True(t, f.Accept(1, nil))
	assert.True(t, f.Accept(0, []int{}))
}

func TestOutlierFilterDisabled(t *testing.T) {
	f := DisabledOutlierFilter()

	assert.False(t, f.Enabled())
	assert.True(t, f.Accept(1, []int{1000, 2000}))
}

func TestOutlierFilterIsOrderDependent(t *testing.T) {
	f := NewOutlierFilter(0.51)

	// High price first: the cheap item is rejected against the running mean.
	var running []int
	var acceptedHighFirst []int
	for _, p := range []int{1000, 400} {
		if f.Accept(p, running) {
			running = append(running, p)
			acceptedHighFirst = append(acceptedHighFirst, p)
		}
	}

	running = nil
	var acceptedLowFirst []int
	for _, p := range []int{400, 1000} {
		if f.Accept(p, running) {
			running = append(running, p)
			acceptedLowFirst = append(acceptedLowFirst, p)
		}
	}

	assert.Equal(t, []int{1000}, acceptedHighFirst)
	assert.Equal(t, []int{400, 1000}, acceptedLowFirst)
}

func TestFloorMean(t *testing.T) {
	assert.Equal(t, 0, FloorMean(nil))
	assert.Equal(t, 100, FloorMean([]int{80, 100, 120}))
	assert.Equal(t, 850, FloorMean([]int{800, 900}))
	assert.Equal(t, 1, FloorMean([]int{1, 2}))
}
