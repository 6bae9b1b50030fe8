package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantile(t *testing.T) {
	assert.Equal(t, 0.0, quantile(nil, 0.5))
	assert.Equal(t, 7.0, quantile([]float64{7}, 0.25))

	sample := []float64{10, 12, 14, 16}
	assert.Equal(t, 11.5, quantile(sample, 0.25))
	assert.Equal(t, 13.0, quantile(sample, 0.5))
	assert.Equal(t, 14.5, quantile(sample, 0.75))
	assert.Equal(t, 10.0, quantile(sample, 0))
	assert.Equal(t, 16.0, quantile(sample, 1))

	odd := []float64{1, 2, 3, 4, 100}
	assert.Equal(t, 3.0, quantile(odd, 0.5))
	assert.Equal(t, 2.0, quantile(odd, 0.25))
	assert.Equal(t, 4.0, quantile(odd, 0.75))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 13.0, median([]float64{10, 12, 14, 16}))
	assert.Equal(t, 14.0, median([]float64{10, 14, 16}))
}

func TestIQRFences(t *testing.T) {
	low, high := iqrFences(10, 20)
	assert.Equal(t, -5.0, low)
	assert.Equal(t, 35.0, high)

	// Degenerate spread collapses the fences onto the quartiles.
	low, high = iqrFences(12, 12)
	assert.Equal(t, 12.0, low)
	assert.Equal(t, 12.0, high)
}
