package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}

func TestStdDev(t *testing.T) {
	assert.Zero(t, StdDev(nil))
	assert.Zero(t, StdDev([]float64{5}))
	assert.Zero(t, StdDev([]float64{3, 3, 3}))
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 0.001)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 0.25, Clamp01(0.25))
	assert.Equal(t, 1.0, Clamp01(1.5))
}

func TestSafeRatio(t *testing.T) {
	assert.Equal(t, 2.0, SafeRatio(10, 5, 0))
	assert.Equal(t, 0.5, SafeRatio(10, 0, 0.5))
}
