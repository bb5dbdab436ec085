package georaster

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

type testSampler [][]float64

func (s testSampler) At(x, y int) (float64, bool) {
	if y < 0 || len(s) <= y || x < 0 || len(s[y]) <= x || math.IsNaN(s[y][x]) {
		return 0, false
	}
	return s[y][x], true
}

func TestInterpolateBilinear(t *testing.T) {
	for _, tc := range []struct {
		name     string
		sampler  testSampler
		coords   [][]float64
		expected []float64
	}{
		{
			name: "simple",
			sampler: testSampler{
				{0, 1, 2},
				{2, 3, 4},
				{4, 5, 6},
			},
			coords: [][]float64{
				{0, 0},
				{1, 0},
				{0, 1},
				{1, 1},
				{0.5, 0.5},
				{0.5, 0},
				{0, 0.5},
				{1, 0.5},
				{0.5, 1},
				{2, 2},
			},
			expected: []float64{
				0,
				1,
				2,
				3,
				1.5,
				0.5,
				1,
				2,
				2.5,
				6,
			},
		},
		{
			name: "missing",
			sampler: testSampler{
				{math.NaN(), 2},
				{4, math.NaN()},
			},
			coords: [][]float64{
				{0.5, 0.5},
				{0, 0},
				{5, 5},
			},
			expected: []float64{
				3,
				math.NaN(),
				math.NaN(),
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, InterpolateBilinear(tc.sampler, tc.coords))
		})
	}
}
