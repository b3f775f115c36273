package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDistanceToSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, DistanceToSimilarity(0))
	assert.Equal(t, 0.5, DistanceToSimilarity(1))
	assert.Equal(t, 1.0, DistanceToSimilarity(-3), "negative distances clamp to zero")
	assert.InDelta(t, 0.40, DistanceToSimilarity(1.5), 1e-12)
}

func TestMetric_SquaredL2(t *testing.T) {
	assert.Equal(t, 0.25, MetricL2.SquaredL2(0.25))
	assert.Equal(t, 0.0, MetricInnerProduct.SquaredL2(1), "identical unit vectors")
	assert.Equal(t, 2.0, MetricInnerProduct.SquaredL2(0), "orthogonal unit vectors")
	assert.Equal(t, 0.0, MetricInnerProduct.SquaredL2(1.0001), "rounding above 1 clamps to zero")
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	assert.NoError(t, err)
	assert.Equal(t, MetricL2, m)
	m, err = ParseMetric("inner_product")
	assert.NoError(t, err)
	assert.Equal(t, MetricInnerProduct, m)
	_, err = ParseMetric("cosine")
	assert.Error(t, err)
}

func TestDistanceToSimilarity_Monotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(0, 1e6).Draw(t, "a")
		b := rapid.Float64Range(0, 1e6).Draw(t, "b")
		if a > b {
			a, b = b, a
		}
		sa, sb := DistanceToSimilarity(a), DistanceToSimilarity(b)
		if sa < sb {
			t.Fatalf("similarity not decreasing: d=%v -> %v, d=%v -> %v", a, sa, b, sb)
		}
		if sb <= 0 || sa > 1 {
			t.Fatalf("similarity out of (0,1]: %v %v", sa, sb)
		}
	})
}
