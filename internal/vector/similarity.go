package vector

import "fmt"

// Metric names the native distance an index reports.
type Metric string

const (
	// MetricL2 is squared Euclidean distance; smaller is closer.
	MetricL2 Metric = "l2"
	// MetricInnerProduct is the dot product of unit vectors; larger is closer.
	MetricInnerProduct Metric = "inner_product"
)

// ParseMetric validates a configured metric name. Empty means MetricL2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricL2, "":
		return MetricL2, nil
	case MetricInnerProduct:
		return MetricInnerProduct, nil
	default:
		return "", fmt.Errorf("unknown metric %q (supported: l2, inner_product)", s)
	}
}

// SquaredL2 converts a native index score to squared L2 distance.
// For unit vectors ||a-b||^2 = 2 - 2*a.b, so inner-product scores map onto the same scale.
func (m Metric) SquaredL2(raw float32) float64 {
	d := float64(raw)
	if m == MetricInnerProduct {
		d = 2 - 2*d
	}
	if d < 0 {
		return 0
	}
	return d
}

// DistanceToSimilarity maps a non-negative distance to (0, 1]: 1/(1+d).
// Negative inputs are treated as zero.
func DistanceToSimilarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}
