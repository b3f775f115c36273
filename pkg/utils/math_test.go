package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(L2Norm(v)-1) > 1e-6 {
		t.Errorf("norm after NormalizeL2 = %f", L2Norm(v))
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Error("zero vector should be unchanged")
	}
}

func TestSquaredL2(t *testing.T) {
	if d := SquaredL2([]float32{1, 0}, []float32{0, 1}); d != 2 {
		t.Errorf("SquaredL2 = %f, want 2", d)
	}
	if d := SquaredL2([]float32{1, 2}, []float32{1, 2}); d != 0 {
		t.Errorf("SquaredL2 of equal vectors = %f", d)
	}
}
