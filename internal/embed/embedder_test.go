package embed

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
	}{
		{"simple", []float32{3, 4}},
		{"negative components", []float32{-1, 2, -3}},
		{"already unit", []float32{1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Normalize(tt.input)
			var sum float64
			for _, x := range v {
				sum += float64(x) * float64(x)
			}
			if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
				t.Errorf("norm after Normalize = %f, want 1.0", math.Sqrt(sum))
			}
		})
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	for i, x := range v {
		if x != 0 {
			t.Errorf("component %d changed: %f", i, x)
		}
	}
}

func TestNormalizeAll(t *testing.T) {
	batch := [][]float32{{3, 4}, {0, 5}}
	NormalizeAll(batch)

	if math.Abs(float64(batch[0][0])-0.6) > 1e-5 || math.Abs(float64(batch[1][1])-1.0) > 1e-5 {
		t.Errorf("batch not normalized: %v", batch)
	}
}
