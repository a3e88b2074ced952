package embed

import (
	"context"
	"errors"
	"math"
)

// ErrEmbeddingFailed covers backend unavailability and empty input.
// Retryable at the caller's discretion.
var ErrEmbeddingFailed = errors.New("embedding request failed")

// Embedder maps text to fixed-dimension vectors. Deterministic for a
// given backend model and input; callers cache downstream.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// Normalize scales v to unit length in place and returns it, so that
// inner-product search over stored vectors equals cosine similarity.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// NormalizeAll normalizes every vector of a batch in place.
func NormalizeAll(vectors [][]float32) [][]float32 {
	for _, v := range vectors {
		Normalize(v)
	}
	return vectors
}
