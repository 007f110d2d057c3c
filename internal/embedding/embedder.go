// Package embedding holds helpers shared by the text and visual embedders.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 32

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float64) []float64 {
	n := Norm(v)
	if n == 0 {
		return v
	}
	for i := range v {
		v[i] /= n
	}
	return v
}

// BatchFunc embeds one batch of texts, returning vectors in input order.
type BatchFunc func(ctx context.Context, texts []string) ([][]float64, error)

// EmbedInBatches calls fn over consecutive slices of at most size texts and
// concatenates the results. Output order matches input order.
func EmbedInBatches(ctx context.Context, texts []string, size int, fn BatchFunc) ([][]float64, error) {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+size, len(texts))
		vecs, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding batch at %d: got %d vectors for %d inputs", start, len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
