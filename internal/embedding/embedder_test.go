package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-9)
	assert.InDelta(t, 0.8, v[1], 1e-9)
	assert.InDelta(t, 1.0, Norm(v), 1e-9)

	zero := Normalize([]float64{0, 0})
	assert.Equal(t, []float64{0, 0}, zero)
}

func TestEmbedInBatches_PreservesOrder(t *testing.T) {
	var sizes []int
	fn := func(_ context.Context, texts []string) ([][]float64, error) {
		sizes = append(sizes, len(texts))
		out := make([][]float64, len(texts))
		for i, s := range texts {
			out[i] = []float64{float64(len(s))}
		}
		return out, nil
	}

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	got, err := EmbedInBatches(context.Background(), texts, 2, fn)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, [][]float64{{1}, {2}, {3}, {4}, {5}}, got)
}

func TestEmbedInBatches_StopsOnError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	fn := func(_ context.Context, texts []string) ([][]float64, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return make([][]float64, len(texts)), nil
	}

	_, err := EmbedInBatches(context.Background(), []string{"a", "b", "c"}, 1, fn)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestEmbedInBatches_CountMismatch(t *testing.T) {
	fn := func(_ context.Context, texts []string) ([][]float64, error) {
		return [][]float64{{1}}, nil
	}
	_, err := EmbedInBatches(context.Background(), []string{"a", "b"}, 5, fn)
	assert.Error(t, err)
}

func TestEmbedInBatches_Empty(t *testing.T) {
	got, err := EmbedInBatches(context.Background(), nil, 4, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
