// Package memory is an in-process vector store using brute-force cosine similarity.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

type collection struct {
	dimension int
	ids       map[string]int
	records   []domain.StoredVector
}

// Storage holds any number of named indexes in memory.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) Describe(_ context.Context, index string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[index]
	if !ok {
		return 0, false, nil
	}
	return c.dimension, true, nil
}

func (s *Storage) Create(_ context.Context, index string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[index]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("index %s exists with dimension %d", index, c.dimension)
		}
		return nil
	}
	s.collections[index] = &collection{dimension: dimension, ids: make(map[string]int)}
	return nil
}

func (s *Storage) Upsert(_ context.Context, index string, records []domain.StoredVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[index]
	if !ok {
		return fmt.Errorf("index %s not found", index)
	}
	for _, r := range records {
		if len(r.Vector) != c.dimension {
			return fmt.Errorf("vector dimension mismatch for %s", r.ID)
		}
	}
	for _, r := range records {
		r.Vector = append([]float64(nil), r.Vector...)
		r.Metadata = maps.Clone(r.Metadata)
		if i, ok := c.ids[r.ID]; ok {
			c.records[i] = r
			continue
		}
		c.ids[r.ID] = len(c.records)
		c.records = append(c.records, r)
	}
	return nil
}

func (s *Storage) Search(_ context.Context, index string, vector []float64, topK int, filter vectorstore.Filter) ([]domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[index]
	if !ok {
		return nil, fmt.Errorf("index %s not found", index)
	}
	if topK <= 0 {
		topK = 5
	}

	var matched []domain.StoredVector
	for _, r := range c.records {
		if matches(r.Metadata, filter) {
			matched = append(matched, r)
		}
	}
	// stored and query vectors are L2-normalized, so dot is cosine
	scores := make([]float64, len(matched))
	for i := range matched {
		scores[i] = dot(matched[i].Vector, vector)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.Candidate, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		text, _ := matched[j].Metadata[domain.MetaText].(string)
		results = append(results, domain.Candidate{
			Score:    scores[j],
			Text:     text,
			Metadata: maps.Clone(matched[j].Metadata),
		})
	}
	return results, nil
}

// Len returns the number of records in index.
func (s *Storage) Len(index string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[index]; ok {
		return len(c.records)
	}
	return 0
}

func matches(meta map[string]any, filter vectorstore.Filter) bool {
	for k, want := range filter {
		v, ok := meta[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	quicksort(idxs, vals, 0, len(idxs)-1)
	return idxs
}

func quicksort(idxs []int, vals []float64, lo, hi int) {
	if lo >= hi {
		return
	}
	i, j := lo, hi
	pivot := vals[idxs[(lo+hi)/2]]
	for i <= j {
		for vals[idxs[i]] > pivot { // desc order
			i++
		}
		for vals[idxs[j]] < pivot {
			j--
		}
		if i <= j {
			idxs[i], idxs[j] = idxs[j], idxs[i]
			i++
			j--
		}
	}
	if lo < j {
		quicksort(idxs, vals, lo, j)
	}
	if i < hi {
		quicksort(idxs, vals, i, hi)
	}
}
