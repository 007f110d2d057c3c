// Package vectorstore provides the vector index gateway and its storage backends.
package vectorstore

import (
	"context"

	"multimodal-rag/internal/domain"
)

// Filter is an equality predicate over metadata fields. All pairs must match.
type Filter map[string]string

// Storage is a backend holding named vector indexes with cosine similarity.
type Storage interface {
	// Describe reports the dimension of the named index and whether it exists.
	Describe(ctx context.Context, index string) (dimension int, exists bool, err error)
	Create(ctx context.Context, index string, dimension int) error
	// Upsert writes records, replacing any with the same ID.
	Upsert(ctx context.Context, index string, records []domain.StoredVector) error
	// Search returns up to topK matches in descending score order, with metadata.
	Search(ctx context.Context, index string, vector []float64, topK int, filter Filter) ([]domain.Candidate, error)
}
