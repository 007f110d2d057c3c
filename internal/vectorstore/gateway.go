package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"multimodal-rag/internal/domain"
)

// DefaultBatchSize bounds the number of records sent per upsert request.
const DefaultBatchSize = 100

// Index is a provisioned vector index handle.
type Index struct {
	Name      string
	Dimension int
}

// Gateway provisions indexes lazily and mediates all writes and queries.
type Gateway struct {
	store     Storage
	batchSize int
	log       logrus.FieldLogger

	mu      sync.Mutex
	indexes map[string]*Index
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBatchSize sets the upsert batch size. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithLogger sets the gateway logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// NewGateway wraps a storage backend.
func NewGateway(store Storage, opts ...Option) *Gateway {
	g := &Gateway{
		store:     store,
		batchSize: DefaultBatchSize,
		log:       logrus.StandardLogger(),
		indexes:   make(map[string]*Index),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsureIndex returns a handle to the named index, creating it with cosine
// similarity when absent. An existing index with another dimension is an error.
func (g *Gateway) EnsureIndex(ctx context.Context, name string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index %s: dimension must be positive, got %d", domain.ErrInvalidInput, name, dimension)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.indexes[name]; ok {
		if idx.Dimension != dimension {
			return nil, &domain.DimensionMismatchError{Index: name, Existing: idx.Dimension, Requested: dimension}
		}
		return idx, nil
	}

	existing, exists, err := g.store.Describe(ctx, name)
	if err != nil {
		return nil, domain.Upstream("vector_index", fmt.Errorf("describe %s: %w", name, err))
	}
	if exists && existing != dimension {
		return nil, &domain.DimensionMismatchError{Index: name, Existing: existing, Requested: dimension}
	}
	if !exists {
		if err := g.store.Create(ctx, name, dimension); err != nil {
			return nil, domain.Upstream("vector_index", fmt.Errorf("create %s: %w", name, err))
		}
		g.log.WithField("index", name).WithField("dimension", dimension).Info("created vector index")
	}

	idx := &Index{Name: name, Dimension: dimension}
	g.indexes[name] = idx
	return idx, nil
}

// Upsert writes records in sequential batches. On failure the returned
// *domain.PartialUpsertError reports how many records were committed.
func (g *Gateway) Upsert(ctx context.Context, idx *Index, records []domain.StoredVector) error {
	for _, r := range records {
		if len(r.Vector) != idx.Dimension {
			return fmt.Errorf("%w: record %s has dimension %d, index %s expects %d",
				domain.ErrInvalidInput, r.ID, len(r.Vector), idx.Name, idx.Dimension)
		}
	}

	committed := 0
	for start := 0; start < len(records); start += g.batchSize {
		end := min(start+g.batchSize, len(records))
		if err := g.store.Upsert(ctx, idx.Name, records[start:end]); err != nil {
			return &domain.PartialUpsertError{
				Index:     idx.Name,
				Committed: committed,
				Total:     len(records),
				Err:       domain.Upstream("vector_index", err),
			}
		}
		committed = end
	}
	g.log.WithField("index", idx.Name).WithField("records", committed).Debug("upserted vectors")
	return nil
}

// Query returns the topK nearest records to vector that match filter, in
// backend order.
func (g *Gateway) Query(ctx context.Context, idx *Index, vector []float64, topK int, filter Filter) ([]domain.Candidate, error) {
	if topK <= 0 {
		return nil, nil
	}
	out, err := g.store.Search(ctx, idx.Name, vector, topK, filter)
	if err != nil {
		return nil, domain.Upstream("vector_index", fmt.Errorf("query %s: %w", idx.Name, err))
	}
	for i := range out {
		if out[i].Text == "" {
			out[i].Text, _ = out[i].Metadata[domain.MetaText].(string)
		}
	}
	return out, nil
}
