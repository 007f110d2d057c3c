// Package retriever finds stored text and image evidence for a question.
package retriever

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/vectorstore"
)

// DefaultTopK is used when a caller passes a non-positive topK.
const DefaultTopK = 5

// Indexes resolves the text and image index handles for a given vector dimension.
type Indexes interface {
	EnsureIndex(ctx context.Context, name string, dimension int) (*vectorstore.Index, error)
	Query(ctx context.Context, idx *vectorstore.Index, vector []float64, topK int, filter vectorstore.Filter) ([]domain.Candidate, error)
}

// Retriever queries the text and image indexes.
type Retriever struct {
	models     domain.Models
	gw         Indexes
	textIndex  string
	imageIndex string
	log        logrus.FieldLogger
}

// New creates a retriever over the named indexes.
func New(models domain.Models, gw Indexes, textIndex, imageIndex string, log logrus.FieldLogger) *Retriever {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Retriever{models: models, gw: gw, textIndex: textIndex, imageIndex: imageIndex, log: log}
}

// RetrieveText returns the topK text-index candidates for question that
// belong to session, in descending score order.
func (r *Retriever) RetrieveText(ctx context.Context, question string, session domain.SessionID, topK int) ([]domain.Candidate, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrInvalidInput
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	emb, err := r.models.TextEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := emb.Embed(ctx, question)
	if err != nil {
		return nil, domain.Upstream("embedding", err)
	}
	idx, err := r.gw.EnsureIndex(ctx, r.textIndex, len(vec))
	if err != nil {
		return nil, err
	}
	found, err := r.gw.Query(ctx, idx, vec, topK, vectorstore.Filter{domain.MetaSessionID: session.String()})
	if err != nil {
		return nil, err
	}

	// the backend applies the filter; this guards against one that ignores it
	out := found[:0]
	for _, c := range found {
		if c.Session() == session {
			out = append(out, c)
		} else {
			r.log.WithField("session_id", session).WithField("candidate_session", c.Session()).
				Warn("dropping text candidate from another session")
		}
	}
	return out, nil
}

// RetrieveImages returns the topK image-index candidates for question using
// the visual embedder's text tower. The image index is shared across
// sessions and is queried without a session filter.
func (r *Retriever) RetrieveImages(ctx context.Context, question string, topK int) ([]domain.Candidate, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrInvalidInput
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	emb, err := r.models.VisualEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := emb.EmbedText(ctx, question)
	if err != nil {
		return nil, domain.Upstream("visual_embedding", err)
	}
	idx, err := r.gw.EnsureIndex(ctx, r.imageIndex, len(vec))
	if err != nil {
		return nil, err
	}
	return r.gw.Query(ctx, idx, vec, topK, nil)
}
