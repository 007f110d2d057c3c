package models

import (
	"context"

	"multimodal-rag/internal/domain"
)

var (
	_ domain.Models    = Catalog{}
	_ domain.Completer = Catalog{}
)

// Catalog exposes registry slots under their typed port interfaces.
type Catalog struct {
	Registry *Registry
}

func (c Catalog) TextEmbedder(ctx context.Context) (domain.TextEmbedder, error) {
	return Get[domain.TextEmbedder](ctx, c.Registry, Embeddings)
}

func (c Catalog) VisualEmbedder(ctx context.Context) (domain.VisualEmbedder, error) {
	return Get[domain.VisualEmbedder](ctx, c.Registry, CLIP)
}

func (c Catalog) Captioner(ctx context.Context) (domain.Captioner, error) {
	return Get[domain.Captioner](ctx, c.Registry, BLIP)
}

func (c Catalog) OCR(ctx context.Context) (domain.OCR, error) {
	return Get[domain.OCR](ctx, c.Registry, OCR)
}

func (c Catalog) Reasoner(ctx context.Context) (domain.VisualReasoner, error) {
	return Get[domain.VisualReasoner](ctx, c.Registry, LLaVA)
}

// Complete resolves the completion model on first use, so processes that
// never answer a question never need its credentials.
func (c Catalog) Complete(ctx context.Context, prompt string) (string, error) {
	llm, err := Get[domain.Completer](ctx, c.Registry, Completion)
	if err != nil {
		return "", err
	}
	return llm.Complete(ctx, prompt)
}
