package domain

import "context"

// TextEmbedder converts free text into a numeric vector representation.
// Vectors returned by implementations are L2-normalized.
type TextEmbedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// VisualEmbedder maps images and text into one shared vector space.
type VisualEmbedder interface {
	EmbedImage(ctx context.Context, path string) ([]float64, error)
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// OCR extracts raw text from an image.
type OCR interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Captioner produces a short natural-language description of an image.
type Captioner interface {
	Caption(ctx context.Context, path string) (string, error)
}

// VisualReasoner answers a question about a single image.
type VisualReasoner interface {
	Reason(ctx context.Context, path, question string) (string, error)
}

// Completer produces a single non-streamed completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Pinger reports whether a remote model endpoint is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Models hands out lazily loaded model adapters.
// Each accessor loads its model on first use.
type Models interface {
	TextEmbedder(ctx context.Context) (TextEmbedder, error)
	VisualEmbedder(ctx context.Context) (VisualEmbedder, error)
	Captioner(ctx context.Context) (Captioner, error)
	OCR(ctx context.Context) (OCR, error)
	Reasoner(ctx context.Context) (VisualReasoner, error)
}

// Segmenter splits an extracted document into ordered chunks.
type Segmenter interface {
	Segment(doc Document, session SessionID) []Chunk
}
