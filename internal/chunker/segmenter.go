// Package chunker splits extracted document text into overlapping chunks.
package chunker

import (
	"strings"

	"multimodal-rag/internal/domain"
)

var _ domain.Segmenter = (*Segmenter)(nil)

// Segmenter chunks the lead page with a short profile and the remaining
// pages with a larger one.
type Segmenter struct {
	lead      *Splitter
	remainder *Splitter
}

// NewSegmenter creates a segmenter. Both profiles share TokenCount.
func NewSegmenter(lead, remainder Profile) *Segmenter {
	return &Segmenter{
		lead:      NewSplitter(lead, TokenCount),
		remainder: NewSplitter(remainder, TokenCount),
	}
}

// Segment returns lead-page chunks followed by remainder chunks, indexed
// from zero across the combined sequence.
func (s *Segmenter) Segment(doc domain.Document, session domain.SessionID) []domain.Chunk {
	var first, rest string
	if len(doc.Pages) > 0 {
		first = NormalizeWhitespace(doc.Pages[0])
		rest = NormalizeWhitespace(strings.Join(doc.Pages[1:], " "))
	}

	texts := append(s.lead.Split(first), s.remainder.Split(rest)...)
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			Text:     text,
			Source:   doc.Path,
			Index:    i,
			Session:  session,
			Modality: domain.ModalityText,
			Type:     domain.TypeDocument,
		})
	}
	return chunks
}
