// Package synth turns retrieved evidence into a grounded answer.
package synth

import (
	"context"
	"strings"

	"multimodal-rag/internal/domain"
)

// RefusalAnswer is returned, without calling the model, when no usable
// context was retrieved.
const RefusalAnswer = "The provided context does not contain enough information to answer this question."

const promptTemplate = `You are a Retrieval-Augmented Generation (RAG) assistant.

Answer the QUESTION using ONLY the information provided in the CONTEXT.
Do not assume or invent information.

QUESTION:
{question}

CONTEXT:
{text}
{image}

FINAL ANSWER:`

// Result is a synthesized answer.
type Result struct {
	Answer string
	// Grounded is false for RefusalAnswer.
	Grounded bool
}

// Synthesizer asks a completion model to answer from retrieved context.
type Synthesizer struct {
	llm domain.Completer
}

// New creates a synthesizer.
func New(llm domain.Completer) *Synthesizer {
	return &Synthesizer{llm: llm}
}

// Partition splits candidate texts into text and image context buffers by
// their modality tag. Each text is followed by a blank line.
func Partition(candidates []domain.Candidate) (text, image string) {
	var tb, ib strings.Builder
	for _, c := range candidates {
		b := &tb
		if c.Modality() == domain.ModalityImage {
			b = &ib
		}
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return tb.String(), ib.String()
}

// BuildPrompt renders the grounded-answer prompt. Text context precedes
// image context.
func BuildPrompt(question, text, image string) string {
	return strings.NewReplacer(
		"{question}", question,
		"{text}", text,
		"{image}", image,
	).Replace(promptTemplate)
}

// Answer returns RefusalAnswer when both context buffers are blank and
// otherwise a single trimmed completion. Completion failures are not retried.
func (s *Synthesizer) Answer(ctx context.Context, question string, candidates []domain.Candidate) (Result, error) {
	text, image := Partition(candidates)
	if strings.TrimSpace(text) == "" && strings.TrimSpace(image) == "" {
		return Result{Answer: RefusalAnswer}, nil
	}
	out, err := s.llm.Complete(ctx, BuildPrompt(question, text, image))
	if err != nil {
		return Result{}, domain.Upstream("completion", err)
	}
	return Result{Answer: strings.TrimSpace(out), Grounded: true}, nil
}
