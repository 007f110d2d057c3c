// Package imaging derives caption, OCR and visual-embedding evidence from
// images and fuses the text evidence into one indexable block.
package imaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/embedding"
)

// Stage names reported on extraction failures.
const (
	StageCaption         = "caption"
	StageOCR             = "ocr"
	StageVisualEmbedding = "visual_embedding"
)

// Evidence is everything derived from one image.
type Evidence struct {
	Caption string
	OCRText string
	Vector  []float64
	// Warnings holds caption and OCR failures as *domain.StageError.
	// They leave the corresponding field empty but do not fail extraction.
	Warnings []error
}

// Extractor runs the image sub-operations against lazily loaded models.
type Extractor struct {
	models domain.Models
	log    logrus.FieldLogger
}

// NewExtractor creates an extractor.
func NewExtractor(models domain.Models, log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{models: models, log: log}
}

// Extract captions, transcribes and embeds the image at path. Caption and OCR
// run concurrently with the visual embedding; a failure in one of them does
// not cancel the others. Only a visual embedding failure is returned as an error.
func (e *Extractor) Extract(ctx context.Context, path string) (Evidence, error) {
	var (
		ev                 Evidence
		captionErr, ocrErr error
		g                  errgroup.Group
	)

	g.Go(func() error {
		captionErr = e.caption(ctx, path, &ev.Caption)
		return nil
	})
	g.Go(func() error {
		ocrErr = e.ocr(ctx, path, &ev.OCRText)
		return nil
	})
	g.Go(func() error {
		v, err := e.embed(ctx, path)
		ev.Vector = v
		return err
	})
	err := g.Wait()

	log := e.log.WithField("image", path)
	for _, w := range []error{captionErr, ocrErr} {
		if w != nil {
			ev.Warnings = append(ev.Warnings, w)
			log.WithError(w).Warn("image evidence incomplete")
		}
	}
	return ev, err
}

func (e *Extractor) caption(ctx context.Context, path string, out *string) error {
	c, err := e.models.Captioner(ctx)
	if err != nil {
		return domain.AtStage(StageCaption, err)
	}
	text, err := c.Caption(ctx, path)
	if err != nil {
		return domain.AtStage(StageCaption, err)
	}
	*out = strings.TrimSpace(text)
	return nil
}

func (e *Extractor) ocr(ctx context.Context, path string, out *string) error {
	o, err := e.models.OCR(ctx)
	if err != nil {
		return domain.AtStage(StageOCR, err)
	}
	text, err := o.ExtractText(ctx, path)
	if err != nil {
		return domain.AtStage(StageOCR, err)
	}
	*out = strings.TrimSpace(text)
	return nil
}

func (e *Extractor) embed(ctx context.Context, path string) ([]float64, error) {
	v, err := e.models.VisualEmbedder(ctx)
	if err != nil {
		return nil, domain.AtStage(StageVisualEmbedding, err)
	}
	vec, err := v.EmbedImage(ctx, path)
	if err != nil {
		return nil, domain.AtStage(StageVisualEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, domain.AtStage(StageVisualEmbedding, fmt.Errorf("empty vector for %s", path))
	}
	return embedding.Normalize(vec), nil
}

// Fuse combines caption and OCR text under fixed headers. It reports false
// when both are blank, in which case no text block should be indexed.
func Fuse(caption, ocr string) (string, bool) {
	caption = strings.TrimSpace(caption)
	ocr = strings.TrimSpace(ocr)
	if caption == "" && ocr == "" {
		return "", false
	}
	return strings.TrimSpace(fmt.Sprintf("IMAGE CAPTION:\n%s\n\nIMAGE OCR:\n%s", caption, ocr)), true
}
