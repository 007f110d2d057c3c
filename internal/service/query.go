package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/synth"
)

// Query stages reported through *domain.StageError.
const (
	StageRetrieve  = "retrieve"
	StageSynthesis = "synthesis"
)

// imageQueryKeywords mark a question as being about visual content.
var imageQueryKeywords = []string{"image", "figure", "diagram", "picture"}

// IsImageQuery reports whether question asks about visual content.
func IsImageQuery(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range imageQueryKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Retriever finds evidence for a question.
type Retriever interface {
	RetrieveText(ctx context.Context, question string, session domain.SessionID, topK int) ([]domain.Candidate, error)
	RetrieveImages(ctx context.Context, question string, topK int) ([]domain.Candidate, error)
}

// Synthesizer answers from evidence.
type Synthesizer interface {
	Answer(ctx context.Context, question string, candidates []domain.Candidate) (synth.Result, error)
}

// AnswerCache memoizes answers.
type AnswerCache interface {
	Get(session domain.SessionID, question string) (string, bool)
	Put(session domain.SessionID, question, answer string)
}

// QueryConfig bounds retrieval.
type QueryConfig struct {
	TextTopK  int
	ImageTopK int
	// Reasoning enables visual reasoning over retrieved images for
	// questions matched by IsImageQuery.
	Reasoning bool
}

// Answer is the outcome of one question.
type Answer struct {
	Text     string
	Cached   bool
	Grounded bool
}

// QueryService answers questions scoped to a session.
type QueryService struct {
	retriever Retriever
	synth     Synthesizer
	cache     AnswerCache
	models    domain.Models
	cfg       QueryConfig
	log       logrus.FieldLogger
}

// NewQueryService creates a query service. cache may be nil.
func NewQueryService(r Retriever, s Synthesizer, cache AnswerCache, models domain.Models, cfg QueryConfig, log logrus.FieldLogger) *QueryService {
	if cfg.TextTopK <= 0 {
		cfg.TextTopK = 5
	}
	if cfg.ImageTopK <= 0 {
		cfg.ImageTopK = 3
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &QueryService{retriever: r, synth: s, cache: cache, models: models, cfg: cfg, log: log}
}

// Answer returns a grounded answer for question within session. Cached
// answers are served without retrieval. The refusal answer is never cached.
func (q *QueryService) Answer(ctx context.Context, question string, session domain.SessionID) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if session == "" {
		return Answer{}, fmt.Errorf("%w: session_id is required", domain.ErrInvalidInput)
	}
	log := q.log.WithField("session_id", session)

	if q.cache != nil {
		if a, ok := q.cache.Get(session, question); ok {
			log.Debug("query cache hit")
			return Answer{Text: a, Cached: true, Grounded: true}, nil
		}
	}

	candidates, err := q.retriever.RetrieveText(ctx, question, session, q.cfg.TextTopK)
	if err != nil {
		return Answer{}, domain.AtStage(StageRetrieve, err)
	}
	if q.cfg.Reasoning && IsImageQuery(question) {
		images, err := q.retriever.RetrieveImages(ctx, question, q.cfg.ImageTopK)
		if err != nil {
			return Answer{}, domain.AtStage(StageRetrieve, err)
		}
		if c, ok := q.explainImages(ctx, log, question, images); ok {
			candidates = append(candidates, c)
		}
	}

	res, err := q.synth.Answer(ctx, question, candidates)
	if err != nil {
		return Answer{}, domain.AtStage(StageSynthesis, err)
	}
	if res.Grounded && q.cache != nil {
		q.cache.Put(session, question, res.Answer)
	}
	log.WithField("candidates", len(candidates)).WithField("grounded", res.Grounded).Info("answered query")
	return Answer{Text: res.Answer, Grounded: res.Grounded}, nil
}

// explainImages asks the visual reasoner about each retrieved image and
// folds the explanations into one image-modality candidate. Reasoning
// failures are logged and skipped.
func (q *QueryService) explainImages(ctx context.Context, log logrus.FieldLogger, question string, images []domain.Candidate) (domain.Candidate, bool) {
	if len(images) == 0 {
		return domain.Candidate{}, false
	}
	reasoner, err := q.models.Reasoner(ctx)
	if err != nil {
		log.WithError(err).Warn("visual reasoner unavailable")
		return domain.Candidate{}, false
	}
	var explanations []string
	for _, img := range images {
		src := img.Source()
		if src == "" {
			continue
		}
		out, err := reasoner.Reason(ctx, src, question)
		if err != nil {
			log.WithError(err).WithField("image", src).Warn("visual reasoning failed")
			continue
		}
		if out = strings.TrimSpace(out); out != "" {
			explanations = append(explanations, out)
		}
	}
	if len(explanations) == 0 {
		return domain.Candidate{}, false
	}
	return domain.Candidate{
		Text:     strings.Join(explanations, "\n"),
		Metadata: map[string]any{domain.MetaModality: string(domain.ModalityImage)},
	}, true
}
