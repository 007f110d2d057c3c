// Package service orchestrates ingestion and question answering.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/imaging"
	"multimodal-rag/internal/loader"
	"multimodal-rag/internal/vectorstore"
)

// Ingestion stages reported through *domain.StageError.
const (
	StageLoad    = "load"
	StageEmbed   = "embed"
	StageIndex   = "index"
	StageExtract = "extract"
)

// MaxBatchFiles bounds the number of files ingested under one session.
const MaxBatchFiles = 3

// DefaultMetadataTextLimit caps the text copied into index metadata, in runes.
const DefaultMetadataTextLimit = 1000

// Result modalities.
const (
	ModalityDocument = "document"
	ModalityImage    = "image"
)

// DocumentLoader extracts pages from a file.
type DocumentLoader interface {
	Load(path string) (domain.Document, error)
}

// ImageExtractor derives evidence from an image.
type ImageExtractor interface {
	Extract(ctx context.Context, path string) (imaging.Evidence, error)
}

// Indexer provisions indexes and writes records.
type Indexer interface {
	EnsureIndex(ctx context.Context, name string, dimension int) (*vectorstore.Index, error)
	Upsert(ctx context.Context, idx *vectorstore.Index, records []domain.StoredVector) error
}

// DefaultMaxTrackedSessions bounds the per-session sequence table.
const DefaultMaxTrackedSessions = 10000

// IngestConfig names the target indexes.
type IngestConfig struct {
	TextIndex         string
	ImageIndex        string
	MetadataTextLimit int
	// MaxTrackedSessions caps how many sessions keep a text sequence
	// counter. The least recently written session is forgotten first; a
	// forgotten session that is appended to again restarts at zero.
	MaxTrackedSessions int
}

// IngestResult describes one successfully ingested file.
type IngestResult struct {
	Path     string
	Session  domain.SessionID
	Modality string
	// Chunks is the number of text records written.
	Chunks int
	// Warnings lists non-fatal failures such as a missing caption.
	Warnings []string
}

// FileOutcome is the per-file result of a batch.
type FileOutcome struct {
	Path   string
	Result IngestResult
	Err    error
}

// BatchResult groups per-file outcomes under one session.
type BatchResult struct {
	Session domain.SessionID
	Files   []FileOutcome
}

// Failed returns the number of files that did not ingest.
func (b BatchResult) Failed() int {
	n := 0
	for _, f := range b.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Ingester turns files into indexed text and image vectors.
type Ingester struct {
	loader    DocumentLoader
	segmenter domain.Segmenter
	extractor ImageExtractor
	models    domain.Models
	index     Indexer
	cfg       IngestConfig
	log       logrus.FieldLogger

	mu  sync.Mutex
	seq *orderedmap.OrderedMap[domain.SessionID, int]
}

// NewIngester creates an ingester.
func NewIngester(l DocumentLoader, seg domain.Segmenter, ex ImageExtractor, models domain.Models, idx Indexer, cfg IngestConfig, log logrus.FieldLogger) *Ingester {
	if cfg.MetadataTextLimit <= 0 {
		cfg.MetadataTextLimit = DefaultMetadataTextLimit
	}
	if cfg.MaxTrackedSessions <= 0 {
		cfg.MaxTrackedSessions = DefaultMaxTrackedSessions
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ingester{
		loader:    l,
		segmenter: seg,
		extractor: ex,
		models:    models,
		index:     idx,
		cfg:       cfg,
		log:       log,
		seq:       orderedmap.New[domain.SessionID, int](),
	}
}

// IngestBatch ingests 1 to MaxBatchFiles files under a fresh session. Each
// file succeeds or fails independently.
func (i *Ingester) IngestBatch(ctx context.Context, paths []string) (BatchResult, error) {
	if len(paths) < 1 || len(paths) > MaxBatchFiles {
		return BatchResult{}, fmt.Errorf("%w: expected 1 to %d files, got %d", domain.ErrInvalidInput, MaxBatchFiles, len(paths))
	}
	batch := BatchResult{Session: domain.NewSessionID()}
	for _, p := range paths {
		res, err := i.IngestFile(ctx, p, batch.Session)
		batch.Files = append(batch.Files, FileOutcome{Path: p, Result: res, Err: err})
	}
	return batch, nil
}

// IngestFile ingests one file under session. Images are routed by extension.
func (i *Ingester) IngestFile(ctx context.Context, path string, session domain.SessionID) (IngestResult, error) {
	log := i.log.WithField("session_id", session).WithField("file", path)
	if _, err := os.Stat(path); err != nil {
		return IngestResult{}, domain.AtStage(StageLoad, err)
	}

	var (
		res IngestResult
		err error
	)
	if loader.IsImage(path) {
		res, err = i.ingestImage(ctx, path, session)
	} else {
		res, err = i.ingestDocument(ctx, path, session)
	}
	if err != nil {
		log.WithError(err).WithField("stage", domain.StageOf(err)).Error("ingestion failed")
		return IngestResult{}, err
	}
	log.WithField("modality", res.Modality).WithField("chunks", res.Chunks).Info("ingested file")
	return res, nil
}

func (i *Ingester) ingestDocument(ctx context.Context, path string, session domain.SessionID) (IngestResult, error) {
	res := IngestResult{Path: path, Session: session, Modality: ModalityDocument}

	doc, err := i.loader.Load(path)
	if err != nil {
		return res, domain.AtStage(StageLoad, err)
	}
	chunks := i.segmenter.Segment(doc, session)
	if len(chunks) == 0 {
		return res, nil
	}

	texts := make([]string, len(chunks))
	for k, c := range chunks {
		texts[k] = c.Text
	}
	vecs, err := i.embedTexts(ctx, texts)
	if err != nil {
		return res, err
	}
	for k := range chunks {
		chunks[k].Vector = vecs[k]
	}

	if err := i.writeText(ctx, session, chunks); err != nil {
		return res, err
	}
	res.Chunks = len(chunks)
	return res, nil
}

func (i *Ingester) ingestImage(ctx context.Context, path string, session domain.SessionID) (IngestResult, error) {
	res := IngestResult{Path: path, Session: session, Modality: ModalityImage}

	ev, err := i.extractor.Extract(ctx, path)
	if err != nil {
		if domain.StageOf(err) == "" {
			err = domain.AtStage(StageExtract, err)
		}
		return res, err
	}
	for _, w := range ev.Warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}

	if text, ok := imaging.Fuse(ev.Caption, ev.OCRText); ok {
		vecs, err := i.embedTexts(ctx, []string{text})
		if err != nil {
			return res, err
		}
		chunk := domain.Chunk{
			Text:     text,
			Source:   path,
			Session:  session,
			Modality: domain.ModalityImage,
			Type:     domain.TypeImageText,
			Vector:   vecs[0],
		}
		if err := i.writeText(ctx, session, []domain.Chunk{chunk}); err != nil {
			return res, err
		}
		res.Chunks = 1
	}

	idx, err := i.index.EnsureIndex(ctx, i.cfg.ImageIndex, len(ev.Vector))
	if err != nil {
		return res, domain.AtStage(StageIndex, err)
	}
	rec := domain.StoredVector{
		ID:     domain.ImageVectorID(session, path),
		Vector: ev.Vector,
		Metadata: map[string]any{
			domain.MetaSource:    path,
			domain.MetaType:      domain.TypeImage,
			domain.MetaModality:  string(domain.ModalityImage),
			domain.MetaSessionID: session.String(),
		},
	}
	if err := i.index.Upsert(ctx, idx, []domain.StoredVector{rec}); err != nil {
		return res, domain.AtStage(StageIndex, err)
	}
	return res, nil
}

func (i *Ingester) embedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	emb, err := i.models.TextEmbedder(ctx)
	if err != nil {
		return nil, domain.AtStage(StageEmbed, err)
	}
	vecs, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, domain.AtStage(StageEmbed, domain.Upstream("embedding", err))
	}
	if len(vecs) != len(texts) || len(vecs[0]) == 0 {
		return nil, domain.AtStage(StageEmbed, errors.New("embedder returned no vectors"))
	}
	return vecs, nil
}

// writeText assigns session-wide sequence numbers to chunks and upserts them
// into the text index in order.
func (i *Ingester) writeText(ctx context.Context, session domain.SessionID, chunks []domain.Chunk) error {
	idx, err := i.index.EnsureIndex(ctx, i.cfg.TextIndex, len(chunks[0].Vector))
	if err != nil {
		return domain.AtStage(StageIndex, err)
	}
	base := i.reserve(session, len(chunks))
	records := make([]domain.StoredVector, len(chunks))
	for k, c := range chunks {
		seq := base + k
		records[k] = domain.StoredVector{
			ID:     domain.TextVectorID(session, seq),
			Vector: c.Vector,
			Metadata: map[string]any{
				domain.MetaSource:    c.Source,
				domain.MetaChunkID:   seq,
				domain.MetaSessionID: session.String(),
				domain.MetaModality:  string(c.Modality),
				domain.MetaType:      c.Type,
				domain.MetaText:      truncateRunes(c.Text, i.cfg.MetadataTextLimit),
			},
		}
	}
	if err := i.index.Upsert(ctx, idx, records); err != nil {
		return domain.AtStage(StageIndex, err)
	}
	return nil
}

// reserve hands out n consecutive text sequence numbers for session so that
// several files ingested into one session never share an ID.
func (i *Ingester) reserve(session domain.SessionID, n int) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	base, _ := i.seq.Delete(session)
	i.seq.Set(session, base+n)
	for i.seq.Len() > i.cfg.MaxTrackedSessions {
		i.seq.Delete(i.seq.Oldest().Key)
	}
	return base
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
