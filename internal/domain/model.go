package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Modality classifies stored evidence as text- or image-derived.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// Stored item types.
const (
	TypeDocument  = "document"
	TypeImageText = "image_text"
	TypeImage     = "image"
)

// Metadata keys written to and read from the vector indexes.
const (
	MetaSource    = "source"
	MetaChunkID   = "chunk_id"
	MetaSessionID = "session_id"
	MetaModality  = "modality"
	MetaType      = "type"
	MetaText      = "text"
)

// SessionID scopes a batch of ingested content and its later retrieval.
type SessionID string

// NewSessionID mints a fresh random session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseSessionID validates a caller-supplied session identifier. Session
// ids name upload directories, so only letters, digits, '-' and '_' are
// accepted.
func ParseSessionID(s string) (SessionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty session id", ErrInvalidInput)
	}
	if !sessionIDRe.MatchString(s) {
		return "", fmt.Errorf("%w: malformed session id %q", ErrInvalidInput, s)
	}
	return SessionID(s), nil
}

func (s SessionID) String() string { return string(s) }

// Document is a loaded file split into its extracted pages.
type Document struct {
	Path  string
	Pages []string
}

// Chunk is a bounded span of normalized text tagged with provenance and session.
type Chunk struct {
	Text     string
	Source   string
	Index    int
	Session  SessionID
	Modality Modality
	Type     string
	Vector   []float64
}

// ImageRecord is one ingested image and its derived representations.
type ImageRecord struct {
	Source  string
	Session SessionID
	Caption string
	OCRText string
	Vector  []float64
}

// StoredVector is the unit persisted in a vector index.
type StoredVector struct {
	ID       string
	Vector   []float64
	Metadata map[string]any
}

// Candidate is a transient similarity-search result.
type Candidate struct {
	Score    float64
	Text     string
	Metadata map[string]any
}

// Modality returns the modality tag stored with the candidate.
func (c Candidate) Modality() Modality {
	v, _ := c.Metadata[MetaModality].(string)
	return Modality(v)
}

// Source returns the source path stored with the candidate.
func (c Candidate) Source() string {
	v, _ := c.Metadata[MetaSource].(string)
	return v
}

// Session returns the session id stored with the candidate.
func (c Candidate) Session() SessionID {
	v, _ := c.Metadata[MetaSessionID].(string)
	return SessionID(v)
}

// TextVectorID builds the text index id for a chunk sequence number.
func TextVectorID(session SessionID, seq int) string {
	return fmt.Sprintf("text_%s_%d", session, seq)
}

// ImageVectorID builds the image index id for an image file.
func ImageVectorID(session SessionID, path string) string {
	return fmt.Sprintf("img_%s_%s", session, filepath.Base(path))
}
