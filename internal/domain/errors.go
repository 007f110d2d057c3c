package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below match them through errors.Is.
var (
	// ErrInvalidInput indicates malformed or missing caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelLoad indicates a model could not be loaded after all retries.
	ErrModelLoad = errors.New("model load failed")

	// ErrUnsupportedFormat indicates an unrecognised input file extension.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDimensionMismatch indicates an index exists with a different dimension.
	ErrDimensionMismatch = errors.New("index dimension mismatch")

	// ErrUpstream indicates a failure in an external model or index service.
	ErrUpstream = errors.New("upstream service failure")

	// ErrModelNotRegistered indicates a model name unknown to the registry.
	ErrModelNotRegistered = errors.New("model not registered")
)

// ModelLoadError is returned when loading a model exhausts its retries.
type ModelLoadError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: failed after %d attempts: %v", e.Model, e.Attempts, e.Err)
}

func (e *ModelLoadError) Unwrap() []error { return []error{ErrModelLoad, e.Err} }

// UnsupportedFormatError is returned for files whose extension has no loader.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %q", e.Ext)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// DimensionMismatchError is a configuration error and is never auto-corrected.
type DimensionMismatchError struct {
	Index     string
	Existing  int
	Requested int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("index %s has dimension %d, requested %d", e.Index, e.Existing, e.Requested)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// UpstreamError names the external operation that failed.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// Upstream wraps err as an UpstreamError for op. A nil err stays nil, and an
// err that already carries an UpstreamError is returned unchanged.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// PartialUpsertError reports a batched upsert that failed part-way.
// Batches before the failing one remain committed.
type PartialUpsertError struct {
	Index     string
	Committed int
	Total     int
	Err       error
}

func (e *PartialUpsertError) Error() string {
	return fmt.Sprintf("upsert %s: %d of %d records committed before failure: %v", e.Index, e.Committed, e.Total, e.Err)
}

func (e *PartialUpsertError) Unwrap() error { return e.Err }

// StageError tags an ingestion or query failure with the pipeline stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AtStage wraps err with its stage name. A nil err stays nil.
func AtStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the outermost stage recorded on err, or "" if none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
