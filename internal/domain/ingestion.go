package domain

import (
	"context"
	"fmt"
)

// Stage is a state of the ingestion state machine, also used to label retrieval and answer failures.
type Stage string

const (
	StageReceived    Stage = "received"
	StageHashChecked Stage = "hash-checked"
	StageExtracting  Stage = "extracting"
	StageChunking    Stage = "chunking"
	StageEmbedding   Stage = "embedding"
	StageStoring     Stage = "storing"
	StageReady       Stage = "ready"
	StageFailed      Stage = "failed"
	StageSearching   Stage = "searching"
	StageGenerating  Stage = "generating"
)

// Label is the human-readable name of the work done in a stage.
func (s Stage) Label() string {
	switch s {
	case StageReceived:
		return "reading"
	case StageExtracting:
		return "extraction"
	case StageHashChecked:
		return "hashing"
	default:
		return string(s)
	}
}

// StageError reports which stage of a pipeline failed.
type StageError struct {
	Stage         Stage
	DocumentID    string
	BatchesStored int
	Err           error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage.Label(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage it happened in.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// FileSource produces the raw bytes of an upload and, optionally, its filename.
type FileSource interface {
	Open(ctx context.Context) ([]byte, error)
	Name() string
}

// BytesSource is a FileSource over an in-memory buffer.
type BytesSource struct {
	Data     []byte
	Filename string
}

func (s BytesSource) Open(ctx context.Context) ([]byte, error) {
	return s.Data, nil
}

func (s BytesSource) Name() string {
	return s.Filename
}

// ProgressObserver is notified after every stored batch.
type ProgressObserver interface {
	OnProgress(completedBatches, totalBatches int)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(completedBatches, totalBatches int)

func (f ProgressFunc) OnProgress(completedBatches, totalBatches int) {
	f(completedBatches, totalBatches)
}
