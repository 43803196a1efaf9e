package pipeline

import (
	"errors"
	"fmt"

	"github.com/sells-group/triage-cli/internal/model"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindIngestion covers duplicate batch ids and missing/empty input.
	KindIngestion Kind = "ingestion"
	// KindGateway covers classifier call failures: non-success responses
	// and network errors.
	KindGateway Kind = "gateway"
	// KindSchema covers contract violations in classifier output: length
	// mismatch, missing or extra fields, failed id correlation, enum
	// violations.
	KindSchema Kind = "schema_validation"
	// KindRecordMismatch is the audit stage's total-count failure after
	// per-record tolerance dropped malformed records.
	KindRecordMismatch Kind = "record_mismatch"
	// KindCommit covers storage transaction failures.
	KindCommit Kind = "commit"
)

// StageError attributes a failure to the pipeline stage that produced it.
// Stage functions return these as values; nothing panics across a stage
// boundary.
type StageError struct {
	Stage model.Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage model.Stage, kind Kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// AsStageError extracts a StageError from err's chain, if present.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
