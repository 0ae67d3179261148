package schemas

import (
	"errors"
	"fmt"
)

// -- Error Kinds --

var (
	// ErrCommit marks a persistence failure while applying a batch. The
	// batch is safe to retry wholesale: nothing was marked succeeded.
	ErrCommit = errors.New("graph commit failed")

	// ErrStateCorruption marks a startup disagreement between the persisted
	// graph and the processing ledger. It triggers the recovery pass, not a
	// crash.
	ErrStateCorruption = errors.New("persisted state corrupted")
)

// ExtractionError covers adapter failures: network errors, provider
// rejections, and malformed or unparseable model responses. It is
// recoverable: the orchestrator records a per-document Failed outcome and
// the run continues.
type ExtractionError struct {
	DocID  string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for %q: %s: %v", e.DocID, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed for %q: %s", e.DocID, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
