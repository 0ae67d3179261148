package schemas

import "time"

// -- Processing Ledger Schemas --

// DocumentStatus is the last known processing outcome for a document.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusSucceeded DocumentStatus = "succeeded"
	StatusFailed    DocumentStatus = "failed"
)

// DocumentRecord is the durable per-document ledger entry. Created on first
// sight, mutated after every processing attempt, removed only by a full
// reset.
type DocumentRecord struct {
	ID                   string         `json:"id"`
	Path                 string         `json:"path"`
	Fingerprint          string         `json:"fingerprint"`           // current content hash
	ProcessedFingerprint string         `json:"processed_fingerprint"` // hash at last success, "" if never
	Status               DocumentStatus `json:"status"`
	LastError            string         `json:"last_error,omitempty"`
	ProcessedAt          time.Time      `json:"processed_at"`
	// Contribution counts recorded at last success, measured after
	// resolution and reconciliation so they reflect what the commit
	// actually wrote. The startup recovery pass cross-checks Entities
	// against node provenance and Relations against edge provenance to
	// distinguish "legitimately empty document" from "ledger claims
	// success but the graph never saw the commit".
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}

// NeedsProcessing applies the pending rule: never succeeded, content changed
// since last success, or last attempt failed.
func (r *DocumentRecord) NeedsProcessing(currentFingerprint string) bool {
	if r.Status != StatusSucceeded {
		return true
	}
	return r.ProcessedFingerprint != currentFingerprint
}

// DocumentOutcome is one document's result within a committed batch.
type DocumentOutcome struct {
	DocID       string         `json:"doc_id"`
	Path        string         `json:"path"`
	Fingerprint string         `json:"fingerprint"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	Entities    int            `json:"entities"`
	Relations   int            `json:"relations"`
}

// RunSummary is what a full run reports back to the CLI shell.
type RunSummary struct {
	RunID     string            `json:"run_id"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Revision  uint64            `json:"revision"`
	Outcomes  []DocumentOutcome `json:"outcomes"`
	Warnings  []string          `json:"warnings,omitempty"`
	// CommitErrors records batches whose commit failed. Those documents
	// remain pending and are retried on the next run.
	CommitErrors []string `json:"commit_errors,omitempty"`
}
