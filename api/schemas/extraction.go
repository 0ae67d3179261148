package schemas

import "context"

// -- Extraction Boundary Schemas --

// Document is one markdown source ready for processing: identified by its
// path relative to the input root, fingerprinted over raw bytes, with the
// body already reduced to plain text for the prompt.
type Document struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"` // sha256 of raw bytes, hex
	Title       string `json:"title"`
	Text        string `json:"text"`
}

// CandidateEntity is a raw, per-document extraction result. It is ephemeral:
// produced by the adapter, consumed by the resolver, never persisted.
type CandidateEntity struct {
	Label    string     `json:"label"`
	TypeHint EntityType `json:"type_hint"`
	DocID    string     `json:"doc_id"`
	Snippet  string     `json:"snippet"`
}

// CandidateRelation is a raw, per-document relation between two entities
// referenced by surface label. Endpoints are rewritten to node ids during
// reconciliation; unresolvable endpoints drop the relation with a warning.
type CandidateRelation struct {
	SourceLabel string `json:"source_label"`
	TargetLabel string `json:"target_label"`
	Label       string `json:"label"`
	DocID       string `json:"doc_id"`
	Snippet     string `json:"snippet"`
}

// ExtractionResult is everything the adapter pulled out of one document.
type ExtractionResult struct {
	Entities  []CandidateEntity   `json:"entities"`
	Relations []CandidateRelation `json:"relations"`
}

// GenerationRequest is a provider-independent completion request.
type GenerationRequest struct {
	SystemPrompt    string
	UserPrompt      string
	Temperature     float32
	MaxTokens       int
	ForceJSONFormat bool
}

// LLMClient abstracts a completion backend. Implementations retry transient
// failures internally with bounded backoff and return only terminal errors.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Extractor turns one document into candidate entities and relations. A
// malformed or unparseable model response surfaces as *ExtractionError.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (ExtractionResult, error)
}
