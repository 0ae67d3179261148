// Package extraction turns raw documents into candidate entities and
// relations by prompting an LLM and decoding its JSON reply. Providers do
// not always honor the JSON-only instruction, so decoding first tries the
// response as-is and then falls back to the outermost JSON span before
// giving up.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
	"github.com/xkilldash9x/mkgraph/internal/config"
)

// allowedTypes is the whitelist for the LLM's type field. Anything else is
// kept as an untyped candidate rather than dropped.
var allowedTypes = map[string]schemas.EntityType{
	"person":       schemas.EntityPerson,
	"organization": schemas.EntityOrganization,
	"topic":        schemas.EntityTopic,
	"concept":      schemas.EntityConcept,
	"event":        schemas.EntityEvent,
}

// rawEntity and rawRelation mirror the JSON shape the prompt asks for.
type rawEntity struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Snippet string `json:"snippet"`
}

type rawRelation struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
	Snippet  string `json:"snippet"`
}

type rawResult struct {
	Entities  []rawEntity   `json:"entities"`
	Relations []rawRelation `json:"relations"`
}

// promptFunc builds the system and user prompts for one document.
type promptFunc func(doc schemas.Document) (system, user string)

// LLMExtractor implements schemas.Extractor over any LLMClient.
type LLMExtractor struct {
	client      schemas.LLMClient
	prompts     promptFunc
	temperature float32
	maxTokens   int
	log         *zap.Logger
}

// NewLLMExtractor builds an extractor for markdown prose using the
// configured generation knobs.
func NewLLMExtractor(client schemas.LLMClient, cfg config.LLMConfig, logger *zap.Logger) *LLMExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{
		client: client,
		prompts: func(doc schemas.Document) (string, string) {
			return systemPrompt, buildUserPrompt(doc.Title, doc.Text)
		},
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         logger.Named("extractor"),
	}
}

// NewCodeExtractor builds an extractor that mines entities out of source
// code doc comments instead of markdown prose. The decoding pipeline is
// shared; only the prompts differ.
func NewCodeExtractor(client schemas.LLMClient, cfg config.LLMConfig, lang string, logger *zap.Logger) *LLMExtractor {
	e := NewLLMExtractor(client, cfg, logger)
	e.prompts = func(doc schemas.Document) (string, string) {
		return codeSystemPrompt(lang), buildCodePrompt(doc.Text)
	}
	return e
}

// Extract prompts the LLM with the document body and decodes the reply.
// Failures are wrapped in *schemas.ExtractionError so the orchestrator can
// record a per-document failure without aborting the batch.
func (e *LLMExtractor) Extract(ctx context.Context, doc schemas.Document) (schemas.ExtractionResult, error) {
	system, user := e.prompts(doc)
	req := schemas.GenerationRequest{
		SystemPrompt:    system,
		UserPrompt:      user,
		Temperature:     e.temperature,
		MaxTokens:       e.maxTokens,
		ForceJSONFormat: true,
	}

	response, err := e.client.Generate(ctx, req)
	if err != nil {
		return schemas.ExtractionResult{}, &schemas.ExtractionError{
			DocID:  doc.ID,
			Reason: "llm generation failed",
			Err:    err,
		}
	}

	raw, err := decodeResponse(response)
	if err != nil {
		e.log.Warn("Unparseable LLM response",
			zap.String("doc_id", doc.ID),
			zap.String("head", truncate(response, 200)))
		return schemas.ExtractionResult{}, &schemas.ExtractionError{
			DocID:  doc.ID,
			Reason: "response is not valid JSON",
			Err:    err,
		}
	}

	result := schemas.ExtractionResult{}
	for _, ent := range raw.Entities {
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		hint := schemas.EntityUnknown
		if t, ok := allowedTypes[strings.ToLower(strings.TrimSpace(ent.Type))]; ok {
			hint = t
		}
		result.Entities = append(result.Entities, schemas.CandidateEntity{
			Label:    name,
			TypeHint: hint,
			DocID:    doc.ID,
			Snippet:  strings.TrimSpace(ent.Snippet),
		})
	}
	for _, rel := range raw.Relations {
		src := strings.TrimSpace(rel.Source)
		dst := strings.TrimSpace(rel.Target)
		label := strings.TrimSpace(rel.Relation)
		if src == "" || dst == "" {
			continue
		}
		result.Relations = append(result.Relations, schemas.CandidateRelation{
			SourceLabel: src,
			TargetLabel: dst,
			Label:       label,
			DocID:       doc.ID,
			Snippet:     strings.TrimSpace(rel.Snippet),
		})
	}

	e.log.Debug("Extraction complete",
		zap.String("doc_id", doc.ID),
		zap.Int("entities", len(result.Entities)),
		zap.Int("relations", len(result.Relations)))
	return result, nil
}

// decodeResponse parses the LLM reply, recovering from the usual failure
// mode of a JSON object wrapped in markdown fences or prose.
func decodeResponse(response string) (rawResult, error) {
	var raw rawResult
	trimmed := strings.TrimSpace(response)
	if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
		return raw, nil
	}

	span, ok := jsonSpan(trimmed)
	if !ok {
		return rawResult{}, errors.New("no JSON object found in response")
	}

	// Some models emit a bare entities array instead of the object.
	if strings.HasPrefix(span, "[") {
		var ents []rawEntity
		if err := json.Unmarshal([]byte(span), &ents); err != nil {
			return rawResult{}, err
		}
		return rawResult{Entities: ents}, nil
	}

	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return rawResult{}, err
	}
	return raw, nil
}

// jsonSpan slices out the outermost {...} or [...] region of s.
func jsonSpan(s string) (string, bool) {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start, close := objStart, byte('}')
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start, close = arrStart, ']'
	}
	if start == -1 {
		return "", false
	}

	end := strings.LastIndexByte(s, close)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
