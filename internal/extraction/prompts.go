package extraction

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an expert at extracting structured information from documents. You respond with valid JSON only, never with markdown formatting or commentary.`

const extractionInstructions = `Given the following document, extract all relevant entities and the relations between them, then return a single JSON object.

## Entity Types

1. **person** - Individual people mentioned (by name)
2. **organization** - Companies, teams, groups, institutions
3. **topic** - Projects, products, subjects under discussion
4. **concept** - Abstract ideas, techniques, methodologies
5. **event** - Meetings, releases, incidents, occasions

## Rules

- Only extract entities that are explicitly mentioned by name
- Use the exact name as it appears in the text
- For each relation, the source and target must be entity names from the entities list
- Keep relation labels short and verb-like (e.g. "works at", "depends on", "organized")
- Include a short supporting quote from the text in the "snippet" field
- Return ONLY a valid JSON object, no markdown formatting
- If nothing is found, return {"entities": [], "relations": []}

## Output Format

{
  "entities": [
    {"name": "Entity Name", "type": "person|organization|topic|concept|event", "snippet": "supporting quote"}
  ],
  "relations": [
    {"source": "Entity Name", "target": "Other Entity", "relation": "works at", "snippet": "supporting quote"}
  ]
}`

// buildUserPrompt assembles the per-document extraction prompt.
func buildUserPrompt(title, text string) string {
	var sb strings.Builder
	sb.WriteString(extractionInstructions)
	sb.WriteString("\n\n## Document")
	if title != "" {
		fmt.Fprintf(&sb, ": %s", title)
	}
	sb.WriteString("\n\n---\n")
	sb.WriteString(text)
	sb.WriteString("\n---\n\nReturn the JSON object now:")
	return sb.String()
}

// langHints describes each supported source language inside the code
// extraction prompt.
var langHints = map[string]string{
	"python":     "Python code with docstrings (Google, NumPy, or reST style)",
	"javascript": "JavaScript/TypeScript with JSDoc comments",
	"go":         "Go code with godoc comments",
	"rust":       "Rust code with doc comments",
	"java":       "Java code with Javadoc",
}

// codeSystemPrompt names the language so the model reads doc comments in
// the right convention.
func codeSystemPrompt(lang string) string {
	hint, ok := langHints[lang]
	if !ok {
		hint = "source code"
	}
	return fmt.Sprintf("You are an expert at extracting structured information from %s. You respond with valid JSON only, never with markdown formatting or commentary.", hint)
}

const codeInstructions = `Given the following code, extract the entities its documentation comments describe (functions, classes, modules, plus the people and projects they mention) and the relations between them, then return a single JSON object.

## Entity Types

1. **person** - Authors or maintainers mentioned by name
2. **organization** - Companies, projects, libraries, frameworks
3. **topic** - Functions, classes, modules, methods
4. **concept** - Abstract ideas, techniques, methodologies
5. **event** - Releases, deprecations, incidents

## Rules

- Use the function/class/module name exactly as it appears as the entity name
- Express dependencies between code entities as relations with short verb-like labels (e.g. "calls", "wraps", "implements")
- Include a short supporting quote from the doc comment in the "snippet" field
- Return ONLY a valid JSON object, no markdown formatting
- If nothing is found, return {"entities": [], "relations": []}

## Output Format

{
  "entities": [
    {"name": "FunctionName", "type": "person|organization|topic|concept|event", "snippet": "supporting quote"}
  ],
  "relations": [
    {"source": "FunctionName", "target": "OtherName", "relation": "calls", "snippet": "supporting quote"}
  ]
}`

// buildCodePrompt assembles the per-file code extraction prompt.
func buildCodePrompt(content string) string {
	var sb strings.Builder
	sb.WriteString(codeInstructions)
	sb.WriteString("\n\n## Code to Process\n\n---\n")
	sb.WriteString(content)
	sb.WriteString("\n---\n\nReturn the JSON object now:")
	return sb.String()
}
