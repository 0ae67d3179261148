// Package markdown discovers and loads the input corpus: markdown files in
// stable lexicographic order, fingerprinted over raw bytes, with frontmatter
// split off and the body flattened to plain text for the extraction prompt.
// A code corpus variant walks source files instead, for mining entities out
// of doc comments.
package markdown

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
)

// docMeta is the frontmatter subset we care about.
type docMeta struct {
	Title string `yaml:"title"`
}

// Corpus loads markdown documents from a file or directory root.
type Corpus struct {
	root string
	md   goldmark.Markdown
	log  *zap.Logger
}

// NewCorpus creates a Corpus rooted at the given path.
func NewCorpus(root string, logger *zap.Logger) *Corpus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corpus{
		root: root,
		md:   goldmark.New(),
		log:  logger.Named("corpus"),
	}
}

// Load returns the corpus documents. A directory root yields every *.md file
// under it in lexicographic relative-path order, which is what makes
// repeated runs process documents in the same sequence. A file root yields
// exactly that file.
func (c *Corpus) Load() ([]schemas.Document, error) {
	info, err := os.Stat(c.root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input path: %w", err)
	}

	if !info.IsDir() {
		doc, err := c.load(c.root, filepath.Base(c.root))
		if err != nil {
			return nil, err
		}
		return []schemas.Document{doc}, nil
	}

	var paths []string
	err = filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != c.root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk input directory: %w", err)
	}

	sort.Strings(paths)

	docs := make([]schemas.Document, 0, len(paths))
	for _, path := range paths {
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			rel = path
		}
		doc, err := c.load(path, filepath.ToSlash(rel))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	c.log.Debug("Corpus loaded", zap.Int("documents", len(docs)))
	return docs, nil
}

// load reads one file and prepares it for extraction.
func (c *Corpus) load(path, id string) (schemas.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schemas.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sum := sha256.Sum256(raw)

	var meta docMeta
	body, err := frontmatter.Parse(bytes.NewReader(raw), &meta)
	if err != nil {
		// Broken frontmatter isn't fatal; treat the whole file as body.
		c.log.Warn("Unparseable frontmatter", zap.String("path", path), zap.Error(err))
		body = raw
	}

	title := meta.Title
	if title == "" {
		title = firstHeading(body)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return schemas.Document{
		ID:          id,
		Path:        path,
		Fingerprint: hex.EncodeToString(sum[:]),
		Title:       title,
		Text:        c.plainText(body),
	}, nil
}

// plainText flattens the markdown body to prose by walking the goldmark AST
// and collecting text segments, one line per block. Formatting noise
// (emphasis markers, link targets, table pipes) stays out of the prompt.
func (c *Corpus) plainText(body []byte) string {
	reader := text.NewReader(body)
	root := c.md.Parser().Parse(reader)

	var sb strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, isBlock := n.(*ast.Paragraph); isBlock || n.Kind() == ast.KindHeading || n.Kind() == ast.KindListItem {
				sb.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(body))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.AutoLink:
			sb.Write(t.URL(body))
		case *ast.CodeSpan:
			// inline code stays verbatim via its Text children
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(sb.String())
}

// firstHeading returns the text of the first ATX heading, if any.
func firstHeading(body []byte) string {
	for _, line := range strings.Split(string(body), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}
