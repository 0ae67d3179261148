package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
)

// codeExtensions maps a supported source language to the file extensions its
// corpus walk accepts.
var codeExtensions = map[string][]string{
	"python":     {".py"},
	"javascript": {".js", ".jsx", ".ts", ".tsx"},
	"go":         {".go"},
	"rust":       {".rs"},
	"java":       {".java"},
}

// Languages returns the supported code corpus languages, sorted.
func Languages() []string {
	out := make([]string, 0, len(codeExtensions))
	for lang := range codeExtensions {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// CodeCorpus loads source files of one language from a file or directory
// root. Unlike the markdown corpus the body goes through verbatim: doc
// comments are part of the code, so the extraction prompt sees the raw file.
type CodeCorpus struct {
	root string
	lang string
	log  *zap.Logger
}

// NewCodeCorpus creates a CodeCorpus for one of the supported languages.
func NewCodeCorpus(root, lang string, logger *zap.Logger) (*CodeCorpus, error) {
	if _, ok := codeExtensions[lang]; !ok {
		return nil, fmt.Errorf("unsupported language %q (supported: %s)", lang, strings.Join(Languages(), ", "))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeCorpus{
		root: root,
		lang: lang,
		log:  logger.Named("corpus"),
	}, nil
}

// Load returns the code documents in lexicographic relative-path order. A
// file root yields exactly that file regardless of its extension.
func (c *CodeCorpus) Load() ([]schemas.Document, error) {
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

	exts := codeExtensions[c.lang]
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
		for _, ext := range exts {
			if strings.EqualFold(filepath.Ext(path), ext) {
				paths = append(paths, path)
				break
			}
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

	c.log.Debug("Code corpus loaded",
		zap.String("language", c.lang),
		zap.Int("documents", len(docs)))
	return docs, nil
}

// load reads one source file and prepares it for extraction.
func (c *CodeCorpus) load(path, id string) (schemas.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schemas.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sum := sha256.Sum256(raw)
	return schemas.Document{
		ID:          id,
		Path:        path,
		Fingerprint: hex.EncodeToString(sum[:]),
		Title:       filepath.Base(path),
		Text:        string(raw),
	}, nil
}
