// Package export renders the committed graph to interchange formats: a JSON
// dump, GraphML for graph tooling, and a self-contained HTML visualization.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
	"github.com/xkilldash9x/mkgraph/internal/knowledgegraph"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format selects the export output format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatGraphML Format = "graphml"
	FormatHTML    Format = "html"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatGraphML:
		return FormatGraphML, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (supported: json, graphml, html)", s)
	}
}

// Exporter writes snapshots of the committed graph to disk.
type Exporter struct {
	log *zap.Logger
}

// NewExporter creates an Exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{log: logger.Named("export")}
}

// Export writes the snapshot to path in the given format.
func (e *Exporter) Export(snap *knowledgegraph.Snapshot, path string, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch format {
	case FormatJSON:
		err = e.writeJSON(snap, path)
	case FormatGraphML:
		err = e.writeGraphML(snap, path)
	case FormatHTML:
		err = e.writeHTML(snap, path)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return err
	}

	e.log.Info("Graph exported",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("nodes", snap.NodeCount()),
		zap.Int("edges", snap.EdgeCount()))
	return nil
}

// jsonGraph is the JSON dump shape.
type jsonGraph struct {
	Revision uint64         `json:"revision"`
	Nodes    []schemas.Node `json:"nodes"`
	Edges    []schemas.Edge `json:"edges"`
}

func (e *Exporter) writeJSON(snap *knowledgegraph.Snapshot, path string) error {
	doc := jsonGraph{
		Revision: snap.Revision(),
		Nodes:    snap.Nodes(),
		Edges:    snap.Edges(),
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

func (e *Exporter) writeGraphML(snap *knowledgegraph.Snapshot, path string) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("graphml")
	root.CreateAttr("xmlns", "http://graphml.graphdrawing.org/xmlns")

	addKey := func(id, target, name string) {
		key := root.CreateElement("key")
		key.CreateAttr("id", id)
		key.CreateAttr("for", target)
		key.CreateAttr("attr.name", name)
		key.CreateAttr("attr.type", "string")
	}
	addKey("d0", "node", "label")
	addKey("d1", "node", "type")
	addKey("d2", "node", "sources")
	addKey("d3", "edge", "label")
	addKey("d4", "edge", "weight")

	graph := root.CreateElement("graph")
	graph.CreateAttr("id", "G")
	graph.CreateAttr("edgedefault", "directed")

	addData := func(parent *etree.Element, key, value string) {
		data := parent.CreateElement("data")
		data.CreateAttr("key", key)
		data.SetText(value)
	}

	for _, n := range snap.Nodes() {
		el := graph.CreateElement("node")
		el.CreateAttr("id", n.ID)
		addData(el, "d0", n.Label)
		addData(el, "d1", string(n.Type))
		addData(el, "d2", strings.Join(n.Docs, ", "))
	}
	for _, edge := range snap.Edges() {
		el := graph.CreateElement("edge")
		el.CreateAttr("id", edge.ID)
		el.CreateAttr("source", edge.From)
		el.CreateAttr("target", edge.To)
		addData(el, "d3", edge.Label)
		addData(el, "d4", fmt.Sprintf("%d", edge.Weight))
	}

	doc.Indent(2)
	if err := doc.WriteToFile(path); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
