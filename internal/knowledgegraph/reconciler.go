package knowledgegraph

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
)

// Reconciliation is the edge portion of a batch delta, plus the warnings
// produced while rewriting endpoints.
type Reconciliation struct {
	// NewEdges did not exist in the snapshot. Sorted by (from, to, label).
	NewEdges []schemas.Edge
	// UpdatedEdges existed and gained provenance or weight, carrying full
	// post-merge state. Sorted by (from, to, label).
	UpdatedEdges []schemas.Edge
	// Dropped counts candidate relations discarded for unresolvable
	// endpoints.
	Dropped int
	// DocRelations counts, per document id, the relations that survived
	// endpoint resolution and landed on an edge. The ledger records these
	// so the startup recovery pass can cross-check edge provenance.
	DocRelations map[string]int
	// Warnings describes every dropped relation. Already logged.
	Warnings []string
}

// Reconciler rewrites candidate relations onto canonical node identities and
// merges duplicates. It only ever appends: edges are never removed here.
type Reconciler struct {
	log *zap.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{log: logger.Named("reconciler")}
}

// Reconcile maps every candidate relation's endpoints through the batch
// resolution (falling back to the snapshot's alias index for entities not
// mentioned in this batch), deduplicates on (source, target, normalized
// label), and accumulates weight and provenance on rediscovery. Relations
// with an endpoint that resolves to no entity are dropped with a warning,
// never a failure. Self-loops are allowed.
func (rc *Reconciler) Reconcile(
	relations []schemas.CandidateRelation,
	res *Resolution,
	snap *Snapshot,
) *Reconciliation {
	out := &Reconciliation{DocRelations: make(map[string]int)}

	// Working set keyed by edge identity. Seeded lazily from the snapshot
	// so rediscovered edges merge instead of duplicating.
	working := make(map[string]*schemas.Edge)
	isNew := make(map[string]bool)

	// Deterministic order regardless of how extraction interleaved the
	// batch's documents.
	ordered := make([]schemas.CandidateRelation, len(relations))
	copy(ordered, relations)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		if a.SourceLabel != b.SourceLabel {
			return a.SourceLabel < b.SourceLabel
		}
		if a.TargetLabel != b.TargetLabel {
			return a.TargetLabel < b.TargetLabel
		}
		return a.Label < b.Label
	})

	for _, rel := range ordered {
		label := NormalizeLabel(rel.Label)
		if label == "" {
			rc.drop(out, rel, "empty relation label")
			continue
		}
		fromID, ok := rc.resolveEndpoint(rel.SourceLabel, res, snap)
		if !ok {
			rc.drop(out, rel, fmt.Sprintf("source %q resolves to no entity", rel.SourceLabel))
			continue
		}
		toID, ok := rc.resolveEndpoint(rel.TargetLabel, res, snap)
		if !ok {
			rc.drop(out, rel, fmt.Sprintf("target %q resolves to no entity", rel.TargetLabel))
			continue
		}

		key := EdgeKey(fromID, toID, label)
		edge, ok := working[key]
		if !ok {
			if existing, found := snap.Edge(fromID, toID, label); found {
				copyEdge := existing
				copyEdge.Docs = append([]string(nil), copyEdge.Docs...)
				edge = &copyEdge
			} else {
				edge = &schemas.Edge{
					ID:    MintEdgeID(fromID, toID, label),
					From:  fromID,
					To:    toID,
					Label: label,
				}
				isNew[key] = true
			}
			working[key] = edge
		}

		// Weight tracks provenance: one increment per contributing
		// document, so re-mentions within a document don't inflate it.
		var added bool
		edge.Docs, added = AddDoc(edge.Docs, rel.DocID)
		if added {
			edge.Weight++
		}
		out.DocRelations[rel.DocID]++
	}

	for key, edge := range working {
		if isNew[key] {
			out.NewEdges = append(out.NewEdges, *edge)
		} else if changed(edge, snap) {
			out.UpdatedEdges = append(out.UpdatedEdges, *edge)
		}
	}
	sortEdges(out.NewEdges)
	sortEdges(out.UpdatedEdges)
	return out
}

// resolveEndpoint maps a relation endpoint label onto a node id: first
// through this batch's resolution, then through the committed graph.
func (rc *Reconciler) resolveEndpoint(label string, res *Resolution, snap *Snapshot) (string, bool) {
	norm := NormalizeLabel(label)
	if norm == "" {
		return "", false
	}
	if id, ok := res.NodeFor(norm); ok {
		return id, true
	}
	if id, _ := snap.BestMatch(norm, schemas.EntityUnknown); id != "" {
		return id, true
	}
	return "", false
}

func (rc *Reconciler) drop(out *Reconciliation, rel schemas.CandidateRelation, reason string) {
	out.Dropped++
	warn := fmt.Sprintf("dropped relation %q -[%s]-> %q from %s: %s",
		rel.SourceLabel, rel.Label, rel.TargetLabel, rel.DocID, reason)
	out.Warnings = append(out.Warnings, warn)
	rc.log.Warn("Dropped candidate relation",
		zap.String("source", rel.SourceLabel),
		zap.String("target", rel.TargetLabel),
		zap.String("label", rel.Label),
		zap.String("doc", rel.DocID),
		zap.String("reason", reason))
}

// changed reports whether a working edge differs from its snapshot version.
func changed(edge *schemas.Edge, snap *Snapshot) bool {
	existing, ok := snap.Edge(edge.From, edge.To, edge.Label)
	if !ok {
		return true
	}
	return existing.Weight != edge.Weight || len(existing.Docs) != len(edge.Docs)
}

func sortEdges(edges []schemas.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Label < edges[j].Label
	})
}
