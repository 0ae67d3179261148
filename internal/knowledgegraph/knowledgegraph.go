// Package knowledgegraph holds the in-memory graph model and the batch
// resolution pipeline: an immutable Snapshot of the committed graph, the
// entity Resolver, and the relation Reconciler. Persistence lives in
// internal/store; everything here is pure bookkeeping over value copies.
package knowledgegraph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/mkgraph/api/schemas"
)

// NormalizeLabel lowercases, trims, and collapses internal whitespace.
// It is the matching key for aliases and relation labels.
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// NormalizeType maps a free-text type hint onto a known EntityType where
// possible, keeping unknown non-empty hints as-is so they still partition
// entities.
func NormalizeType(s string) schemas.EntityType {
	switch NormalizeLabel(s) {
	case "":
		return schemas.EntityUnknown
	case "person", "people", "human":
		return schemas.EntityPerson
	case "organization", "org", "company":
		return schemas.EntityOrganization
	case "topic", "subject":
		return schemas.EntityTopic
	case "concept", "idea":
		return schemas.EntityConcept
	case "event":
		return schemas.EntityEvent
	default:
		return schemas.EntityType(NormalizeLabel(s))
	}
}

// TypesCompatible reports whether two type hints may describe one entity:
// equal, or at least one unset.
func TypesCompatible(a, b schemas.EntityType) bool {
	return a == b || a == schemas.EntityUnknown || b == schemas.EntityUnknown
}

// MintNodeID derives the stable node id from the first-seen normalized label
// and type. Minted once; immutable for the node's lifetime. Re-running over
// unchanged input reproduces the same ids.
func MintNodeID(normLabel string, typ schemas.EntityType) string {
	sum := sha256.Sum256([]byte(normLabel + "\x00" + string(typ)))
	return "n_" + hex.EncodeToString(sum[:8])
}

// MintEdgeID derives the edge id from its identity triple.
func MintEdgeID(fromID, toID, normLabel string) string {
	sum := sha256.Sum256([]byte(fromID + "\x00" + toID + "\x00" + normLabel))
	return "e_" + hex.EncodeToString(sum[:8])
}

// EdgeKey is the uniqueness key of a directed edge.
func EdgeKey(fromID, toID, normLabel string) string {
	return fromID + "|" + toID + "|" + normLabel
}

// ContainsWholeWord reports whether needle's tokens appear as a contiguous
// token run inside haystack. Both are expected to be normalized already.
// "acme" is whole-word contained in "acme corp"; "cme" is not.
func ContainsWholeWord(haystack, needle string) bool {
	if needle == "" || haystack == "" {
		return false
	}
	hay := strings.Fields(haystack)
	ndl := strings.Fields(needle)
	if len(ndl) > len(hay) {
		return false
	}
	for i := 0; i+len(ndl) <= len(hay); i++ {
		match := true
		for j := range ndl {
			if hay[i+j] != ndl[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Snapshot is a read-only view of the committed graph used by one batch's
// resolution and reconciliation. It is built once per batch and never
// mutated; all lookups return value copies.
type Snapshot struct {
	revision   uint64
	nodes      map[string]schemas.Node // by node id
	edges      map[string]schemas.Edge // by EdgeKey
	aliasIndex map[string][]string     // normalized alias -> node ids, sorted
}

// NewSnapshot indexes the given nodes and edges under the given revision.
func NewSnapshot(revision uint64, nodes []schemas.Node, edges []schemas.Edge) *Snapshot {
	s := &Snapshot{
		revision:   revision,
		nodes:      make(map[string]schemas.Node, len(nodes)),
		edges:      make(map[string]schemas.Edge, len(edges)),
		aliasIndex: make(map[string][]string),
	}
	for _, n := range nodes {
		s.nodes[n.ID] = n
		for _, a := range n.Aliases {
			s.aliasIndex[a.Norm] = append(s.aliasIndex[a.Norm], n.ID)
		}
	}
	for id := range s.aliasIndex {
		sort.Strings(s.aliasIndex[id])
	}
	for _, e := range edges {
		s.edges[EdgeKey(e.From, e.To, e.Label)] = e
	}
	return s
}

// Revision returns the committed revision this snapshot was taken at.
func (s *Snapshot) Revision() uint64 { return s.revision }

// NodeCount returns the number of nodes in the snapshot.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges in the snapshot.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// Node returns a copy of the node with the given id.
func (s *Snapshot) Node(id string) (schemas.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Edge returns a copy of the edge with the given identity triple.
func (s *Snapshot) Edge(fromID, toID, normLabel string) (schemas.Edge, bool) {
	e, ok := s.edges[EdgeKey(fromID, toID, normLabel)]
	return e, ok
}

// Nodes returns all nodes sorted by id.
func (s *Snapshot) Nodes() []schemas.Node {
	out := make([]schemas.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all edges sorted by (from, to, label).
func (s *Snapshot) Edges() []schemas.Edge {
	out := make([]schemas.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// MatchCandidates returns the ids of all nodes plausibly matching the given
// normalized label and type: an exact alias hit, or whole-word containment
// of the label within one of the node's aliases. Result is sorted by node id.
func (s *Snapshot) MatchCandidates(normLabel string, typ schemas.EntityType) []string {
	seen := make(map[string]bool)
	var out []string

	for _, id := range s.aliasIndex[normLabel] {
		n := s.nodes[id]
		if TypesCompatible(n.Type, typ) && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	// Containment scan. The alias index only covers exact hits, so this
	// walks all nodes; corpora small enough for per-document LLM calls
	// never make this the bottleneck.
	for id, n := range s.nodes {
		if seen[id] || !TypesCompatible(n.Type, typ) {
			continue
		}
		for _, a := range n.Aliases {
			if ContainsWholeWord(a.Norm, normLabel) {
				seen[id] = true
				out = append(out, id)
				break
			}
		}
	}

	sort.Strings(out)
	return out
}

// BestMatch applies the deterministic choice rule over MatchCandidates: the
// node with the most contributing documents wins, ties broken by lowest id.
// The second return is the full plausible set, for conflict reporting.
func (s *Snapshot) BestMatch(normLabel string, typ schemas.EntityType) (string, []string) {
	ids := s.MatchCandidates(normLabel, typ)
	if len(ids) == 0 {
		return "", nil
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if len(s.nodes[id].Docs) > len(s.nodes[best].Docs) {
			best = id
		}
	}
	return best, ids
}

// CheckIntegrity verifies referential integrity: every edge endpoint must
// reference an existing node. Violations come back as descriptive errors.
func (s *Snapshot) CheckIntegrity() []error {
	var errs []error
	for key, e := range s.edges {
		if _, ok := s.nodes[e.From]; !ok {
			errs = append(errs, fmt.Errorf("edge %s references missing source node %s", key, e.From))
		}
		if _, ok := s.nodes[e.To]; !ok {
			errs = append(errs, fmt.Errorf("edge %s references missing target node %s", key, e.To))
		}
	}
	return errs
}

// CanonicalLabel picks the display label for a node: the alias with the
// highest observation count, ties broken by lowest first-seen sequence.
func CanonicalLabel(aliases []schemas.Alias) string {
	if len(aliases) == 0 {
		return ""
	}
	best := aliases[0]
	for _, a := range aliases[1:] {
		if a.Count > best.Count || (a.Count == best.Count && a.Seq < best.Seq) {
			best = a
		}
	}
	return best.Display
}

// AddDoc inserts a document id into a sorted provenance slice, reporting
// whether it was new.
func AddDoc(docs []string, docID string) ([]string, bool) {
	i := sort.SearchStrings(docs, docID)
	if i < len(docs) && docs[i] == docID {
		return docs, false
	}
	docs = append(docs, "")
	copy(docs[i+1:], docs[i:])
	docs[i] = docID
	return docs, true
}
