package knowledgegraph

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
)

// Resolution is the outcome of resolving one batch's candidate entities
// against a graph snapshot.
type Resolution struct {
	// Assignments holds the canonical node id for each input candidate, in
	// input order.
	Assignments []string
	// ByLabel maps each normalized candidate label to the node id it
	// resolved to. The reconciler uses it to rewrite relation endpoints.
	ByLabel map[string]string
	// NewNodes are minted this batch, sorted by id.
	NewNodes []schemas.Node
	// UpdatedNodes are existing nodes whose alias set or provenance grew,
	// carrying full post-merge state. Sorted by id.
	UpdatedNodes []schemas.Node
	// Warnings collects non-fatal resolution conflicts, already logged.
	Warnings []string
}

// NodeFor returns the node id a normalized label resolved to, if any.
func (r *Resolution) NodeFor(normLabel string) (string, bool) {
	id, ok := r.ByLabel[normLabel]
	return id, ok
}

// Resolver assigns stable canonical identities to candidate entities.
// Matching is exact-or-alias only, by design: fuzzy or semantic merging
// would make re-runs unexplainable and unstable.
type Resolver struct {
	log *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{log: logger.Named("resolver")}
}

// candidateGroup folds all candidates sharing one (normalized label, type)
// key. Grouping before matching makes resolution independent of the order
// candidates arrive in.
type candidateGroup struct {
	label   string
	typ     schemas.EntityType
	docs    map[string]bool
	forms   map[string]int // raw surface form -> occurrences
	indexes []int          // positions in the input slice
}

func (g *candidateGroup) display() string {
	// Most frequent raw form wins; ties break to the lexicographically
	// smallest so permuted input cannot flip the choice.
	best := ""
	bestCount := -1
	for form, count := range g.forms {
		if count > bestCount || (count == bestCount && form < best) {
			best = form
			bestCount = count
		}
	}
	return best
}

// Resolve maps every candidate onto a canonical node: an existing node from
// the snapshot when the label matches one of its aliases (exactly, or by
// whole-word containment) with a compatible type, a newly minted node
// otherwise. Existing-graph matches take precedence over candidate-to-
// candidate merging. No node is ever deleted here.
func (r *Resolver) Resolve(candidates []schemas.CandidateEntity, snap *Snapshot) *Resolution {
	res := &Resolution{
		Assignments: make([]string, len(candidates)),
		ByLabel:     make(map[string]string),
	}

	groups := r.groupCandidates(candidates, res)

	// Deterministic processing order: sorted by label, then type.
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Working copies of snapshot nodes touched this batch; a node can be
	// matched by several groups.
	updated := make(map[string]*schemas.Node)
	minted := make(map[string]*schemas.Node)

	for _, key := range keys {
		g := groups[key]
		nodeID := r.resolveGroup(g, snap, updated, minted, res)

		for _, idx := range g.indexes {
			res.Assignments[idx] = nodeID
		}
		r.recordLabel(g.label, nodeID, snap, updated, minted, res)
	}

	for _, n := range minted {
		res.NewNodes = append(res.NewNodes, *n)
	}
	sort.Slice(res.NewNodes, func(i, j int) bool { return res.NewNodes[i].ID < res.NewNodes[j].ID })
	for _, n := range updated {
		res.UpdatedNodes = append(res.UpdatedNodes, *n)
	}
	sort.Slice(res.UpdatedNodes, func(i, j int) bool { return res.UpdatedNodes[i].ID < res.UpdatedNodes[j].ID })

	return res
}

// groupCandidates folds candidates by (normalized label, normalized type)
// and then attaches untyped groups to a same-label typed group when that
// choice is unambiguous.
func (r *Resolver) groupCandidates(candidates []schemas.CandidateEntity, res *Resolution) map[string]*candidateGroup {
	groups := make(map[string]*candidateGroup)
	for i, c := range candidates {
		label := NormalizeLabel(c.Label)
		if label == "" {
			continue // nothing to anchor an identity to
		}
		typ := NormalizeType(string(c.TypeHint))
		key := label + "\x00" + string(typ)
		g, ok := groups[key]
		if !ok {
			g = &candidateGroup{
				label: label,
				typ:   typ,
				docs:  make(map[string]bool),
				forms: make(map[string]int),
			}
			groups[key] = g
		}
		g.docs[c.DocID] = true
		g.forms[strings.TrimSpace(c.Label)]++
		g.indexes = append(g.indexes, i)
	}

	// Fold untyped groups into typed ones with the same label. With several
	// concrete types in play the attachment is ambiguous: resolved to the
	// lexicographically smallest type and reported as a warning.
	for key, g := range groups {
		if g.typ != schemas.EntityUnknown {
			continue
		}
		var typed []*candidateGroup
		for _, other := range groups {
			if other != g && other.label == g.label {
				typed = append(typed, other)
			}
		}
		if len(typed) == 0 {
			continue
		}
		sort.Slice(typed, func(i, j int) bool { return typed[i].typ < typed[j].typ })
		target := typed[0]
		if len(typed) > 1 {
			warn := fmt.Sprintf("label %q has untyped candidates and %d typed variants; attached to type %q", g.label, len(typed), target.typ)
			res.Warnings = append(res.Warnings, warn)
			r.log.Warn("Ambiguous type attachment", zap.String("label", g.label), zap.String("chosen_type", string(target.typ)))
		}
		for d := range g.docs {
			target.docs[d] = true
		}
		for form, n := range g.forms {
			target.forms[form] += n
		}
		target.indexes = append(target.indexes, g.indexes...)
		delete(groups, key)
	}

	return groups
}

// resolveGroup matches one group against the snapshot (preferring nodes
// already canonicalized in prior runs) or mints a new node for it, and
// returns the assigned node id.
func (r *Resolver) resolveGroup(
	g *candidateGroup,
	snap *Snapshot,
	updated map[string]*schemas.Node,
	minted map[string]*schemas.Node,
	res *Resolution,
) string {
	docs := make([]string, 0, len(g.docs))
	for d := range g.docs {
		docs = append(docs, d)
	}
	sort.Strings(docs)

	best, plausible := snap.BestMatch(g.label, g.typ)
	if best != "" {
		if len(plausible) > 1 {
			warn := fmt.Sprintf("label %q matches %d existing nodes; resolved to %s by provenance count", g.label, len(plausible), best)
			res.Warnings = append(res.Warnings, warn)
			r.log.Warn("Ambiguous entity match",
				zap.String("label", g.label),
				zap.Strings("plausible", plausible),
				zap.String("chosen", best))
		}
		node, tracked := updated[best]
		if !tracked {
			copyNode, _ := snap.Node(best)
			// Detach the slices so merging never writes through to the
			// snapshot's backing arrays.
			copyNode.Aliases = append([]schemas.Alias(nil), copyNode.Aliases...)
			copyNode.Docs = append([]string(nil), copyNode.Docs...)
			node = &copyNode
		}
		// A merge carrying no new evidence stays out of the delta, which is
		// what keeps a forced re-run over unchanged content revision-neutral.
		if r.mergeIntoNode(node, g, docs) || tracked {
			updated[best] = node
		}
		return best
	}

	// Check nodes minted earlier in this batch. Groups sharing a label and
	// compatible types were already folded together, so an exact-id hit is
	// the only possible overlap.
	id := MintNodeID(g.label, g.typ)
	if node, ok := minted[id]; ok {
		r.mergeIntoNode(node, g, docs)
		return id
	}

	node := &schemas.Node{
		ID:    id,
		Type:  g.typ,
		Label: g.display(),
		Aliases: []schemas.Alias{{
			Norm:    g.label,
			Display: g.display(),
			Count:   len(g.docs),
			Seq:     0,
		}},
		Docs: docs,
	}
	minted[id] = node
	return id
}

// mergeIntoNode folds a group's observations into a working node copy:
// alias counts, provenance, a type upgrade for a previously untyped node,
// and the deterministic canonical-label recomputation. Alias counts track
// contributing documents, not raw mentions, so re-observing a document the
// node already knows changes nothing. Returns whether the node changed.
func (r *Resolver) mergeIntoNode(node *schemas.Node, g *candidateGroup, docs []string) bool {
	newDocs := 0
	for _, d := range docs {
		var added bool
		node.Docs, added = AddDoc(node.Docs, d)
		if added {
			newDocs++
		}
	}

	changed := newDocs > 0
	found := false
	for i := range node.Aliases {
		if node.Aliases[i].Norm == g.label {
			node.Aliases[i].Count += newDocs
			found = true
			break
		}
	}
	if !found {
		node.Aliases = append(node.Aliases, schemas.Alias{
			Norm:    g.label,
			Display: g.display(),
			Count:   len(g.docs),
			Seq:     len(node.Aliases),
		})
		changed = true
	}
	if node.Type == schemas.EntityUnknown && g.typ != schemas.EntityUnknown {
		node.Type = g.typ
		changed = true
	}
	node.Label = CanonicalLabel(node.Aliases)
	return changed
}

// recordLabel publishes the label -> node id mapping used for endpoint
// rewriting. When two incompatible types share one label the mapping is
// ambiguous; the node with the most provenance (ties: lowest id) wins.
func (r *Resolver) recordLabel(
	label, nodeID string,
	snap *Snapshot,
	updated map[string]*schemas.Node,
	minted map[string]*schemas.Node,
	res *Resolution,
) {
	prev, ok := res.ByLabel[label]
	if !ok || prev == nodeID {
		res.ByLabel[label] = nodeID
		return
	}

	lookup := func(id string) *schemas.Node {
		if n, ok := updated[id]; ok {
			return n
		}
		if n, ok := minted[id]; ok {
			return n
		}
		if n, ok := snap.Node(id); ok {
			return &n
		}
		return &schemas.Node{ID: id}
	}
	a, b := lookup(prev), lookup(nodeID)
	chosen := prev
	if len(b.Docs) > len(a.Docs) || (len(b.Docs) == len(a.Docs) && b.ID < a.ID) {
		chosen = nodeID
	}
	res.ByLabel[label] = chosen
	warn := fmt.Sprintf("label %q resolves to multiple nodes (%s, %s); endpoint mapping uses %s", label, prev, nodeID, chosen)
	res.Warnings = append(res.Warnings, warn)
	r.log.Warn("Label maps to multiple nodes", zap.String("label", label), zap.String("chosen", chosen))
}
