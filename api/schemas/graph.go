package schemas

// -- Canonical Knowledge Graph Data Model --

// EntityType is the normalized type of a canonical entity. Extraction is
// free to emit any string; the resolver normalizes it and unknown values are
// kept as-is rather than rejected.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityTopic        EntityType = "topic"
	EntityConcept      EntityType = "concept"
	EntityEvent        EntityType = "event"
	// EntityUnknown marks a candidate whose extraction carried no usable
	// type hint. It is compatible with every concrete type during matching.
	EntityUnknown EntityType = ""
)

// Alias is one known surface form of a node, with enough bookkeeping to make
// the canonical-label choice deterministic across runs: highest Count wins,
// ties broken by lowest Seq (first-seen order).
type Alias struct {
	Norm    string `json:"norm"`    // normalized form, the matching key
	Display string `json:"display"` // preferred raw surface form for Norm
	Count   int    `json:"count"`   // contributing documents, counted once each
	Seq     int    `json:"seq"`     // mint order within the node, 0-based
}

// Node is the single canonical representation of an entity across all
// documents. Its ID is minted once and never changes for the node's lifetime.
type Node struct {
	ID      string     `json:"id"`
	Label   string     `json:"label"` // canonical display label
	Type    EntityType `json:"type"`
	Aliases []Alias    `json:"aliases"`
	Docs    []string   `json:"docs"` // contributing document ids, sorted
}

// HasDoc reports whether the given document id already contributed to the node.
func (n *Node) HasDoc(docID string) bool {
	for _, d := range n.Docs {
		if d == docID {
			return true
		}
	}
	return false
}

// Edge is a directed, labeled relation between two canonical nodes. The
// triple (From, To, Label) is unique in the graph; rediscovery accumulates
// weight and provenance instead of duplicating the edge.
type Edge struct {
	ID     string   `json:"id"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Label  string   `json:"label"` // normalized relation label
	Weight int      `json:"weight"`
	Docs   []string `json:"docs"` // contributing document ids, sorted
}

// HasDoc reports whether the given document id already contributed to the edge.
func (e *Edge) HasDoc(docID string) bool {
	for _, d := range e.Docs {
		if d == docID {
			return true
		}
	}
	return false
}

// GraphDelta is the set of changes one batch produces. Entries in the update
// slices carry the full post-merge state of the node or edge; apply is an
// upsert either way.
type GraphDelta struct {
	NodesToAdd    []Node `json:"nodes_to_add"`
	NodesToUpdate []Node `json:"nodes_to_update"`
	EdgesToAdd    []Edge `json:"edges_to_add"`
	EdgesToUpdate []Edge `json:"edges_to_update"`
}

// Empty reports whether applying the delta would be a no-op.
func (d *GraphDelta) Empty() bool {
	return len(d.NodesToAdd) == 0 && len(d.NodesToUpdate) == 0 &&
		len(d.EdgesToAdd) == 0 && len(d.EdgesToUpdate) == 0
}
