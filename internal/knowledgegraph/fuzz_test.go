package knowledgegraph

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
)

// -- Fuzz Testing --

// FuzzResolve throws arbitrary candidate batches at the resolver and checks
// the structural invariants: every non-empty candidate gets an assignment,
// and no minted node collides with another on (label, type) identity.
func FuzzResolve(f *testing.F) {
	f.Add([]byte("seed"))
	f.Add([]byte("Jane Doe\x00person\x00a.md"))

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)

		var candidates []schemas.CandidateEntity
		if err := fuzzConsumer.CreateSlice(&candidates); err != nil {
			return
		}
		if len(candidates) > 256 {
			candidates = candidates[:256]
		}

		r := NewResolver(zap.NewNop())
		res := r.Resolve(candidates, NewSnapshot(0, nil, nil))

		if len(res.Assignments) != len(candidates) {
			t.Fatalf("got %d assignments for %d candidates", len(res.Assignments), len(candidates))
		}
		for i, c := range candidates {
			if NormalizeLabel(c.Label) != "" && res.Assignments[i] == "" {
				t.Fatalf("candidate %d (%q) left unassigned", i, c.Label)
			}
		}

		seen := make(map[string]bool)
		for _, n := range res.NewNodes {
			if seen[n.ID] {
				t.Fatalf("duplicate minted node id %s", n.ID)
			}
			seen[n.ID] = true
			if len(n.Aliases) == 0 {
				t.Fatalf("minted node %s has no aliases", n.ID)
			}
		}
	})
}

// FuzzReconcile verifies reconciliation never produces an edge with an
// endpoint outside the resolved or committed node set.
func FuzzReconcile(f *testing.F) {
	f.Add([]byte("seed"))

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)

		var candidates []schemas.CandidateEntity
		if err := fuzzConsumer.CreateSlice(&candidates); err != nil {
			return
		}
		var relations []schemas.CandidateRelation
		if err := fuzzConsumer.CreateSlice(&relations); err != nil {
			return
		}
		if len(candidates) > 128 {
			candidates = candidates[:128]
		}
		if len(relations) > 128 {
			relations = relations[:128]
		}

		snap := NewSnapshot(0, nil, nil)
		res := NewResolver(zap.NewNop()).Resolve(candidates, snap)
		rec := NewReconciler(zap.NewNop()).Reconcile(relations, res, snap)

		valid := make(map[string]bool)
		for _, n := range res.NewNodes {
			valid[n.ID] = true
		}
		for _, n := range res.UpdatedNodes {
			valid[n.ID] = true
		}
		for _, e := range rec.NewEdges {
			if !valid[e.From] || !valid[e.To] {
				t.Fatalf("edge %s references unresolved endpoint (%s -> %s)", e.ID, e.From, e.To)
			}
			if e.Weight < 1 {
				t.Fatalf("edge %s has non-positive weight %d", e.ID, e.Weight)
			}
		}
	})
}
