package knowledgegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mkgraph/api/schemas"
)

// resolveBatch runs resolution over the candidates so reconciliation has a
// label mapping to work with.
func resolveBatch(t *testing.T, snap *Snapshot, candidates ...schemas.CandidateEntity) *Resolution {
	t.Helper()
	return NewResolver(globalFixture.Logger).Resolve(candidates, snap)
}

func TestReconcilerCreatesEdges(t *testing.T) {
	t.Parallel()
	rc := NewReconciler(globalFixture.Logger)
	snap := emptySnapshot()

	res := resolveBatch(t, snap,
		schemas.CandidateEntity{Label: "Jane Doe", TypeHint: schemas.EntityPerson, DocID: "a.md"},
		schemas.CandidateEntity{Label: "Acme Corp", TypeHint: schemas.EntityOrganization, DocID: "a.md"},
	)

	rec := rc.Reconcile([]schemas.CandidateRelation{
		{SourceLabel: "Jane Doe", TargetLabel: "Acme Corp", Label: "Works At", DocID: "a.md"},
	}, res, snap)

	require.Len(t, rec.NewEdges, 1)
	assert.Empty(t, rec.UpdatedEdges)
	assert.Zero(t, rec.Dropped)

	e := rec.NewEdges[0]
	janeID, _ := res.NodeFor("jane doe")
	acmeID, _ := res.NodeFor("acme corp")
	assert.Equal(t, janeID, e.From)
	assert.Equal(t, acmeID, e.To)
	assert.Equal(t, "works at", e.Label, "relation labels are normalized")
	assert.Equal(t, 1, e.Weight)
	assert.Equal(t, []string{"a.md"}, e.Docs)
}

func TestReconcilerAccumulatesWeightPerDocument(t *testing.T) {
	t.Parallel()
	rc := NewReconciler(globalFixture.Logger)
	snap := emptySnapshot()

	res := resolveBatch(t, snap,
		schemas.CandidateEntity{Label: "A", TypeHint: schemas.EntityTopic, DocID: "1.md"},
		schemas.CandidateEntity{Label: "B", TypeHint: schemas.EntityTopic, DocID: "1.md"},
	)

	rec := rc.Reconcile([]schemas.CandidateRelation{
		// Three documents assert the same relation; one of them twice.
		{SourceLabel: "A", TargetLabel: "B", Label: "links to", DocID: "1.md"},
		{SourceLabel: "A", TargetLabel: "B", Label: "links to", DocID: "2.md"},
		{SourceLabel: "A", TargetLabel: "B", Label: "links to", DocID: "2.md"},
		{SourceLabel: "A", TargetLabel: "B", Label: "links to", DocID: "3.md"},
	}, res, snap)

	require.Len(t, rec.NewEdges, 1)
	e := rec.NewEdges[0]
	assert.Equal(t, 3, e.Weight, "weight counts contributing documents, not mentions")
	assert.Equal(t, []string{"1.md", "2.md", "3.md"}, e.Docs)
}

func TestReconcilerMergesWithCommittedEdges(t *testing.T) {
	t.Parallel()
	rc := NewReconciler(globalFixture.Logger)
	snap := getTestSnapshot(t)

	res := resolveBatch(t, snap,
		schemas.CandidateEntity{Label: "Jane Doe", TypeHint: schemas.EntityPerson, DocID: "z.md"},
		schemas.CandidateEntity{Label: "Acme Corp", TypeHint: schemas.EntityOrganization, DocID: "z.md"},
	)

	t.Run("rediscovery from a new document updates the edge", func(t *testing.T) {
		t.Parallel()
		rec := rc.Reconcile([]schemas.CandidateRelation{
			{SourceLabel: "Jane Doe", TargetLabel: "Acme Corp", Label: "works at", DocID: "z.md"},
		}, res, snap)

		assert.Empty(t, rec.NewEdges)
		require.Len(t, rec.UpdatedEdges, 1)
		assert.Equal(t, 2, rec.UpdatedEdges[0].Weight)
		assert.Equal(t, []string{"a.md", "z.md"}, rec.UpdatedEdges[0].Docs)
	})

	t.Run("rediscovery from the same document is a no-op", func(t *testing.T) {
		t.Parallel()
		rec := rc.Reconcile([]schemas.CandidateRelation{
			{SourceLabel: "Jane Doe", TargetLabel: "Acme Corp", Label: "works at", DocID: "a.md"},
		}, res, snap)

		assert.Empty(t, rec.NewEdges)
		assert.Empty(t, rec.UpdatedEdges, "unchanged edge must not surface in the delta")
	})

	t.Run("endpoints fall back to the committed alias index", func(t *testing.T) {
		t.Parallel()
		// Neither endpoint is in this batch's resolution.
		empty := resolveBatch(t, snap)
		rec := rc.Reconcile([]schemas.CandidateRelation{
			{SourceLabel: "acme", TargetLabel: "roadmap", Label: "owns", DocID: "q.md"},
		}, empty, snap)

		require.Len(t, rec.NewEdges, 1)
		assert.Equal(t, MintNodeID("acme corp", schemas.EntityOrganization), rec.NewEdges[0].From)
		assert.Equal(t, MintNodeID("roadmap", schemas.EntityUnknown), rec.NewEdges[0].To)
	})
}

func TestReconcilerDrops(t *testing.T) {
	t.Parallel()
	rc := NewReconciler(globalFixture.Logger)
	snap := emptySnapshot()

	res := resolveBatch(t, snap,
		schemas.CandidateEntity{Label: "Known", TypeHint: schemas.EntityTopic, DocID: "a.md"},
	)

	rec := rc.Reconcile([]schemas.CandidateRelation{
		{SourceLabel: "Known", TargetLabel: "Ghost", Label: "refs", DocID: "a.md"},
		{SourceLabel: "Ghost", TargetLabel: "Known", Label: "refs", DocID: "a.md"},
		{SourceLabel: "Known", TargetLabel: "Known", Label: "   ", DocID: "a.md"},
	}, res, snap)

	assert.Empty(t, rec.NewEdges)
	assert.Equal(t, 3, rec.Dropped)
	assert.Len(t, rec.Warnings, 3)
	assert.Empty(t, rec.DocRelations, "dropped relations contribute nothing")
}

func TestReconcilerCountsSurvivingRelationsPerDocument(t *testing.T) {
	t.Parallel()
	rc := NewReconciler(globalFixture.Logger)
	snap := emptySnapshot()

	res := resolveBatch(t, snap,
		schemas.CandidateEntity{Label: "Alpha", TypeHint: schemas.EntityTopic, DocID: "a.md"},
		schemas.CandidateEntity{Label: "Beta", TypeHint: schemas.EntityTopic, DocID: "a.md"},
		schemas.CandidateEntity{Label: "Gamma", TypeHint: schemas.EntityTopic, DocID: "b.md"},
	)

	rec := rc.Reconcile([]schemas.CandidateRelation{
		{SourceLabel: "Alpha", TargetLabel: "Beta", Label: "links", DocID: "a.md"},
		{SourceLabel: "Beta", TargetLabel: "Gamma", Label: "links", DocID: "a.md"},
		{SourceLabel: "Gamma", TargetLabel: "Alpha", Label: "links", DocID: "b.md"},
		{SourceLabel: "Gamma", TargetLabel: "Ghost", Label: "links", DocID: "b.md"},
	}, res, snap)

	assert.Equal(t, map[string]int{"a.md": 2, "b.md": 1}, rec.DocRelations)
	assert.Equal(t, 1, rec.Dropped)
}

func TestReconcilerSelfLoops(t *testing.T) {
	t.Parallel()
	rc := NewReconciler(globalFixture.Logger)
	snap := emptySnapshot()

	res := resolveBatch(t, snap,
		schemas.CandidateEntity{Label: "Ouroboros", TypeHint: schemas.EntityConcept, DocID: "a.md"},
	)

	rec := rc.Reconcile([]schemas.CandidateRelation{
		{SourceLabel: "Ouroboros", TargetLabel: "Ouroboros", Label: "contains", DocID: "a.md"},
	}, res, snap)

	require.Len(t, rec.NewEdges, 1)
	assert.Equal(t, rec.NewEdges[0].From, rec.NewEdges[0].To)
}

func TestReconcilerDeterministicOrder(t *testing.T) {
	t.Parallel()
	rc := NewReconciler(globalFixture.Logger)
	snap := emptySnapshot()

	res := resolveBatch(t, snap,
		schemas.CandidateEntity{Label: "A", TypeHint: schemas.EntityTopic, DocID: "1.md"},
		schemas.CandidateEntity{Label: "B", TypeHint: schemas.EntityTopic, DocID: "1.md"},
		schemas.CandidateEntity{Label: "C", TypeHint: schemas.EntityTopic, DocID: "1.md"},
	)

	forward := []schemas.CandidateRelation{
		{SourceLabel: "A", TargetLabel: "B", Label: "x", DocID: "1.md"},
		{SourceLabel: "B", TargetLabel: "C", Label: "y", DocID: "1.md"},
		{SourceLabel: "C", TargetLabel: "A", Label: "z", DocID: "1.md"},
	}
	reversed := []schemas.CandidateRelation{forward[2], forward[0], forward[1]}

	a := rc.Reconcile(forward, res, snap)
	b := rc.Reconcile(reversed, res, snap)
	assert.Equal(t, a.NewEdges, b.NewEdges)
}
