package knowledgegraph

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mkgraph/api/schemas"
)

func emptySnapshot() *Snapshot {
	return NewSnapshot(0, nil, nil)
}

func TestResolverMintsNewNodes(t *testing.T) {
	t.Parallel()
	r := NewResolver(globalFixture.Logger)

	candidates := []schemas.CandidateEntity{
		{Label: "Jane Doe", TypeHint: schemas.EntityPerson, DocID: "a.md"},
		{Label: "Acme Corp", TypeHint: schemas.EntityOrganization, DocID: "a.md"},
		{Label: "jane doe", TypeHint: schemas.EntityPerson, DocID: "b.md"},
	}
	res := r.Resolve(candidates, emptySnapshot())

	require.Len(t, res.NewNodes, 2)
	assert.Empty(t, res.UpdatedNodes)

	// Candidates 0 and 2 share an identity despite different surface forms.
	assert.Equal(t, res.Assignments[0], res.Assignments[2])
	assert.NotEqual(t, res.Assignments[0], res.Assignments[1])

	var jane schemas.Node
	for _, n := range res.NewNodes {
		if n.Type == schemas.EntityPerson {
			jane = n
		}
	}
	require.NotEmpty(t, jane.ID)
	assert.Equal(t, MintNodeID("jane doe", schemas.EntityPerson), jane.ID)
	assert.Equal(t, []string{"a.md", "b.md"}, jane.Docs)
	require.Len(t, jane.Aliases, 1)
	assert.Equal(t, 2, jane.Aliases[0].Count)
}

func TestResolverMatchesExistingNodes(t *testing.T) {
	t.Parallel()
	r := NewResolver(globalFixture.Logger)
	snap := getTestSnapshot(t)
	orgID := MintNodeID("acme corp", schemas.EntityOrganization)

	t.Run("exact alias rediscovery updates the node", func(t *testing.T) {
		t.Parallel()
		res := r.Resolve([]schemas.CandidateEntity{
			{Label: "ACME CORP", TypeHint: schemas.EntityOrganization, DocID: "c.md"},
		}, snap)

		assert.Empty(t, res.NewNodes)
		require.Len(t, res.UpdatedNodes, 1)
		n := res.UpdatedNodes[0]
		assert.Equal(t, orgID, n.ID)
		assert.Contains(t, n.Docs, "c.md")
		assert.Equal(t, 3, n.Aliases[0].Count, "one new contributing document")
	})

	t.Run("containment attaches new alias", func(t *testing.T) {
		t.Parallel()
		res := r.Resolve([]schemas.CandidateEntity{
			{Label: "Acme", TypeHint: schemas.EntityUnknown, DocID: "d.md"},
		}, snap)

		assert.Empty(t, res.NewNodes)
		require.Len(t, res.UpdatedNodes, 1)
		assert.Equal(t, orgID, res.UpdatedNodes[0].ID)
	})

	t.Run("incompatible type mints a separate node", func(t *testing.T) {
		t.Parallel()
		res := r.Resolve([]schemas.CandidateEntity{
			{Label: "Acme Corp", TypeHint: schemas.EntityPerson, DocID: "e.md"},
		}, snap)

		require.Len(t, res.NewNodes, 1)
		assert.NotEqual(t, orgID, res.NewNodes[0].ID)
	})

	t.Run("type upgrade for untyped node", func(t *testing.T) {
		t.Parallel()
		res := r.Resolve([]schemas.CandidateEntity{
			{Label: "Roadmap", TypeHint: schemas.EntityTopic, DocID: "f.md"},
		}, snap)

		require.Len(t, res.UpdatedNodes, 1)
		assert.Equal(t, schemas.EntityTopic, res.UpdatedNodes[0].Type)
	})
}

func TestResolverUntypedFolding(t *testing.T) {
	t.Parallel()
	r := NewResolver(globalFixture.Logger)

	t.Run("untyped folds into the only typed group", func(t *testing.T) {
		t.Parallel()
		res := r.Resolve([]schemas.CandidateEntity{
			{Label: "Vector Search", TypeHint: schemas.EntityConcept, DocID: "a.md"},
			{Label: "vector search", DocID: "b.md"},
		}, emptySnapshot())

		require.Len(t, res.NewNodes, 1)
		assert.Equal(t, res.Assignments[0], res.Assignments[1])
		assert.Equal(t, []string{"a.md", "b.md"}, res.NewNodes[0].Docs)
		assert.Empty(t, res.Warnings)
	})

	t.Run("ambiguous fold picks smallest type and warns", func(t *testing.T) {
		t.Parallel()
		res := r.Resolve([]schemas.CandidateEntity{
			{Label: "Mercury", TypeHint: schemas.EntityPerson, DocID: "a.md"},
			{Label: "Mercury", TypeHint: schemas.EntityTopic, DocID: "a.md"},
			{Label: "Mercury", DocID: "b.md"},
		}, emptySnapshot())

		require.Len(t, res.NewNodes, 2)
		assert.NotEmpty(t, res.Warnings)
		// "person" < "topic", so the untyped mention lands on the person node.
		assert.Equal(t, res.Assignments[0], res.Assignments[2])
	})
}

func TestResolverPermutationIndependence(t *testing.T) {
	t.Parallel()
	r := NewResolver(globalFixture.Logger)

	base := []schemas.CandidateEntity{
		{Label: "Jane Doe", TypeHint: schemas.EntityPerson, DocID: "a.md"},
		{Label: "Acme Corp", TypeHint: schemas.EntityOrganization, DocID: "a.md"},
		{Label: "jane   doe", TypeHint: schemas.EntityPerson, DocID: "b.md"},
		{Label: "ACME", DocID: "b.md"},
		{Label: "Roadmap Review", TypeHint: schemas.EntityEvent, DocID: "c.md"},
		{Label: "roadmap review", DocID: "c.md"},
	}

	reference := r.Resolve(base, emptySnapshot())

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 25; i++ {
		shuffled := make([]schemas.CandidateEntity, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := r.Resolve(shuffled, emptySnapshot())

		if diff := cmp.Diff(reference.NewNodes, got.NewNodes); diff != "" {
			t.Fatalf("node set depends on candidate order (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(reference.ByLabel, got.ByLabel); diff != "" {
			t.Fatalf("label mapping depends on candidate order (-want +got):\n%s", diff)
		}
	}
}

func TestResolverSkipsEmptyLabels(t *testing.T) {
	t.Parallel()
	r := NewResolver(globalFixture.Logger)

	res := r.Resolve([]schemas.CandidateEntity{
		{Label: "   ", TypeHint: schemas.EntityPerson, DocID: "a.md"},
		{Label: "", DocID: "a.md"},
	}, emptySnapshot())

	assert.Empty(t, res.NewNodes)
	assert.Empty(t, res.Assignments[0])
	assert.Empty(t, res.Assignments[1])
}

func TestResolverCanonicalLabelStability(t *testing.T) {
	t.Parallel()
	r := NewResolver(globalFixture.Logger)

	// Two raw forms of one identity; the more frequent form becomes the label.
	res := r.Resolve([]schemas.CandidateEntity{
		{Label: "acme corp", TypeHint: schemas.EntityOrganization, DocID: "a.md"},
		{Label: "Acme Corp", TypeHint: schemas.EntityOrganization, DocID: "b.md"},
		{Label: "Acme Corp", TypeHint: schemas.EntityOrganization, DocID: "c.md"},
	}, emptySnapshot())

	require.Len(t, res.NewNodes, 1)
	assert.Equal(t, "Acme Corp", res.NewNodes[0].Label)
}
