package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKindRecord(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ObjectKind{
		Kind:        "Bond",
		LinkingPath: "linear_id",
		PartiesPath: "holders",
	}.Spec()))

	id := NewLinkingID("BOND-1")
	state := ObjectState{KindTag: "Bond", Data: Object{
		"linear_id": Object{"id": String(id.ID.String()), "external_id": String("BOND-1")},
		"holders":   Array{String("Zed"), String("Alice")},
		"face":      Int(1000),
	}}

	rec, err := r.NewRecord(state)
	require.NoError(t, err)
	require.NotNil(t, rec.Linking)
	assert.Equal(t, id, *rec.Linking)
	assert.Equal(t, []Party{"Alice", "Zed"}, rec.Participants)

	decoded, err := r.Decode("Bond", rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, state, decoded.State)
}

func TestObjectKindMissingLinking(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ObjectKind{Kind: "Note", LinkingPath: "linear_id"}.Spec()))

	rec, err := r.NewRecord(ObjectState{KindTag: "Note", Data: Object{"text": String("hi")}})
	require.NoError(t, err)
	assert.Nil(t, rec.Linking)
	assert.Empty(t, rec.Participants)
}
