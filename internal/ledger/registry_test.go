package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLinear struct {
	ID     LinkingID `json:"linear_id"`
	Owners []Party   `json:"owners"`
}

func (testLinear) Kind() Kind { return "TestLinear" }

type testDeal struct {
	ID     LinkingID `json:"linear_id"`
	Ref    string    `json:"ref"`
	Owners []Party   `json:"owners"`
}

func (testDeal) Kind() Kind { return "TestDeal" }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, Register[testLinear](r, KindSpec{
		Kind:    "TestLinear",
		Linking: func(s ContractState) (LinkingID, bool) { return s.(testLinear).ID, true },
		Parties: func(s ContractState) []Party { return s.(testLinear).Owners },
	}))
	require.NoError(t, Register[testDeal](r, KindSpec{
		Kind:    "TestDeal",
		Supers:  []Kind{"TestLinear"},
		Linking: func(s ContractState) (LinkingID, bool) { return s.(testDeal).ID, true },
		Parties: func(s ContractState) []Party { return s.(testDeal).Owners },
	}))
	return r
}

func TestRegistrySubsumes(t *testing.T) {
	r := newTestRegistry(t)

	assert.True(t, r.Subsumes("TestDeal", "TestDeal"))
	assert.True(t, r.Subsumes("TestLinear", "TestDeal"), "deal descends from linear")
	assert.False(t, r.Subsumes("TestDeal", "TestLinear"))
	assert.True(t, r.Subsumes(KindAny, "TestDeal"))
	assert.Equal(t, []Kind{"TestDeal", "TestLinear"}, r.Descendants("TestLinear"))
}

func TestRegistryRejectsBadSpecs(t *testing.T) {
	r := newTestRegistry(t)

	err := Register[testLinear](r, KindSpec{Kind: "TestLinear"})
	assert.ErrorContains(t, err, "already registered")

	err = r.Register(KindSpec{Kind: "Orphan", Supers: []Kind{"Missing"}, Decode: func([]byte) (ContractState, error) { return nil, nil }})
	assert.ErrorContains(t, err, "unknown super kind")

	err = r.Register(KindSpec{Kind: KindAny})
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	r := newTestRegistry(t)

	k, err := KindOf[testDeal](r)
	require.NoError(t, err)
	assert.Equal(t, Kind("TestDeal"), k)

	_, err = KindOf[ObjectState](r)
	assert.Error(t, err)
}

func TestNewRecordResolvesCapabilities(t *testing.T) {
	r := newTestRegistry(t)
	id := NewLinkingID("123")

	rec, err := r.NewRecord(testDeal{ID: id, Ref: "123", Owners: []Party{"Bob", "Alice", "Bob"}})
	require.NoError(t, err)

	assert.Equal(t, Kind("TestDeal"), rec.Kind)
	require.NotNil(t, rec.Linking)
	assert.Equal(t, id, *rec.Linking)
	assert.Equal(t, []Party{"Alice", "Bob"}, rec.Participants)

	decoded, err := r.Decode(rec.Kind, rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, rec.State, decoded.State)
	assert.Equal(t, rec.Payload, decoded.Payload)
}

func TestNewRecordRequiresInternalLinkingID(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.NewRecord(testLinear{ID: LinkingID{External: "ext"}, Owners: []Party{"Alice"}})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "TestLinear.linearId")

	_, err = r.Decode("TestDeal", []byte(`{"linear_id":{"external_id":"","id":"00000000-0000-0000-0000-000000000000"},"owners":[],"ref":"r"}`))
	assert.True(t, IsValidation(err))
}

func TestDecodeUnknownKind(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Decode("Nope", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}
