package ledger

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"unconsumed": StatusUnconsumed,
		"CONSUMED":   StatusConsumed,
		" all ":      StatusAll,
	} {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseStatus("locked")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestStatusMatches(t *testing.T) {
	assert.True(t, StatusUnconsumed.Matches(StatusUnconsumed))
	assert.False(t, StatusUnconsumed.Matches(StatusConsumed))
	assert.True(t, StatusConsumed.Matches(StatusAll))
	assert.True(t, StatusUnconsumed.Matches(StatusAll))
}

func TestStateRefCompare(t *testing.T) {
	a := StateRef{TxID: "a", Index: 2}
	b := StateRef{TxID: "a", Index: 10}
	c := StateRef{TxID: "b", Index: 0}

	assert.Negative(t, a.Compare(b))
	assert.Negative(t, b.Compare(c))
	assert.Zero(t, a.Compare(a))
	assert.Equal(t, "a(2)", a.String())
}

func TestLinkingID(t *testing.T) {
	id := NewLinkingID("123")
	assert.True(t, id.HasInternal())
	assert.Equal(t, 7, int(id.ID.Version()))
	assert.Equal(t, "123_"+id.ID.String(), id.String())

	ext := ExternalLinkingID("456")
	assert.False(t, ext.HasInternal())
	assert.Equal(t, uuid.Nil, ext.ID)
}

func TestRecordHasParticipant(t *testing.T) {
	rec := Record{Participants: []Party{"Alice", "Bob", "MegaCorp"}}
	assert.True(t, rec.HasParticipant([]Party{"Zed", "MegaCorp"}))
	assert.False(t, rec.HasParticipant([]Party{"Zed"}))
	assert.False(t, rec.HasParticipant(nil))
}

func TestErrorHelpers(t *testing.T) {
	ref := StateRef{TxID: "t", Index: 0}
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{&ValidationError{Field: "f", Message: "bad"}, CodeValidation},
		{NewDoubleSpendError(ref, "tx"), CodeConflict},
		{&NotFoundError{Ref: ref}, CodeNotFound},
		{&StorageError{Op: "write", Err: fmt.Errorf("disk full")}, CodeStorage},
		{fmt.Errorf("plain"), ""},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("outer: %w", tt.err)
		assert.Equal(t, tt.code, CodeOf(wrapped), tt.err.Error())
	}

	se := &StorageError{Op: "write", Err: fmt.Errorf("disk full")}
	assert.ErrorContains(t, se, "disk full")
	assert.NotNil(t, se.Unwrap())
}

func TestParseLinkingID(t *testing.T) {
	id := NewLinkingID("deal_123")
	got, err := ParseLinkingID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	bare := NewLinkingID("")
	got, err = ParseLinkingID(bare.String())
	require.NoError(t, err)
	assert.Equal(t, bare, got)

	_, err = ParseLinkingID("not-a-uuid")
	assert.True(t, IsValidation(err))
}
