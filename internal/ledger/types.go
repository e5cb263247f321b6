package ledger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Status is the consumption status of a vault entry.
type Status string

const (
	// StatusUnconsumed marks an entry that is still spendable.
	StatusUnconsumed Status = "UNCONSUMED"
	// StatusConsumed marks an entry spent by a later transaction.
	StatusConsumed Status = "CONSUMED"
	// StatusAll is a query-only convenience matching either status.
	// No entry is ever stored with it.
	StatusAll Status = "ALL"
)

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusUnconsumed:
		return StatusUnconsumed, nil
	case StatusConsumed:
		return StatusConsumed, nil
	case StatusAll:
		return StatusAll, nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
}

// Matches reports whether an entry with status s satisfies a filter status.
func (s Status) Matches(filter Status) bool {
	return filter == StatusAll || s == filter
}

// Kind tags the contract-state type of a record.
type Kind string

// KindAny is the implicit root kind. Every registered kind descends from it,
// so filtering by KindAny is the same as not filtering by kind.
const KindAny Kind = "ContractState"

// StateRef identifies one output of one transaction. Immutable.
type StateRef struct {
	TxID  string `json:"txhash"`
	Index int    `json:"index"`
}

func (r StateRef) String() string {
	return fmt.Sprintf("%s(%d)", r.TxID, r.Index)
}

// Compare orders refs by transaction id, then output index.
func (r StateRef) Compare(o StateRef) int {
	if c := strings.Compare(r.TxID, o.TxID); c != 0 {
		return c
	}
	return r.Index - o.Index
}

// Party is a counterparty name, e.g. "O=MegaCorp, L=London, C=GB".
type Party string

// LinkingID correlates successive versions of one logical object.
// External is the optional human-assigned part; ID is the unique part.
// A filter-only LinkingID may carry a zero ID (see ExternalLinkingID).
type LinkingID struct {
	External string    `json:"external_id,omitempty"`
	ID       uuid.UUID `json:"id"`
}

// NewLinkingID creates a fresh identifier with a time-sortable UUIDv7
// internal component.
func NewLinkingID(external string) LinkingID {
	return LinkingID{External: external, ID: uuid.Must(uuid.NewV7())}
}

// ExternalLinkingID builds an identifier that constrains only the external
// component. It is meaningful only in non-exact linking filters.
func ExternalLinkingID(external string) LinkingID {
	return LinkingID{External: external}
}

// ParseLinkingID parses the String form: "<uuid>" or "<external>_<uuid>".
func ParseLinkingID(s string) (LinkingID, error) {
	external, raw := "", s
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		external, raw = s[:i], s[i+1:]
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return LinkingID{}, &ValidationError{Field: "linearId", Message: fmt.Sprintf("invalid linking id %q", s)}
	}
	return LinkingID{External: external, ID: id}, nil
}

// HasInternal reports whether the internal component is set.
func (l LinkingID) HasInternal() bool {
	return l.ID != uuid.Nil
}

// Key is the secondary-index key: the internal component.
func (l LinkingID) Key() string {
	return l.ID.String()
}

func (l LinkingID) String() string {
	if l.External != "" {
		return l.External + "_" + l.ID.String()
	}
	return l.ID.String()
}

// ContractState is a typed record payload. Concrete states are plain structs
// registered with a Registry; capability extraction happens there.
type ContractState interface {
	Kind() Kind
}

// Record is a contract state with its capabilities resolved.
// Build records with Registry.NewRecord; the zero value is not usable.
type Record struct {
	Kind         Kind
	State        ContractState
	Payload      []byte // canonical JSON of State
	Linking      *LinkingID
	Participants []Party // sorted, de-duplicated
}

// HasParticipant reports whether any of parties takes part in the record.
func (r Record) HasParticipant(parties []Party) bool {
	for _, p := range parties {
		if _, ok := slices.BinarySearch(r.Participants, p); ok {
			return true
		}
	}
	return false
}

// Entry is a vault entry: a record, its reference and its status.
type Entry struct {
	Ref     StateRef
	Record  Record
	Status  Status
	LockID  string // soft lock holder; empty when unlocked
	Seq     int64  // commit seq that produced the entry
	SpentAt int64  // commit seq that consumed it, 0 while unconsumed
}

// Transaction is an already-validated transaction handed to the recorder.
// Inputs reference states consumed; Outputs become new entries at refs
// (ID, 0..len(Outputs)-1).
type Transaction struct {
	ID      string
	Inputs  []StateRef
	Outputs []Record
	Notary  Party
}

// OutputRef returns the reference of output i.
func (t Transaction) OutputRef(i int) StateRef {
	return StateRef{TxID: t.ID, Index: i}
}

// NewTransaction builds a transaction whose id is the content hash of its
// inputs, outputs, notary and salt. The salt distinguishes otherwise
// identical transactions.
func NewTransaction(inputs []StateRef, outputs []Record, notary Party, salt string) (Transaction, error) {
	id, err := TransactionID(inputs, outputs, notary, salt)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:      id,
		Inputs:  slices.Clone(inputs),
		Outputs: slices.Clone(outputs),
		Notary:  notary,
	}, nil
}

// Update is the effect of one committed transaction.
type Update struct {
	Seq      int64
	TxID     string
	Consumed []Entry
	Produced []Entry
}
