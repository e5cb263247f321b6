package criteria

import (
	"slices"

	"github.com/codeaudit/corda/internal/ledger"
)

// Criteria is a node in the criteria algebra.
//
// This is a sealed interface - only types in this package implement it.
type Criteria interface {
	criteriaNode() // Marker method - seals interface to this package

	// And returns a Composite requiring both this and other.
	And(other Criteria) Composite

	// Or returns a Composite requiring either this or other.
	Or(other Criteria) Composite
}

// Operator is the boolean operator of a Composite.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// SoftLockPolicy selects how soft-locked entries are treated.
type SoftLockPolicy string

const (
	// SoftLockInclude ignores soft locks. The default.
	SoftLockInclude SoftLockPolicy = "INCLUDE"
	// SoftLockExclude drops entries that carry a soft lock.
	SoftLockExclude SoftLockPolicy = "EXCLUDE"
	// SoftLockOnly keeps only entries that carry a soft lock.
	SoftLockOnly SoftLockPolicy = "ONLY"
)

// Vault is the base criteria: a status filter, a kind filter and a
// soft-lock filter. An empty kind set matches every kind. The zero value
// matches every unconsumed entry.
type Vault struct {
	status     ledger.Status
	kinds      []ledger.Kind
	softLocked SoftLockPolicy
}

func (Vault) criteriaNode() {}

// Status returns the status filter.
func (c Vault) Status() ledger.Status {
	if c.status == "" {
		return ledger.StatusUnconsumed
	}
	return c.status
}

// Kinds returns the kind filter, sorted. Empty means every kind.
func (c Vault) Kinds() []ledger.Kind { return slices.Clone(c.kinds) }

// SoftLocked returns the soft-lock policy.
func (c Vault) SoftLocked() SoftLockPolicy {
	if c.softLocked == "" {
		return SoftLockInclude
	}
	return c.softLocked
}

func (c Vault) And(other Criteria) Composite { return And(c, other) }
func (c Vault) Or(other Criteria) Composite  { return Or(c, other) }

// Linking filters entries by linking identifier and participants.
//
// The identity selectors LinearIDs and ExternalIDs name logical objects; an
// entry matches when it is linkable and named by either selector. With no
// selector every linkable entry is named. Parties, when set, further
// requires at least one participant in the set.
//
// With ExactMatch, a linear id matches only when both components are equal.
// Otherwise the external component is compared when the filter id has one,
// and the internal component when it does not.
type Linking struct {
	linearIDs   []ledger.LinkingID
	externalIDs []string
	parties     []ledger.Party
	exactMatch  bool
}

func (Linking) criteriaNode() {}

// LinearIDs returns the linear id selector, sorted.
func (c Linking) LinearIDs() []ledger.LinkingID { return slices.Clone(c.linearIDs) }

// ExternalIDs returns the external id selector, sorted.
func (c Linking) ExternalIDs() []string { return slices.Clone(c.externalIDs) }

// Parties returns the participant filter, sorted.
func (c Linking) Parties() []ledger.Party { return slices.Clone(c.parties) }

// ExactMatch reports whether linear ids compare on both components.
func (c Linking) ExactMatch() bool { return c.exactMatch }

func (c Linking) And(other Criteria) Composite { return And(c, other) }
func (c Linking) Or(other Criteria) Composite  { return Or(c, other) }

// Composite combines two criteria with AND or OR.
type Composite struct {
	op    Operator
	left  Criteria
	right Criteria
}

func (Composite) criteriaNode() {}

// Operator returns the boolean operator.
func (c Composite) Operator() Operator { return c.op }

// Left returns the left operand.
func (c Composite) Left() Criteria { return c.left }

// Right returns the right operand.
func (c Composite) Right() Criteria { return c.right }

func (c Composite) And(other Criteria) Composite { return And(c, other) }
func (c Composite) Or(other Criteria) Composite  { return Or(c, other) }

// And combines left and right with AND.
func And(left, right Criteria) Composite {
	return Composite{op: OpAnd, left: left, right: right}
}

// Or combines left and right with OR.
func Or(left, right Criteria) Composite {
	return Composite{op: OpOr, left: left, right: right}
}
