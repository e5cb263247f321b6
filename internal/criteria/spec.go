package criteria

import (
	"fmt"

	"github.com/codeaudit/corda/internal/ledger"
)

// Spec is the declarative form of criteria used by scenario files and the
// CLI. Exactly one of Vault, Linking, And or Or is set; And and Or fold
// two or more operands left to right.
//
//	and:
//	  - linking: {external_ids: ["123"]}
//	  - vault: {status: UNCONSUMED, kinds: [Deal]}
type Spec struct {
	Vault   *VaultSpec   `yaml:"vault,omitempty" json:"vault,omitempty"`
	Linking *LinkingSpec `yaml:"linking,omitempty" json:"linking,omitempty"`
	And     []Spec       `yaml:"and,omitempty" json:"and,omitempty"`
	Or      []Spec       `yaml:"or,omitempty" json:"or,omitempty"`
}

// VaultSpec declares Vault criteria. Empty fields take the defaults.
type VaultSpec struct {
	Status     ledger.Status  `yaml:"status,omitempty" json:"status,omitempty"`
	Kinds      []ledger.Kind  `yaml:"kinds,omitempty" json:"kinds,omitempty"`
	SoftLocked SoftLockPolicy `yaml:"soft_locked,omitempty" json:"soft_locked,omitempty"`
}

// LinkingSpec declares Linking criteria. LinearIDs are resolved by the
// caller, so scenarios can name ids by label.
type LinkingSpec struct {
	LinearIDs   []string       `yaml:"linear_ids,omitempty" json:"linear_ids,omitempty"`
	ExternalIDs []string       `yaml:"external_ids,omitempty" json:"external_ids,omitempty"`
	Parties     []ledger.Party `yaml:"parties,omitempty" json:"parties,omitempty"`
	ExactMatch  bool           `yaml:"exact_match,omitempty" json:"exact_match,omitempty"`
}

// IDResolver turns a linear id reference into a LinkingID.
type IDResolver func(ref string) (ledger.LinkingID, error)

// Build converts the spec to validated criteria. A nil resolve parses
// references with ledger.ParseLinkingID.
func (s Spec) Build(resolve IDResolver) (Criteria, error) {
	if resolve == nil {
		resolve = ledger.ParseLinkingID
	}
	c, err := s.build(resolve, "criteria")
	if err != nil {
		return nil, err
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s Spec) build(resolve IDResolver, path string) (Criteria, error) {
	set := 0
	for _, ok := range []bool{s.Vault != nil, s.Linking != nil, s.And != nil, s.Or != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, invalid(path, "exactly one of vault, linking, and, or must be set")
	}

	switch {
	case s.Vault != nil:
		return NewVault().
			Status(s.Vault.Status).
			Kinds(s.Vault.Kinds...).
			SoftLocked(s.Vault.SoftLocked).
			build(), nil
	case s.Linking != nil:
		ids := make([]ledger.LinkingID, len(s.Linking.LinearIDs))
		for i, ref := range s.Linking.LinearIDs {
			id, err := resolve(ref)
			if err != nil {
				return nil, fmt.Errorf("%s.linear_ids[%d]: %w", path, i, err)
			}
			ids[i] = id
		}
		return NewLinking().
			LinearIDs(ids...).
			ExternalIDs(s.Linking.ExternalIDs...).
			Parties(s.Linking.Parties...).
			ExactMatch(s.Linking.ExactMatch).
			build(), nil
	case s.And != nil:
		return fold(s.And, OpAnd, resolve, path+".and")
	default:
		return fold(s.Or, OpOr, resolve, path+".or")
	}
}

func fold(specs []Spec, op Operator, resolve IDResolver, path string) (Criteria, error) {
	if len(specs) < 2 {
		return nil, invalid(path, "needs at least two operands")
	}
	var out Criteria
	for i, s := range specs {
		c, err := s.build(resolve, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		switch {
		case out == nil:
			out = c
		case op == OpAnd:
			out = And(out, c)
		default:
			out = Or(out, c)
		}
	}
	return out, nil
}
