package criteria

import (
	"cmp"
	"slices"
	"strings"

	"github.com/codeaudit/corda/internal/ledger"
)

// VaultBuilder builds Vault criteria. The zero builder yields
// status=UNCONSUMED, every kind, soft locks included.
type VaultBuilder struct {
	status     ledger.Status
	kinds      []ledger.Kind
	softLocked SoftLockPolicy
}

// NewVault starts a Vault criteria builder.
func NewVault() *VaultBuilder {
	return &VaultBuilder{}
}

// Status sets the status filter.
func (b *VaultBuilder) Status(s ledger.Status) *VaultBuilder {
	b.status = s
	return b
}

// Kinds sets the kind filter, replacing any previous kinds.
func (b *VaultBuilder) Kinds(kinds ...ledger.Kind) *VaultBuilder {
	b.kinds = slices.Clone(kinds)
	return b
}

// SoftLocked sets the soft-lock policy.
func (b *VaultBuilder) SoftLocked(p SoftLockPolicy) *VaultBuilder {
	b.softLocked = p
	return b
}

// Build returns the canonical criteria value.
func (b *VaultBuilder) Build() (Vault, error) {
	c := b.build()
	if err := Validate(c); err != nil {
		return Vault{}, err
	}
	return c, nil
}

// MustBuild is like Build but panics on invalid criteria.
func (b *VaultBuilder) MustBuild() Vault {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

func (b *VaultBuilder) build() Vault {
	c := Vault{
		status:     b.status,
		kinds:      sortedSet(b.kinds, cmp.Compare[ledger.Kind]),
		softLocked: b.softLocked,
	}
	// Defaults are stored as zero values so that Vault{} is canonical.
	if c.status == ledger.StatusUnconsumed {
		c.status = ""
	}
	if c.softLocked == SoftLockInclude {
		c.softLocked = ""
	}
	return c
}

func (c Vault) toBuilder() *VaultBuilder {
	return &VaultBuilder{status: c.status, kinds: c.kinds, softLocked: c.softLocked}
}

// SetStatus replaces the status filter.
func (c *Vault) SetStatus(s ledger.Status) { *c = c.toBuilder().Status(s).build() }

// SetKinds replaces the kind filter.
func (c *Vault) SetKinds(kinds ...ledger.Kind) { *c = c.toBuilder().Kinds(kinds...).build() }

// SetSoftLocked replaces the soft-lock policy.
func (c *Vault) SetSoftLocked(p SoftLockPolicy) { *c = c.toBuilder().SoftLocked(p).build() }

// LinkingBuilder builds Linking criteria.
type LinkingBuilder struct {
	linearIDs   []ledger.LinkingID
	externalIDs []string
	parties     []ledger.Party
	exactMatch  bool
}

// NewLinking starts a Linking criteria builder.
func NewLinking() *LinkingBuilder {
	return &LinkingBuilder{}
}

// LinearIDs sets the linear id selector.
func (b *LinkingBuilder) LinearIDs(ids ...ledger.LinkingID) *LinkingBuilder {
	b.linearIDs = slices.Clone(ids)
	return b
}

// ExternalIDs sets the external id selector.
func (b *LinkingBuilder) ExternalIDs(ids ...string) *LinkingBuilder {
	b.externalIDs = slices.Clone(ids)
	return b
}

// Parties sets the participant filter.
func (b *LinkingBuilder) Parties(parties ...ledger.Party) *LinkingBuilder {
	b.parties = slices.Clone(parties)
	return b
}

// ExactMatch sets whether linear ids compare on both components.
func (b *LinkingBuilder) ExactMatch(exact bool) *LinkingBuilder {
	b.exactMatch = exact
	return b
}

// Build returns the canonical criteria value. An exact filter without
// linear ids is a ValidationError.
func (b *LinkingBuilder) Build() (Linking, error) {
	c := b.build()
	if err := Validate(c); err != nil {
		return Linking{}, err
	}
	return c, nil
}

// MustBuild is like Build but panics on invalid criteria.
func (b *LinkingBuilder) MustBuild() Linking {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

func (b *LinkingBuilder) build() Linking {
	return Linking{
		linearIDs:   sortedSet(b.linearIDs, compareLinkingID),
		externalIDs: sortedSet(b.externalIDs, strings.Compare),
		parties:     sortedSet(b.parties, cmp.Compare[ledger.Party]),
		exactMatch:  b.exactMatch,
	}
}

func (c Linking) toBuilder() *LinkingBuilder {
	return &LinkingBuilder{
		linearIDs:   c.linearIDs,
		externalIDs: c.externalIDs,
		parties:     c.parties,
		exactMatch:  c.exactMatch,
	}
}

// SetLinearIDs replaces the linear id selector.
func (c *Linking) SetLinearIDs(ids ...ledger.LinkingID) {
	*c = c.toBuilder().LinearIDs(ids...).build()
}

// SetExternalIDs replaces the external id selector.
func (c *Linking) SetExternalIDs(ids ...string) {
	*c = c.toBuilder().ExternalIDs(ids...).build()
}

// SetParties replaces the participant filter.
func (c *Linking) SetParties(parties ...ledger.Party) {
	*c = c.toBuilder().Parties(parties...).build()
}

// SetExactMatch sets whether linear ids compare on both components.
func (c *Linking) SetExactMatch(exact bool) {
	*c = c.toBuilder().ExactMatch(exact).build()
}

func compareLinkingID(a, b ledger.LinkingID) int {
	if c := strings.Compare(a.External, b.External); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

// sortedSet returns a sorted, de-duplicated copy of in, or nil when empty.
func sortedSet[T any](in []T, compare func(a, b T) int) []T {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.SortFunc(out, compare)
	return slices.CompactFunc(out, func(a, b T) bool { return compare(a, b) == 0 })
}
