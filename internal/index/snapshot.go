package index

import (
	"fmt"
	"maps"
	"slices"

	"github.com/codeaudit/corda/internal/ledger"
)

// Snapshot is an immutable view of the index at one commit.
// Positions are insertion order and are stable across snapshots.
type Snapshot struct {
	seq     int64
	entries []ledger.Entry
	pos     map[ledger.StateRef]int

	byStatus   map[ledger.Status][]int // sorted positions
	byKind     map[ledger.Kind][]int
	byLinking  map[string][]int // internal linking component
	byExternal map[string][]int // external linking component
	locked     int              // count of soft-locked entries
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		pos:        make(map[ledger.StateRef]int),
		byStatus:   make(map[ledger.Status][]int),
		byKind:     make(map[ledger.Kind][]int),
		byLinking:  make(map[string][]int),
		byExternal: make(map[string][]int),
	}
}

// clone returns a deep copy of the index structures. Entry payloads are
// immutable and shared.
func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		seq:        s.seq,
		entries:    slices.Clone(s.entries),
		pos:        maps.Clone(s.pos),
		byStatus:   cloneLists(s.byStatus),
		byKind:     cloneLists(s.byKind),
		byLinking:  cloneLists(s.byLinking),
		byExternal: cloneLists(s.byExternal),
		locked:     s.locked,
	}
	return c
}

func cloneLists[K comparable](m map[K][]int) map[K][]int {
	out := make(map[K][]int, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Seq returns the commit sequence number of the snapshot. Zero is empty.
func (s *Snapshot) Seq() int64 { return s.seq }

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Locked returns the number of soft-locked entries.
func (s *Snapshot) Locked() int { return s.locked }

// At returns the entry at position i.
func (s *Snapshot) At(i int) ledger.Entry { return s.entries[i] }

// Get returns the entry for ref.
func (s *Snapshot) Get(ref ledger.StateRef) (ledger.Entry, bool) {
	i, ok := s.pos[ref]
	if !ok {
		return ledger.Entry{}, false
	}
	return s.entries[i], true
}

// Entries returns every entry in insertion order.
func (s *Snapshot) Entries() []ledger.Entry {
	return slices.Clone(s.entries)
}

// ByStatus returns the positions of entries with status st, ascending.
// StatusAll returns every position.
func (s *Snapshot) ByStatus(st ledger.Status) []int {
	if st == ledger.StatusAll {
		return s.All()
	}
	return s.byStatus[st]
}

// ByKind returns the positions of entries of exactly kind k, ascending.
func (s *Snapshot) ByKind(k ledger.Kind) []int { return s.byKind[k] }

// ByLinking returns the positions of entries whose linking id has the
// internal component key, ascending.
func (s *Snapshot) ByLinking(key string) []int { return s.byLinking[key] }

// ByExternal returns the positions of entries whose linking id has the
// external component ext, ascending.
func (s *Snapshot) ByExternal(ext string) []int { return s.byExternal[ext] }

// Linkable returns the positions of every entry carrying a linking id.
func (s *Snapshot) Linkable() []int {
	var out []int
	for i, e := range s.entries {
		if e.Record.Linking != nil {
			out = append(out, i)
		}
	}
	return out
}

// All returns every position.
func (s *Snapshot) All() []int {
	out := make([]int, len(s.entries))
	for i := range out {
		out[i] = i
	}
	return out
}

// Fingerprint is a content hash over every entry: reference, kind, payload,
// status, lock holder and commit sequence numbers. Two snapshots with equal
// fingerprints are indistinguishable to queries.
func (s *Snapshot) Fingerprint() string {
	rows := make([]any, len(s.entries))
	for i, e := range s.entries {
		rows[i] = map[string]any{
			"ref":     e.Ref.String(),
			"kind":    string(e.Record.Kind),
			"payload": ledger.HashWithDomain(ledger.DomainSnapshot, e.Record.Payload),
			"status":  string(e.Status),
			"lock":    e.LockID,
			"seq":     e.Seq,
			"spentAt": e.SpentAt,
		}
	}
	data, err := ledger.MarshalCanonical(map[string]any{"seq": s.seq, "entries": rows})
	if err != nil {
		// Every field above is a string or an int64.
		panic(fmt.Sprintf("snapshot fingerprint: %v", err))
	}
	return ledger.HashWithDomain(ledger.DomainSnapshot, data)
}

func (s *Snapshot) insert(e ledger.Entry) int {
	i := len(s.entries)
	s.entries = append(s.entries, e)
	s.pos[e.Ref] = i
	s.byStatus[e.Status] = append(s.byStatus[e.Status], i)
	s.byKind[e.Record.Kind] = append(s.byKind[e.Record.Kind], i)
	if l := e.Record.Linking; l != nil {
		if l.HasInternal() {
			s.byLinking[l.Key()] = append(s.byLinking[l.Key()], i)
		}
		if l.External != "" {
			s.byExternal[l.External] = append(s.byExternal[l.External], i)
		}
	}
	if e.LockID != "" {
		s.locked++
	}
	return i
}

func (s *Snapshot) setStatus(i int, st ledger.Status) {
	old := s.entries[i].Status
	s.byStatus[old] = removeSorted(s.byStatus[old], i)
	s.byStatus[st] = insertSorted(s.byStatus[st], i)
	s.entries[i].Status = st
}

func (s *Snapshot) setLock(i int, lockID string) {
	switch old := s.entries[i].LockID; {
	case old == "" && lockID != "":
		s.locked++
	case old != "" && lockID == "":
		s.locked--
	}
	s.entries[i].LockID = lockID
}

func insertSorted(list []int, v int) []int {
	i, found := slices.BinarySearch(list, v)
	if found {
		return list
	}
	return slices.Insert(list, i, v)
}

func removeSorted(list []int, v int) []int {
	i, found := slices.BinarySearch(list, v)
	if !found {
		return list
	}
	return slices.Delete(list, i, i+1)
}
