package ledger

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// KindSpec describes one kind and its capability extractors.
type KindSpec struct {
	Kind Kind

	// Supers lists kinds this kind specialises (a deal is a linear state).
	// Every kind implicitly descends from KindAny.
	Supers []Kind

	// Decode rebuilds a state from its canonical payload.
	Decode func(payload []byte) (ContractState, error)

	// Linking extracts the linking identifier, if the kind has one.
	Linking func(ContractState) (LinkingID, bool)

	// Parties extracts the participants of a state.
	Parties func(ContractState) []Party
}

// Registry maps kind tags to capability extractors, and Go types to kind
// tags. It is populated once at start-up; lookups afterwards are read-only.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	kinds     map[Kind]*KindSpec
	ancestors map[Kind]map[Kind]struct{}
	types     map[reflect.Type]Kind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:     make(map[Kind]*KindSpec),
		ancestors: make(map[Kind]map[Kind]struct{}),
		types:     make(map[reflect.Type]Kind),
	}
}

// Register adds a kind. Super-kinds must already be registered.
func (r *Registry) Register(spec KindSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(spec)
}

func (r *Registry) registerLocked(spec KindSpec) error {
	if spec.Kind == "" || spec.Kind == KindAny {
		return fmt.Errorf("register kind: invalid kind tag %q", spec.Kind)
	}
	if _, dup := r.kinds[spec.Kind]; dup {
		return fmt.Errorf("register kind: %s already registered", spec.Kind)
	}
	if spec.Decode == nil {
		return fmt.Errorf("register kind %s: Decode is required", spec.Kind)
	}

	anc := map[Kind]struct{}{KindAny: {}}
	for _, super := range spec.Supers {
		if _, ok := r.kinds[super]; !ok && super != KindAny {
			return fmt.Errorf("register kind %s: unknown super kind %s", spec.Kind, super)
		}
		anc[super] = struct{}{}
		for a := range r.ancestors[super] {
			anc[a] = struct{}{}
		}
	}

	s := spec
	s.Supers = slices.Clone(spec.Supers)
	r.kinds[spec.Kind] = &s
	r.ancestors[spec.Kind] = anc
	return nil
}

// Register adds a kind backed by the Go type T and records T as the type
// token for that kind. Decode is derived from T when spec.Decode is nil.
func Register[T ContractState](r *Registry, spec KindSpec) error {
	if spec.Decode == nil {
		spec.Decode = func(payload []byte) (ContractState, error) {
			var v T
			if err := json.Unmarshal(payload, &v); err != nil {
				return nil, err
			}
			return v, nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registerLocked(spec); err != nil {
		return err
	}
	r.types[reflect.TypeOf((*T)(nil)).Elem()] = spec.Kind
	return nil
}

// KindOf returns the kind registered for Go type T.
func KindOf[T ContractState](r *Registry) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.types[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return "", &ValidationError{Field: "type", Message: fmt.Sprintf("no kind registered for type %s", reflect.TypeOf((*T)(nil)).Elem())}
	}
	return k, nil
}

// Known reports whether kind is registered (KindAny always is).
func (r *Registry) Known(kind Kind) bool {
	if kind == KindAny {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

// Kinds returns all registered kinds in registration-independent order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Subsumes reports whether an entry of kind k satisfies a filter on kind
// filter: k equals filter, or filter is one of k's ancestors.
func (r *Registry) Subsumes(filter, k Kind) bool {
	if filter == k || filter == KindAny {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ancestors[k][filter]
	return ok
}

// Descendants returns every registered kind that satisfies filter,
// including filter itself.
func (r *Registry) Descendants(filter Kind) []Kind {
	var out []Kind
	for _, k := range r.Kinds() {
		if r.Subsumes(filter, k) {
			out = append(out, k)
		}
	}
	return out
}

// NewRecord resolves state's capabilities and encodes its payload.
func (r *Registry) NewRecord(state ContractState) (Record, error) {
	v, err := ValueOf(state)
	if err != nil {
		return Record{}, fmt.Errorf("new record %s: %w", state.Kind(), err)
	}
	payload, err := MarshalCanonical(v)
	if err != nil {
		return Record{}, fmt.Errorf("new record %s: %w", state.Kind(), err)
	}
	return r.buildRecord(state, payload)
}

// Decode rebuilds a record from a stored kind tag and payload.
func (r *Registry) Decode(kind Kind, payload []byte) (Record, error) {
	spec, err := r.spec(kind)
	if err != nil {
		return Record{}, err
	}
	state, err := spec.Decode(payload)
	if err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	return r.buildRecord(state, slices.Clone(payload))
}

func (r *Registry) buildRecord(state ContractState, payload []byte) (Record, error) {
	spec, err := r.spec(state.Kind())
	if err != nil {
		return Record{}, err
	}

	rec := Record{Kind: spec.Kind, State: state, Payload: payload}
	if spec.Linking != nil {
		if id, ok := spec.Linking(state); ok {
			if !id.HasInternal() {
				return Record{}, &ValidationError{
					Field:   string(spec.Kind) + ".linearId",
					Message: "linking id has no internal component",
				}
			}
			rec.Linking = &id
		}
	}
	if spec.Parties != nil {
		parties := slices.Clone(spec.Parties(state))
		slices.Sort(parties)
		rec.Participants = slices.Compact(parties)
	}
	return rec, nil
}

func (r *Registry) spec(kind Kind) (*KindSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.kinds[kind]
	if !ok {
		return nil, &ValidationError{Field: "kind", Message: fmt.Sprintf("kind %s not registered", kind)}
	}
	return spec, nil
}
