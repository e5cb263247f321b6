package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ObjectState is an untyped contract state: a kind tag plus a JSON object.
// Kinds declared in a catalogue rather than in Go use it as their state.
type ObjectState struct {
	KindTag Kind
	Data    Object
}

// Kind implements ContractState.
func (s ObjectState) Kind() Kind {
	return s.KindTag
}

// MarshalJSON encodes only the data object.
func (s ObjectState) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(s.Data)
}

// ObjectKind describes a kind whose states are ObjectStates.
// Paths are dotted and resolved with Object.Lookup.
type ObjectKind struct {
	Kind   Kind
	Supers []Kind

	// LinkingPath names an object of the form {"id": uuid, "external_id": s}.
	LinkingPath string

	// PartiesPath names an array of party names.
	PartiesPath string
}

// Spec builds the KindSpec for an object kind.
func (k ObjectKind) Spec() KindSpec {
	spec := KindSpec{
		Kind:   k.Kind,
		Supers: k.Supers,
		Decode: func(payload []byte) (ContractState, error) {
			var obj Object
			if err := json.Unmarshal(payload, &obj); err != nil {
				return nil, err
			}
			return ObjectState{KindTag: k.Kind, Data: obj}, nil
		},
	}
	if k.LinkingPath != "" {
		path := k.LinkingPath
		spec.Linking = func(s ContractState) (LinkingID, bool) {
			os, ok := s.(ObjectState)
			if !ok {
				return LinkingID{}, false
			}
			id, err := linkingAt(os.Data, path)
			return id, err == nil
		}
	}
	if k.PartiesPath != "" {
		path := k.PartiesPath
		spec.Parties = func(s ContractState) []Party {
			os, ok := s.(ObjectState)
			if !ok {
				return nil
			}
			v, ok := os.Data.Lookup(path)
			if !ok {
				return nil
			}
			arr, ok := v.(Array)
			if !ok {
				return nil
			}
			parties := make([]Party, 0, len(arr))
			for _, e := range arr {
				if name, ok := e.(String); ok {
					parties = append(parties, Party(name))
				}
			}
			return parties
		}
	}
	return spec
}

func linkingAt(obj Object, path string) (LinkingID, error) {
	v, ok := obj.Lookup(path)
	if !ok {
		return LinkingID{}, fmt.Errorf("linking id: %s missing", path)
	}
	o, ok := v.(Object)
	if !ok {
		return LinkingID{}, fmt.Errorf("linking id: %s is not an object", path)
	}
	raw, _ := o["id"].(String)
	id, err := uuid.Parse(string(raw))
	if err != nil {
		return LinkingID{}, fmt.Errorf("linking id: %w", err)
	}
	ext, _ := o["external_id"].(String)
	return LinkingID{External: string(ext), ID: id}, nil
}
