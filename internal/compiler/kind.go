// Package compiler compiles declarative kind catalogues written in CUE into
// kind definitions the ledger registry understands.
//
// A catalogue declares kinds under the top-level "kind" struct:
//
//	kind: Bond: {
//		supers:  ["Linear"]
//		linking: "linear_id"
//		parties: "holders"
//		fields: {
//			isin:      string
//			linear_id: {id: string, external_id?: string}
//			holders:   [...string]
//			coupon:    int
//		}
//	}
//
// Kinds declared this way store their states as ledger.ObjectState.
package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/codeaudit/corda/internal/ledger"
)

// Field types a kind may declare.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeArray  = "array"
	TypeObject = "object"
)

// KindDef is one compiled catalogue kind.
type KindDef struct {
	Name    ledger.Kind
	Supers  []ledger.Kind
	Linking string            // field holding the linking id, optional
	Parties string            // field holding participant names, optional
	Fields  map[string]string // field name -> type
	Pos     token.Pos
}

// ObjectKind returns the registry description of the kind.
func (d KindDef) ObjectKind() ledger.ObjectKind {
	return ledger.ObjectKind{
		Kind:        d.Name,
		Supers:      slices.Clone(d.Supers),
		LinkingPath: d.Linking,
		PartiesPath: d.Parties,
	}
}

// CompileKind parses a CUE value into a KindDef. The kind name is the
// value's last path selector.
func CompileKind(v cue.Value) (*KindDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &KindDef{Fields: make(map[string]string), Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = ledger.Kind(labels[len(labels)-1].String())
	}
	if def.Name == "" || def.Name == ledger.KindAny {
		return nil, &CompileError{Field: "kind", Message: fmt.Sprintf("invalid kind name %q", def.Name), Pos: v.Pos()}
	}

	if sv := v.LookupPath(cue.ParsePath("supers")); sv.Exists() {
		iter, err := sv.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			def.Supers = append(def.Supers, ledger.Kind(s))
		}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		iter, err := fieldsVal.Fields(cue.Optional(true))
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			typ, err := extractTypeName(iter.Value())
			if err != nil {
				return nil, err
			}
			def.Fields[iter.Label()] = typ
		}
	}

	var err error
	if def.Linking, err = optionalString(v, "linking"); err != nil {
		return nil, err
	}
	if def.Parties, err = optionalString(v, "parties"); err != nil {
		return nil, err
	}
	if err := checkCapability(def, "linking", def.Linking, TypeObject); err != nil {
		return nil, err
	}
	if err := checkCapability(def, "parties", def.Parties, TypeArray); err != nil {
		return nil, err
	}
	return def, nil
}

// checkCapability requires a capability path to name a declared field of
// the given type.
func checkCapability(def *KindDef, field, path, want string) error {
	if path == "" {
		return nil
	}
	got, ok := def.Fields[path]
	if !ok {
		return &CompileError{Field: field, Message: fmt.Sprintf("field %q is not declared", path), Pos: def.Pos}
	}
	if got != want {
		return &CompileError{Field: field, Message: fmt.Sprintf("field %q must be %s, got %s", path, want, got), Pos: def.Pos}
	}
	return nil
}

func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// extractTypeName converts a CUE type to a field type.
// Floats are forbidden: payloads are canonical JSON, which has no floats.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return TypeString, nil
	case cue.IntKind:
		return TypeInt, nil
	case cue.BoolKind:
		return TypeBool, nil
	case cue.ListKind:
		return TypeArray, nil
	case cue.StructKind:
		return TypeObject, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int minor units instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
