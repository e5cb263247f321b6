package compiler

import (
	"fmt"
	"sort"

	"github.com/codeaudit/corda/internal/ledger"
)

// NewState builds an ObjectState of kind after checking data against the
// kind's declared fields. Undeclared fields are rejected; declared fields
// may be absent.
func (c *Catalogue) NewState(kind ledger.Kind, data ledger.Object) (ledger.ObjectState, error) {
	def, ok := c.Lookup(kind)
	if !ok {
		return ledger.ObjectState{}, &ledger.ValidationError{Field: "kind", Message: fmt.Sprintf("kind %s not in catalogue", kind)}
	}
	if err := def.Check(data); err != nil {
		return ledger.ObjectState{}, err
	}
	return ledger.ObjectState{KindTag: kind, Data: data}, nil
}

// Check validates data against the declared field types. The first
// violation in field-name order is reported.
func (d KindDef) Check(data ledger.Object) error {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want, ok := d.Fields[name]
		if !ok {
			return &ledger.ValidationError{Field: string(d.Name) + "." + name, Message: "field not declared"}
		}
		if got := typeOf(data[name]); got != want {
			return &ledger.ValidationError{
				Field:   string(d.Name) + "." + name,
				Message: fmt.Sprintf("expected %s, got %s", want, got),
			}
		}
	}
	return nil
}

func typeOf(v ledger.Value) string {
	switch v.(type) {
	case ledger.String:
		return TypeString
	case ledger.Int:
		return TypeInt
	case ledger.Bool:
		return TypeBool
	case ledger.Array:
		return TypeArray
	case ledger.Object:
		return TypeObject
	default:
		return "null"
	}
}
