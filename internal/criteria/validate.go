package criteria

import (
	"fmt"

	"github.com/codeaudit/corda/internal/ledger"
)

// Validate checks that c can be evaluated and can match at least in
// principle. It returns a *ledger.ValidationError naming the first
// offending field, or nil.
//
// Rules:
//  1. No nil criteria, no nil Composite operands
//  2. Status is UNCONSUMED, CONSUMED or ALL
//  3. Soft-lock policy is INCLUDE, EXCLUDE or ONLY
//  4. An exact Linking filter names at least one linear id, and every
//     linear id it names has an internal component
//  5. A non-exact linear id has an internal or an external component
//
// Validate is a pure function with no side effects.
func Validate(c Criteria) error {
	return validate(c, "criteria")
}

func validate(c Criteria, path string) error {
	switch n := c.(type) {
	case nil:
		return invalid(path, "criteria is nil")
	case Vault:
		switch n.Status() {
		case ledger.StatusUnconsumed, ledger.StatusConsumed, ledger.StatusAll:
		default:
			return invalid(path+".status", fmt.Sprintf("unknown status %q", n.status))
		}
		switch n.SoftLocked() {
		case SoftLockInclude, SoftLockExclude, SoftLockOnly:
		default:
			return invalid(path+".softLocked", fmt.Sprintf("unknown soft-lock policy %q", n.softLocked))
		}
		for _, k := range n.kinds {
			if k == "" {
				return invalid(path+".kinds", "empty kind tag")
			}
		}
		return nil
	case Linking:
		if n.exactMatch {
			if len(n.linearIDs) == 0 {
				return invalid(path+".linearIds", "exact match requires at least one linear id")
			}
			for _, id := range n.linearIDs {
				if !id.HasInternal() {
					return invalid(path+".linearIds", fmt.Sprintf("exact match on %q without internal id can never match", id.External))
				}
			}
			return nil
		}
		for _, id := range n.linearIDs {
			if !id.HasInternal() && id.External == "" {
				return invalid(path+".linearIds", "linear id has neither an internal nor an external component")
			}
		}
		return nil
	case Composite:
		if n.op != OpAnd && n.op != OpOr {
			return invalid(path+".operator", fmt.Sprintf("unknown operator %q", n.op))
		}
		if err := validate(n.left, path+".left"); err != nil {
			return err
		}
		return validate(n.right, path+".right")
	default:
		return invalid(path, fmt.Sprintf("unknown criteria type %T", c))
	}
}

func invalid(field, msg string) error {
	return &ledger.ValidationError{Field: field, Message: msg}
}
