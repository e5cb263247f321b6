package criteria

import (
	"fmt"
	"strings"

	"github.com/codeaudit/corda/internal/ledger"
)

// Encode returns the canonical tree form of c. Two criteria with the same
// logical fields encode identically.
func Encode(c Criteria) (ledger.Value, error) {
	switch n := c.(type) {
	case Vault:
		kinds := make([]string, len(n.kinds))
		for i, k := range n.kinds {
			kinds[i] = string(k)
		}
		return ledger.Object{
			"type":       ledger.String("vault"),
			"status":     ledger.String(n.Status()),
			"kinds":      stringArray(kinds),
			"softLocked": ledger.String(n.SoftLocked()),
		}, nil
	case Linking:
		ids := make(ledger.Array, len(n.linearIDs))
		for i, id := range n.linearIDs {
			ids[i] = ledger.Object{
				"external": ledger.String(id.External),
				"id":       ledger.String(id.ID.String()),
			}
		}
		parties := make([]string, len(n.parties))
		for i, p := range n.parties {
			parties[i] = string(p)
		}
		return ledger.Object{
			"type":        ledger.String("linking"),
			"linearIds":   ids,
			"externalIds": stringArray(n.externalIDs),
			"parties":     stringArray(parties),
			"exactMatch":  ledger.Bool(n.exactMatch),
		}, nil
	case Composite:
		left, err := Encode(n.left)
		if err != nil {
			return nil, err
		}
		right, err := Encode(n.right)
		if err != nil {
			return nil, err
		}
		return ledger.Object{
			"type":  ledger.String("composite"),
			"op":    ledger.String(n.op),
			"left":  left,
			"right": right,
		}, nil
	default:
		return nil, fmt.Errorf("encode criteria: unknown type %T", c)
	}
}

// Fingerprint returns a content hash of c's canonical form.
func Fingerprint(c Criteria) (string, error) {
	v, err := Encode(c)
	if err != nil {
		return "", err
	}
	data, err := ledger.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return ledger.HashWithDomain(ledger.DomainCriteria, data), nil
}

// Describe renders c as a single line for logs and CLI output.
func Describe(c Criteria) string {
	var b strings.Builder
	describe(&b, c)
	return b.String()
}

func describe(b *strings.Builder, c Criteria) {
	switch n := c.(type) {
	case Vault:
		fmt.Fprintf(b, "vault(status=%s", n.Status())
		if len(n.kinds) > 0 {
			fmt.Fprintf(b, " kinds=%v", n.kinds)
		}
		if n.SoftLocked() != SoftLockInclude {
			fmt.Fprintf(b, " softLocked=%s", n.SoftLocked())
		}
		b.WriteString(")")
	case Linking:
		b.WriteString("linking(")
		var parts []string
		if len(n.linearIDs) > 0 {
			ids := make([]string, len(n.linearIDs))
			for i, id := range n.linearIDs {
				ids[i] = id.String()
			}
			parts = append(parts, fmt.Sprintf("linearIds=%v", ids))
		}
		if len(n.externalIDs) > 0 {
			parts = append(parts, fmt.Sprintf("externalIds=%v", n.externalIDs))
		}
		if len(n.parties) > 0 {
			parts = append(parts, fmt.Sprintf("parties=%v", n.parties))
		}
		if n.exactMatch {
			parts = append(parts, "exact")
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString(")")
	case Composite:
		b.WriteString("(")
		describe(b, n.left)
		fmt.Fprintf(b, " %s ", n.op)
		describe(b, n.right)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "<%T>", c)
	}
}

func stringArray(ss []string) ledger.Array {
	arr := make(ledger.Array, len(ss))
	for i, s := range ss {
		arr[i] = ledger.String(s)
	}
	return arr
}
