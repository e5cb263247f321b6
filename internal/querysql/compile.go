// Package querysql compiles vault criteria to parameterized SQL over the
// durable vault_states table.
package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/ledger"
)

// KindResolver expands a kind filter entry to the concrete kinds it
// matches (the kind itself and its descendants).
type KindResolver func(ledger.Kind) ([]ledger.Kind, error)

// SQLCompiler compiles criteria to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries ORDER BY insertion position so SQL results line up
// with the in-memory executor.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct {
	// Resolve expands kind filters. Nil means kinds match exactly.
	Resolve KindResolver
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler(resolve KindResolver) *SQLCompiler {
	return &SQLCompiler{Resolve: resolve}
}

// Compile converts criteria to a SELECT over vault_states returning
// (tx_id, output_index) in insertion order.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(crit criteria.Criteria) (string, []any, error) {
	if err := criteria.Validate(crit); err != nil {
		return "", nil, err
	}
	where, params, err := c.compileCriteria(crit)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT s.tx_id, s.output_index FROM vault_states s WHERE " + where +
		" ORDER BY s.pos ASC"
	return sql, params, nil
}

func (c *SQLCompiler) compileCriteria(crit criteria.Criteria) (string, []any, error) {
	switch n := crit.(type) {
	case criteria.Vault:
		return c.compileVault(n)
	case criteria.Linking:
		return c.compileLinking(n)
	case criteria.Composite:
		left, lp, err := c.compileCriteria(n.Left())
		if err != nil {
			return "", nil, fmt.Errorf("compile left: %w", err)
		}
		right, rp, err := c.compileCriteria(n.Right())
		if err != nil {
			return "", nil, fmt.Errorf("compile right: %w", err)
		}
		sql := fmt.Sprintf("(%s) %s (%s)", left, n.Operator(), right)
		return sql, append(lp, rp...), nil
	default:
		return "", nil, fmt.Errorf("unsupported criteria type: %T", crit)
	}
}

// compileVault compiles status, kind and soft-lock filters.
func (c *SQLCompiler) compileVault(v criteria.Vault) (string, []any, error) {
	parts := []string{}
	var params []any

	if st := v.Status(); st != ledger.StatusAll {
		parts = append(parts, "s.status = ?")
		params = append(params, string(st))
	}

	kinds, err := c.resolveKinds(v.Kinds())
	if err != nil {
		return "", nil, err
	}
	if kinds != nil {
		sql, p := in("s.kind", kinds)
		parts = append(parts, sql)
		params = append(params, p...)
	}

	switch v.SoftLocked() {
	case criteria.SoftLockExclude:
		parts = append(parts, "s.lock_id = ''")
	case criteria.SoftLockOnly:
		parts = append(parts, "s.lock_id <> ''")
	}

	if len(parts) == 0 {
		return "1 = 1", nil, nil // Always true
	}
	return strings.Join(parts, " AND "), params, nil
}

// compileLinking compiles identity selectors and the participant filter.
func (c *SQLCompiler) compileLinking(l criteria.Linking) (string, []any, error) {
	parts := []string{"s.linear_id IS NOT NULL"}
	var params []any

	var named []string
	for _, id := range l.LinearIDs() {
		switch {
		case l.ExactMatch():
			named = append(named, "(s.linear_id = ? AND s.external_id = ?)")
			params = append(params, id.Key(), id.External)
		case id.External != "":
			named = append(named, "s.external_id = ?")
			params = append(params, id.External)
		default:
			named = append(named, "s.linear_id = ?")
			params = append(params, id.Key())
		}
	}
	if ext := l.ExternalIDs(); len(ext) > 0 {
		sql, p := in("s.external_id", ext)
		named = append(named, "(s.external_id <> '' AND "+sql+")")
		params = append(params, p...)
	}
	if len(named) > 0 {
		parts = append(parts, "("+strings.Join(named, " OR ")+")")
	}

	if parties := l.Parties(); len(parties) > 0 {
		sql, p := in("p.party", parties)
		parts = append(parts,
			"EXISTS (SELECT 1 FROM state_parties p WHERE p.pos = s.pos AND "+sql+")")
		params = append(params, p...)
	}

	return strings.Join(parts, " AND "), params, nil
}

// resolveKinds returns the sorted concrete kinds, or nil for every kind.
func (c *SQLCompiler) resolveKinds(kinds []ledger.Kind) ([]ledger.Kind, error) {
	if len(kinds) == 0 || slices.Contains(kinds, ledger.KindAny) {
		return nil, nil
	}
	if c.Resolve == nil {
		return kinds, nil
	}
	var out []ledger.Kind
	for _, k := range kinds {
		expanded, err := c.Resolve(k)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// in renders "col IN (?, ?, ...)" for a non-empty value list.
func in[T ~string](col string, values []T) (string, []any) {
	placeholders := make([]string, len(values))
	params := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		params[i] = string(v)
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), params
}
