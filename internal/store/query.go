package store

import (
	"context"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/querysql"
)

// QueryStates evaluates criteria directly against the durable tables and
// returns matching refs in insertion order. It agrees with the in-memory
// executor for every criteria value.
func (s *Store) QueryStates(ctx context.Context, compiler *querysql.SQLCompiler, c criteria.Criteria) ([]ledger.StateRef, error) {
	query, params, err := compiler.Compile(c)
	if err != nil {
		return nil, err
	}
	return s.QueryRefs(ctx, query, params)
}
