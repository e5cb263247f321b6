package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/ledger"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions

	// vault criteria
	Status     string
	Kinds      []string
	SoftLocked string

	// linking criteria
	LinearIDs   []string
	ExternalIDs []string
	Parties     []string
	ExactMatch  bool

	// SpecFile is a YAML criteria spec; it replaces the criteria flags.
	SpecFile string

	SQL     bool // run on the durable store instead of the index
	Explain bool // print the plan and stop
}

// QueryState is one query result.
type QueryState struct {
	Ref     string `json:"ref"`
	Kind    string `json:"kind,omitempty"`
	Status  string `json:"status,omitempty"`
	LockID  string `json:"lock_id,omitempty"`
	Linking string `json:"linking,omitempty"`
}

// QueryResult holds the query output.
type QueryResult struct {
	Backend string       `json:"backend"`
	Seq     int64        `json:"seq"`
	Plan    string       `json:"plan,omitempty"`
	Count   int          `json:"count"`
	States  []QueryState `json:"states"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query vault states by criteria",
		Long: `Query vault states by status, kind, soft-lock policy, linking identifier
and participant. Vault flags and linking flags combine with AND.

Results are in insertion order. With --sql the same criteria run against
the durable store and only references are printed.

Examples:
  vault query --db ./vault.db --kind Cash
  vault query --db ./vault.db --status ALL --kind Linear --external-id 123
  vault query --db ./vault.db --party Alice --soft-locked EXCLUDE --sql
  vault query --db ./vault.db --spec criteria.yaml --explain`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "UNCONSUMED (default), CONSUMED or ALL")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "kind filter; subkinds match (repeatable)")
	cmd.Flags().StringVar(&opts.SoftLocked, "soft-locked", "", "INCLUDE (default), EXCLUDE or ONLY")
	cmd.Flags().StringSliceVar(&opts.LinearIDs, "linear-id", nil, "linear id as external_uuid or uuid (repeatable)")
	cmd.Flags().StringSliceVar(&opts.ExternalIDs, "external-id", nil, "external linking id (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Parties, "party", nil, "participant (repeatable)")
	cmd.Flags().BoolVar(&opts.ExactMatch, "exact", false, "match linear ids on both components")
	cmd.Flags().StringVar(&opts.SpecFile, "spec", "", "YAML criteria file")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "query the durable store")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "print the query plan only")

	return cmd
}

// spec builds the criteria spec from --spec or the criteria flags.
func (o *QueryOptions) spec() (criteria.Spec, error) {
	if o.SpecFile != "" {
		data, err := os.ReadFile(o.SpecFile)
		if err != nil {
			return criteria.Spec{}, WrapExitError(ExitCommandError, "failed to read spec file", err)
		}
		var s criteria.Spec
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&s); err != nil {
			return criteria.Spec{}, WrapExitError(ExitCommandError, "failed to parse spec file", err)
		}
		return s, nil
	}

	vs := &criteria.VaultSpec{
		Status:     ledger.Status(strings.ToUpper(o.Status)),
		SoftLocked: criteria.SoftLockPolicy(strings.ToUpper(o.SoftLocked)),
	}
	for _, k := range o.Kinds {
		vs.Kinds = append(vs.Kinds, ledger.Kind(k))
	}
	vault := criteria.Spec{Vault: vs}

	if len(o.LinearIDs) == 0 && len(o.ExternalIDs) == 0 && len(o.Parties) == 0 && !o.ExactMatch {
		return vault, nil
	}
	linking := criteria.Spec{Linking: &criteria.LinkingSpec{
		LinearIDs:   o.LinearIDs,
		ExternalIDs: o.ExternalIDs,
		Parties:     parties(o.Parties),
		ExactMatch:  o.ExactMatch,
	}}
	return criteria.Spec{And: []criteria.Spec{vault, linking}}, nil
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	s, err := opts.spec()
	if err != nil {
		return err
	}
	c, err := s.Build(nil)
	if err != nil {
		return f.Fail("invalid criteria", err)
	}

	v, err := opts.openVault(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeVault(ctx, v, f)

	plan, err := v.Explain(c)
	if err != nil {
		return f.Fail("invalid criteria", err)
	}
	f.VerboseLog("plan: %s", plan)

	result := QueryResult{Backend: "memory", Seq: v.Snapshot().Seq(), Plan: plan, States: []QueryState{}}
	if opts.Explain {
		return f.Success(result, plan+"\n")
	}

	if opts.SQL {
		result.Backend = "sql"
		refs, err := v.QuerySQL(ctx, c)
		if err != nil {
			return f.Fail("query failed", err)
		}
		for _, ref := range refs {
			result.States = append(result.States, QueryState{Ref: ref.String()})
		}
	} else {
		entries, err := v.QueryBy(ctx, c)
		if err != nil {
			return f.Fail("query failed", err)
		}
		for _, e := range entries {
			qs := QueryState{
				Ref:    e.Ref.String(),
				Kind:   string(e.Record.Kind),
				Status: string(e.Status),
				LockID: e.LockID,
			}
			if e.Record.Linking != nil {
				qs.Linking = e.Record.Linking.String()
			}
			result.States = append(result.States, qs)
		}
	}
	result.Count = len(result.States)

	var text strings.Builder
	for _, s := range result.States {
		fmt.Fprintf(&text, "%s", s.Ref)
		if s.Kind != "" {
			fmt.Fprintf(&text, " %s %s", s.Kind, s.Status)
		}
		if s.Linking != "" {
			fmt.Fprintf(&text, " linking=%s", s.Linking)
		}
		if s.LockID != "" {
			fmt.Fprintf(&text, " locked=%s", s.LockID)
		}
		text.WriteByte('\n')
	}
	fmt.Fprintf(&text, "%d state(s) at seq %d (%s)\n", result.Count, result.Seq, result.Backend)
	return f.Success(result, text.String())
}
