package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/testutil"
	"github.com/codeaudit/corda/internal/vault"
)

// FillOptions holds flags shared by the fill subcommands.
type FillOptions struct {
	*RootOptions
	Seed    string
	Parties []string

	// cash
	Total    int64
	Currency string
	Count    int
	Issuer   string
	Owner    string

	// deals
	Refs []string

	// linear
	ExternalID string
}

// FillResult is the recorded transaction.
type FillResult struct {
	TxID    string   `json:"tx_id"`
	Seq     int64    `json:"seq"`
	Outputs []string `json:"outputs"`
}

// NewFillCommand creates the fill command and its subcommands.
func NewFillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Record test states in the vault",
		Long: `Record one issuance transaction of generated test states.

Examples:
  vault fill cash --db ./vault.db --total 10000 --currency USD --count 4 --owner Alice
  vault fill deals --db ./vault.db --ref 123 --ref 456 --party Alice
  vault fill linear --db ./vault.db --count 3 --external-id ext --party Alice`,
	}
	cmd.PersistentFlags().StringVar(&opts.Seed, "seed", "", "seed for transaction salts and linking ids (default random)")
	cmd.PersistentFlags().StringSliceVar(&opts.Parties, "party", nil, "participant (repeatable)")

	cash := &cobra.Command{
		Use:           "cash",
		Short:         "Issue cash split across several outputs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(cmd, opts, func(ctx context.Context, f *testutil.Filler) (ledger.Transaction, error) {
				return f.FillWithSomeTestCash(ctx, opts.Total, opts.Currency, opts.Count,
					ledger.Party(opts.Issuer), ledger.Party(opts.Owner))
			})
		},
	}
	cash.Flags().Int64Var(&opts.Total, "total", 10000, "total amount in minor units")
	cash.Flags().StringVar(&opts.Currency, "currency", "USD", "currency code")
	cash.Flags().IntVar(&opts.Count, "count", 1, "number of outputs")
	cash.Flags().StringVar(&opts.Issuer, "issuer", "Bank", "issuing party")
	cash.Flags().StringVar(&opts.Owner, "owner", "", "owning party (required)")
	_ = cash.MarkFlagRequired("owner")

	deals := &cobra.Command{
		Use:           "deals",
		Short:         "Issue one deal per reference",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(cmd, opts, func(ctx context.Context, f *testutil.Filler) (ledger.Transaction, error) {
				return f.FillWithSomeTestDeals(ctx, opts.Refs, parties(opts.Parties)...)
			})
		},
	}
	deals.Flags().StringSliceVar(&opts.Refs, "ref", nil, "deal reference (repeatable, required)")
	_ = deals.MarkFlagRequired("ref")

	linear := &cobra.Command{
		Use:           "linear",
		Short:         "Issue linear states sharing an external id",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(cmd, opts, func(ctx context.Context, f *testutil.Filler) (ledger.Transaction, error) {
				return f.FillWithSomeTestLinearStates(ctx, opts.Count, opts.ExternalID, parties(opts.Parties)...)
			})
		},
	}
	linear.Flags().IntVar(&opts.Count, "count", 1, "number of states")
	linear.Flags().StringVar(&opts.ExternalID, "external-id", "", "external component of each linking id")

	cmd.AddCommand(cash, deals, linear)
	return cmd
}

func runFill(cmd *cobra.Command, opts *FillOptions, fill func(context.Context, *testutil.Filler) (ledger.Transaction, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	v, err := opts.openVault(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeVault(ctx, v, f)

	tx, err := fill(ctx, newFiller(v, opts.Seed))
	if err != nil {
		return f.Fail("fill failed", err)
	}

	result := FillResult{TxID: tx.ID, Seq: v.Snapshot().Seq(), Outputs: make([]string, len(tx.Outputs))}
	var text strings.Builder
	fmt.Fprintf(&text, "Recorded %s at seq %d\n", tx.ID, result.Seq)
	for i := range tx.Outputs {
		ref := tx.OutputRef(i)
		result.Outputs[i] = ref.String()
		fmt.Fprintf(&text, "  %s %s\n", ref, tx.Outputs[i].Kind)
	}
	return f.Success(result, text.String())
}

// newFiller seeds a filler. Seeds are scoped by the current seq so
// repeated fills with one seed against a growing vault stay distinct.
func newFiller(v *vault.Vault, seed string) *testutil.Filler {
	var fopts []testutil.FillerOption
	if seed != "" {
		fopts = append(fopts, testutil.WithSeed(fmt.Sprintf("%s@%d", seed, v.Snapshot().Seq())))
	}
	return testutil.NewFiller(v.Registry(), v, fopts...)
}

func parties(names []string) []ledger.Party {
	out := make([]ledger.Party, len(names))
	for i, n := range names {
		out[i] = ledger.Party(n)
	}
	return out
}
