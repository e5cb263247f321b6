package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/metrics"
	"github.com/codeaudit/corda/internal/vault"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
}

// ReplayResult holds the outcome of restoring the index from the store.
type ReplayResult struct {
	Seq          int64  `json:"seq"`
	Transactions int    `json:"transactions"`
	Unconsumed   int    `json:"unconsumed"`
	Consumed     int    `json:"consumed"`
	Locked       int    `json:"locked"`
	Fingerprint  string `json:"fingerprint"`

	// Deterministic is true when two independent restores produced the
	// same fingerprint.
	Deterministic bool `json:"deterministic"`

	// Consistent is true when the restored index and the SQL backend
	// return the same references for every state.
	Consistent bool `json:"consistent"`

	// Metrics holds the first restore's Prometheus metrics in text
	// exposition format when --metrics is set.
	Metrics string `json:"metrics,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Restore the index from the store and verify it",
		Long: `Restore the in-memory index from the durable store twice and verify that
both restores agree, and that the restored index and the SQL backend
return the same states.

Exit codes:
  0 - Restore is deterministic and consistent
  1 - Verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  vault replay --db ./vault.db
  vault replay --db ./vault.db --kinds ./kinds --format json
  vault replay --db ./vault.db --metrics`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print the vault metrics collected while verifying")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	first, err := restoreOnce(ctx, opts, cmd)
	if err != nil {
		return err
	}
	second, err := restoreOnce(ctx, opts, cmd)
	if err != nil {
		return err
	}
	first.Deterministic = first.Fingerprint == second.Fingerprint && first.Seq == second.Seq
	first.Consistent = first.Consistent && second.Consistent

	if opts.Format == "json" {
		return outputReplayJSON(cmd, first)
	}
	return outputReplayText(cmd, first)
}

// restoreOnce opens the vault, summarizes the restored index and compares
// it with the store.
func restoreOnce(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) (ReplayResult, error) {
	f := opts.formatter(cmd)
	v, err := opts.openVault(ctx, cmd)
	if err != nil {
		return ReplayResult{}, err
	}
	defer closeVault(ctx, v, f)

	snap := v.Snapshot()
	result := ReplayResult{
		Seq:         snap.Seq(),
		Unconsumed:  len(snap.ByStatus(ledger.StatusUnconsumed)),
		Consumed:    len(snap.ByStatus(ledger.StatusConsumed)),
		Locked:      snap.Locked(),
		Fingerprint: snap.Fingerprint(),
	}

	txs, err := v.Store().ReadTransactions(ctx)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to read transactions", err)
	}
	result.Transactions = len(txs)

	result.Consistent, err = consistent(ctx, v)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to compare backends", err)
	}
	if g := v.Gatherer(); g != nil {
		var buf bytes.Buffer
		if err := metrics.WriteText(&buf, g); err != nil {
			return ReplayResult{}, WrapExitError(ExitCommandError, "failed to collect metrics", err)
		}
		result.Metrics = buf.String()
	}
	f.VerboseLog("restored seq %d: %d transactions, fingerprint %s", result.Seq, result.Transactions, result.Fingerprint)
	return result, nil
}

// consistent reports whether both backends return the same refs for every
// state.
func consistent(ctx context.Context, v *vault.Vault) (bool, error) {
	all := criteria.NewVault().Status(ledger.StatusAll).MustBuild()
	entries, err := v.QueryBy(ctx, all)
	if err != nil {
		return false, err
	}
	refs, err := v.QuerySQL(ctx, all)
	if err != nil {
		return false, err
	}
	mem := make([]ledger.StateRef, len(entries))
	for i, e := range entries {
		mem[i] = e.Ref
	}
	return slices.Equal(mem, refs), nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	ok := result.Deterministic && result.Consistent
	if !ok {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY",
			Message: "restore verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !ok {
		return NewExitError(ExitFailure, "restore verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: seq %d, %d transaction(s)\n", result.Seq, result.Transactions)
	fmt.Fprintf(w, "  States: %d unconsumed, %d consumed, %d soft-locked\n", result.Unconsumed, result.Consumed, result.Locked)
	fmt.Fprintf(w, "  Fingerprint: %s\n", result.Fingerprint)
	fmt.Fprintln(w)
	if result.Metrics != "" {
		fmt.Fprint(w, result.Metrics)
		fmt.Fprintln(w)
	}

	if !result.Deterministic {
		fmt.Fprintln(w, "✗ Restores disagree")
	}
	if !result.Consistent {
		fmt.Fprintln(w, "✗ Index and store disagree")
	}
	if result.Deterministic && result.Consistent {
		fmt.Fprintln(w, "✓ Restore verified")
		return nil
	}
	return NewExitError(ExitFailure, "restore verification failed")
}
