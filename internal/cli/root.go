package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/codeaudit/corda/internal/compiler"
	"github.com/codeaudit/corda/internal/contracts"
	"github.com/codeaudit/corda/internal/vault"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // overrides the config file's database
	Config   string // optional YAML config file
	Kinds    string // optional CUE kind catalogue directory
	Metrics  bool   // set by commands that report vault metrics
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vault CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Query and maintain a ledger vault",
		Long: `A node-local vault of ledger states: record transactions, query states by
kind, status, linking identifier and participant, and replay the durable
store into the in-memory index.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Kinds, "kinds", "", "directory of CUE kind catalogues to register")

	cmd.AddCommand(NewFillCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewKindsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// config resolves the vault configuration from --config and --db.
func (o *RootOptions) config() (vault.Config, error) {
	cfg := vault.DefaultConfig()
	if o.Config != "" {
		var err error
		if cfg, err = vault.LoadConfig(o.Config); err != nil {
			return vault.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Metrics {
		cfg.Metrics = true
	}
	if cfg.Database == "" {
		return vault.Config{}, NewExitError(ExitCommandError, "a database is required: pass --db or set database in --config")
	}
	return cfg, nil
}

// logger builds the diagnostic logger. --verbose selects Debug over the
// configured level.
func (o *RootOptions) logger(w io.Writer, cfg vault.Config) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openVault opens the configured vault, registering --kinds first so stored
// catalogue states decode on restore. Callers close the vault.
func (o *RootOptions) openVault(ctx context.Context, cmd *cobra.Command) (*vault.Vault, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}

	registry := contracts.NewRegistry()
	if o.Kinds != "" {
		cat, err := compiler.LoadDir(o.Kinds)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load kinds", err)
		}
		if err := cat.Register(registry); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to register kinds", err)
		}
	}

	logger := o.logger(cmd.ErrOrStderr(), cfg)
	v, err := vault.Open(ctx, cfg, vault.WithRegistry(registry), vault.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open vault", err)
	}
	return v, nil
}

// closeVault closes v, logging rather than returning the error.
func closeVault(ctx context.Context, v *vault.Vault, f *OutputFormatter) {
	if err := v.Close(ctx); err != nil {
		f.VerboseLog("error closing vault: %v", err)
	}
}
