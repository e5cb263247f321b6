package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeaudit/corda/internal/compiler"
	"github.com/codeaudit/corda/internal/contracts"
)

// KindsOptions holds flags for the kinds commands.
type KindsOptions struct {
	*RootOptions
}

// KindInfo describes one compiled kind.
type KindInfo struct {
	Name    string            `json:"name"`
	Supers  []string          `json:"supers,omitempty"`
	Linking string            `json:"linking,omitempty"`
	Parties string            `json:"parties,omitempty"`
	Fields  map[string]string `json:"fields"`
}

// KindsResult holds the compiled catalogue.
type KindsResult struct {
	Kinds []KindInfo `json:"kinds"`
}

// NewKindsCommand creates the kinds command.
func NewKindsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KindsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "Work with CUE kind catalogues",
	}

	compile := &cobra.Command{
		Use:   "compile <dir>",
		Short: "Compile a kind catalogue and check it registers",
		Long: `Compile the CUE kind catalogue in a directory and register it alongside the
built-in kinds (Cash, Linear, Deal), reporting the first error.

Exit codes:
  0 - Catalogue compiled and registered
  1 - Catalogue invalid
  2 - Command error (directory not found, etc.)

Example:
  vault kinds compile ./kinds --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKindsCompile(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(compile)
	return cmd
}

func runKindsCompile(opts *KindsOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if _, err := os.Stat(dir); err != nil {
		return WrapExitError(ExitCommandError, "kinds directory not found", err)
	}

	cat, err := compiler.LoadDir(dir)
	if err == nil {
		err = cat.Register(contracts.NewRegistry())
	}
	if err != nil {
		details := map[string]any{}
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			details["field"] = ce.Field
			if ce.Pos.IsValid() {
				details["file"] = ce.Pos.Filename()
				details["line"] = ce.Pos.Line()
			}
		}
		if opts.Format == "json" {
			if werr := f.Error("E_COMPILE", err.Error(), details); werr != nil {
				return werr
			}
		}
		return WrapExitError(ExitFailure, "catalogue invalid", err)
	}

	result := KindsResult{Kinds: make([]KindInfo, len(cat.Kinds))}
	var text strings.Builder
	for i, d := range cat.Kinds {
		info := KindInfo{
			Name:    string(d.Name),
			Linking: d.Linking,
			Parties: d.Parties,
			Fields:  d.Fields,
		}
		for _, s := range d.Supers {
			info.Supers = append(info.Supers, string(s))
		}
		result.Kinds[i] = info

		fmt.Fprintf(&text, "%s", info.Name)
		if len(info.Supers) > 0 {
			fmt.Fprintf(&text, " : %s", strings.Join(info.Supers, ", "))
		}
		text.WriteByte('\n')
		names := make([]string, 0, len(d.Fields))
		for name := range d.Fields {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(&text, "  %s %s\n", name, d.Fields[name])
		}
	}
	fmt.Fprintf(&text, "✓ %d kind(s) compiled\n", len(cat.Kinds))
	return f.Success(result, text.String())
}
