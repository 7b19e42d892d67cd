package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format     string // "json" | "text"
	Backend    string
	LedgerFile string
	Verbose    bool

	open   Opener
	stderr io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds milkbookctl. open defaults to OpenFromEnv.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = OpenFromEnv
	}
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "milkbookctl",
		Short: "Inspect and edit the milk shop ledger",
		Long: `milkbookctl reads and writes day records directly against the
configured backend (DATA_BACKEND and friends, .env is honoured).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.stderr = cmd.ErrOrStderr()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "override DATA_BACKEND (memory|file|sqlite|sheets)")
	cmd.PersistentFlags().StringVar(&opts.LedgerFile, "ledger-file", "", "override LEDGER_FILE for the file backend")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log backend activity to stderr")

	cmd.AddCommand(newViewCommand(opts))
	cmd.AddCommand(newSaveCommand(opts))
	cmd.AddCommand(newPayCommand(opts))
	cmd.AddCommand(newRemoveItemCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newProductsCommand(opts))
	return cmd
}

func (o *RootOptions) logOutput() io.Writer {
	if o.Verbose && o.stderr != nil {
		return o.stderr
	}
	return io.Discard
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
