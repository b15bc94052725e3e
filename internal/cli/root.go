// Package cli is the thin presentation layer over the store session. It
// resolves configuration, opens a session, and renders subsystem results;
// all invariants live below it.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/strataform/strata/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Root    string // tracked root directory
	Config  string // optional strata.cue path
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the strata CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "strata",
		Short: "strata - content-addressed artifact store",
		Long:  "A reproducible, content-addressed artifact store with provenance tracking, staleness detection, and dependency-ordered rebuilds.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", ".", "tracked root directory")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (defaults to <root>/strata.cue when present)")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewLineageCommand(opts))
	cmd.AddCommand(NewChildrenCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))

	return cmd
}

// Formatter builds the output formatter for a command invocation.
func (o *RootOptions) Formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), Verbose: o.Verbose}
}

// StoreConfig resolves the session configuration: defaults for the root
// flag, overridden by the CUE config file when one is present.
func (o *RootOptions) StoreConfig() (store.Config, error) {
	root, err := filepath.Abs(o.Root)
	if err != nil {
		return store.Config{}, err
	}
	cfg := store.DefaultConfig(root)

	path := o.Config
	if path == "" {
		candidate := filepath.Join(root, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		cfg, err = LoadConfig(path, cfg)
		if err != nil {
			return store.Config{}, err
		}
	}
	return cfg, nil
}

// OpenStore opens a session with the resolved configuration and the
// lineage cache attached.
func (o *RootOptions) OpenStore() (*store.Store, error) {
	cfg, err := o.StoreConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg, store.WithLineageCache())
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
