package cli

import (
	"github.com/spf13/cobra"

	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/lineage"
)

type lineageRow struct {
	Depth           int    `json:"depth"`
	ChildPath       string `json:"child_path"`
	ChildVersionID  string `json:"child_version_id"`
	ParentPath      string `json:"parent_path"`
	ParentVersionID string `json:"parent_version_id"`
}

func toLineageRows(rows []lineage.Row) []lineageRow {
	out := make([]lineageRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, lineageRow{
			Depth:           r.Depth,
			ChildPath:       r.ChildPath,
			ChildVersionID:  r.ChildVersionID,
			ParentPath:      r.ParentPath,
			ParentVersionID: r.ParentVersionID,
		})
	}
	return out
}

func renderLineage(f *OutputFormatter, rows []lineage.Row, cycle error) error {
	if f.Format == "json" {
		if err := f.JSON(toLineageRows(rows)); err != nil {
			return err
		}
	} else {
		for _, r := range rows {
			f.Textf("[%d] %s@%s -> %s@%s", r.Depth,
				r.ChildPath, r.ChildVersionID, r.ParentPath, r.ParentVersionID)
		}
	}
	if cycle != nil {
		f.Textf("warning: %v", cycle)
		return WrapExitError(ExitFailure, "cycle detected in lineage", cycle)
	}
	return nil
}

// NewLineageCommand walks upward through recorded parents.
func NewLineageCommand(opts *RootOptions) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "lineage <path>",
		Short: "Show the upstream ancestry of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			s, err := opts.OpenStore()
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			rows, err := s.LineageOf(args[0], cliDepth(depth))
			if err != nil && !fault.IsCycleDetected(err) {
				return f.Fail(err)
			}
			return renderLineage(f, rows, err)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "traversal depth (0 = unbounded)")
	return cmd
}

// NewChildrenCommand walks downward through recorded dependents.
func NewChildrenCommand(opts *RootOptions) *cobra.Command {
	var depth int
	var version string

	cmd := &cobra.Command{
		Use:   "children <path>",
		Short: "Show the downstream dependents of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			s, err := opts.OpenStore()
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			rows, err := s.ChildrenOf(args[0], version, cliDepth(depth))
			if err != nil && !fault.IsCycleDetected(err) {
				return f.Fail(err)
			}
			return renderLineage(f, rows, err)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "traversal depth (0 = unbounded)")
	cmd.Flags().StringVar(&version, "version", "", "restrict to children pinned to this exact parent version")
	return cmd
}

// cliDepth maps the flag convention (0 = unbounded) onto the core's
// explicit sentinel.
func cliDepth(depth int) int {
	if depth == 0 {
		return lineage.Unbounded
	}
	return depth
}
