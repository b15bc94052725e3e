package cli

import (
	"github.com/spf13/cobra"

	"github.com/strataform/strata/internal/plan"
)

// statusRow is the per-artifact payload of the status command.
type statusRow struct {
	Path    string      `json:"path"`
	Status  plan.Status `json:"status"`
	Latest  string      `json:"latest_version,omitempty"`
	Drifted []driftDoc  `json:"drifted_parents,omitempty"`
}

type driftDoc struct {
	Parent  string `json:"parent"`
	Pinned  string `json:"pinned"`
	Current string `json:"current,omitempty"`
}

// NewStatusCommand reports staleness for the given artifacts, or for
// every cataloged artifact when none are named.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [path...]",
		Short: "Report which artifacts are stale against their parents",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			s, err := opts.OpenStore()
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			paths := args
			if len(paths) == 0 {
				for _, a := range s.Catalog().Artifacts() {
					paths = append(paths, a.Path)
				}
			}

			anyStale := false
			rows := make([]statusRow, 0, len(paths))
			for _, p := range paths {
				status, drifts, err := s.Staleness(p)
				if err != nil {
					return f.Fail(err)
				}
				row := statusRow{Path: p, Status: status}
				if latest, ok := s.Catalog().Latest(p); ok {
					row.Latest = latest.VersionID
				}
				for _, d := range drifts {
					row.Drifted = append(row.Drifted, driftDoc{
						Parent:  d.ParentPath,
						Pinned:  d.Pinned,
						Current: d.Current,
					})
				}
				if status != plan.StatusCurrent {
					anyStale = true
				}
				rows = append(rows, row)
			}

			if f.Format == "json" {
				if err := f.JSON(rows); err != nil {
					return err
				}
			} else {
				for _, r := range rows {
					f.Textf("%-8s %s", r.Status, r.Path)
					for _, d := range r.Drifted {
						f.Textf("         parent %s: %s -> %s", d.Parent, d.Pinned, d.Current)
					}
				}
			}
			if anyStale {
				return WrapExitError(ExitFailure, "stale artifacts present", nil)
			}
			return nil
		},
	}
}
