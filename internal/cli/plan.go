package cli

import (
	"github.com/spf13/cobra"

	"github.com/strataform/strata/internal/plan"
)

// NewPlanCommand computes a rebuild plan for changed targets. Execution
// needs builder callbacks and therefore lives in the embedding program,
// not this CLI; the plan itself is what operators inspect.
func NewPlanCommand(opts *RootOptions) *cobra.Command {
	var (
		mode           string
		depth          int
		includeTargets bool
	)

	cmd := &cobra.Command{
		Use:   "plan <target...>",
		Short: "Compute the dependency-ordered rebuild plan for changed targets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			s, err := opts.OpenStore()
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			d := depth
			if d == 0 {
				d = plan.Unbounded
			}
			entries, err := s.Plan(args, d, includeTargets, plan.Mode(mode))
			if err != nil {
				return f.Fail(err)
			}

			if f.Format == "json" {
				return f.JSON(entries)
			}
			f.Textf("%d artifact(s) to rebuild", len(entries))
			for _, e := range entries {
				f.Textf("[%d] %-40s %s", e.Level, e.Path, e.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(plan.ModePropagate), "planning mode (propagate|strict)")
	cmd.Flags().IntVar(&depth, "depth", 0, "propagation depth (0 = unbounded)")
	cmd.Flags().BoolVar(&includeTargets, "include-targets", false, "include stale targets at level 0")
	return cmd
}
