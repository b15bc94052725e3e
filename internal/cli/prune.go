package cli

import (
	"github.com/spf13/cobra"

	"github.com/strataform/strata/internal/retain"
)

// NewPruneCommand applies a retention policy. Dry-run is the default;
// deletion requires --apply.
func NewPruneCommand(opts *RootOptions) *cobra.Command {
	var (
		keepN    int
		keepDays int
		apply    bool
	)

	cmd := &cobra.Command{
		Use:   "prune [path...]",
		Short: "Prune historical versions per the retention policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			s, err := opts.OpenStore()
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			var pol retain.Policy
			if keepN > 0 || keepDays > 0 {
				pol = retain.KeepUnion(keepN, keepDays)
			}

			res, err := s.Prune(args, pol, !apply)
			if err != nil {
				return f.Fail(err)
			}

			if f.Format == "json" {
				return f.JSON(res)
			}
			verb := "pruned"
			if res.DryRun {
				verb = "would prune"
			}
			f.Textf("%s %d version(s), %d bytes", verb, len(res.Candidates), res.ReclaimedBytes)
			for _, c := range res.Candidates {
				f.Textf("  %s %s (%d bytes)", c.Path, c.VersionID, c.SizeBytes)
			}
			for _, w := range res.Warnings {
				f.Textf("warning: %s", w)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keepN, "keep-n", 0, "keep the newest N versions per artifact")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep versions younger than this many days")
	cmd.Flags().BoolVar(&apply, "apply", false, "actually delete (default is dry run)")
	return cmd
}
