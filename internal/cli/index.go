package cli

import (
	"github.com/spf13/cobra"
)

// NewIndexCommand rebuilds the lineage edge cache from version snapshots.
func NewIndexCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the lineage edge cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			s, err := opts.OpenStore()
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			if err := s.RefreshIndex(); err != nil {
				return f.Fail(err)
			}
			if f.Format == "json" {
				return f.JSON(map[string]string{"index": "rebuilt"})
			}
			f.Textf("lineage index rebuilt")
			return nil
		},
	}
}
