package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strataform/strata/internal/store"
)

// NewRepairCommand resets a corrupt catalog. Destroys version history
// records (snapshots on disk are left alone), so it demands --yes.
func NewRepairCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Reset a corrupt catalog to empty (explicit, destructive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			if !yes {
				return f.Fail(fmt.Errorf("repair destroys catalog history; pass --yes to confirm"))
			}

			cfg, err := opts.StoreConfig()
			if err != nil {
				return f.Fail(err)
			}
			s, err := store.Repair(cfg)
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			if f.Format == "json" {
				return f.JSON(map[string]string{"catalog": "reset"})
			}
			f.Textf("catalog reset to empty")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive reset")
	return cmd
}
