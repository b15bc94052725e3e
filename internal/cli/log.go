package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/strataform/strata/internal/fault"
)

type logRow struct {
	VersionID     string    `json:"version_id"`
	CreatedAt     time.Time `json:"created_at"`
	ContentHash   string    `json:"content_hash"`
	CodeHash      string    `json:"code_hash,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	SidecarFormat string    `json:"sidecar_format"`
	Latest        bool      `json:"latest"`
}

// NewLogCommand lists the version history of one artifact, newest first.
func NewLogCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log <path>",
		Short: "Show the version history of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			s, err := opts.OpenStore()
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			cfg := s.Config()
			norm, err := cfg.Resolve(args[0])
			if err != nil {
				return f.Fail(err)
			}
			versions := s.Catalog().VersionsOf(norm)
			if len(versions) == 0 {
				return f.Fail(fault.New(fault.KindNotFound, "cli.log", norm))
			}

			latest, _ := s.Catalog().Latest(norm)
			rows := make([]logRow, 0, len(versions))
			for _, v := range versions {
				rows = append(rows, logRow{
					VersionID:     v.VersionID,
					CreatedAt:     v.CreatedAt,
					ContentHash:   v.ContentHash,
					CodeHash:      v.CodeHash,
					SizeBytes:     v.SizeBytes,
					SidecarFormat: string(v.SidecarFormat),
					Latest:        v.VersionID == latest.VersionID,
				})
			}

			if f.Format == "json" {
				return f.JSON(rows)
			}
			for _, r := range rows {
				marker := " "
				if r.Latest {
					marker = "*"
				}
				f.Textf("%s %s  %s  %6d bytes", marker, r.VersionID,
					r.CreatedAt.UTC().Format(time.RFC3339), r.SizeBytes)
			}
			return nil
		},
	}
}
