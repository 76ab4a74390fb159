package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-air-quality",
		Short: "Add missing site id and name to stored air-quality documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.harvester.BackfillAirQuality(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
