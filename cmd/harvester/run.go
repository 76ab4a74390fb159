package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/harvest"
)

func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:       "run <weather|air-quality|traffic|all>",
		Short:     "Run one harvest pass and print its summary",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"weather", "air-quality", "traffic", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var src domain.Source
			if args[0] != "all" {
				var ok bool
				if src, ok = domain.ParseSource(args[0]); !ok {
					return fmt.Errorf("unknown source %q", args[0])
				}
			}

			a, err := setup(dryRun)
			if err != nil {
				return err
			}
			defer a.close()

			var (
				sums   []*harvest.Summary
				runErr error
			)
			if src == "" {
				sums, runErr = a.harvester.RunAll(cmd.Context())
			} else {
				sum, err := a.harvester.Run(cmd.Context(), src)
				if sum != nil {
					sums = append(sums, sum)
				}
				runErr = err
			}

			if err := printSummaries(cmd.OutOrStdout(), sums); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "harvest into memory without writing to Elasticsearch or Kafka")
	return cmd
}

func printSummaries(w io.Writer, sums []*harvest.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sums)
}
