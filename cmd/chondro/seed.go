// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/biblio"
)

var seedCmd = &cobra.Command{
	Use:   "seed <bibliography>",
	Short: "Queue every bibliography record that carries a DOI",
	Long: `Seed reads a bibliography (CSV, or Parquet by extension) and inserts each
record with a recoverable DOI into the download queue as a pending seeded
item. Records already queued are left alone, so seeding twice is safe.
Records without a DOI are counted and left for the hunter.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	recs, err := biblio.Read(args[0])
	if err != nil {
		return fmt.Errorf("reading bibliography: %w", err)
	}

	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	summary, err := q.Seed(cmd.Context(), recs)
	if err != nil {
		return storeErr(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seed summary: %d queued, %d already queued, %d without DOI (total: %d)\n",
		summary.Inserted, summary.Duplicates, summary.NoDOI, summary.Total())
	return nil
}
