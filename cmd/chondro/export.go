// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Publish the corpus as Parquet tables or paper summaries",
	Long: `Export writes the relational corpus for analysis. The default parquet format
writes one <table>.parquet file per table into --dir. The json and yaml
formats write one summary per paper (techniques, disciplines, authors,
geography) to stdout. --stats prints row counts per table and a checksum
of the corpus contents instead; two runs over the same PDFs give the same
checksum.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("format", "parquet", "output format: parquet, json, or yaml")
	exportCmd.Flags().String("dir", "", "directory for parquet files (default from corpus.export_dir)")
	exportCmd.Flags().Bool("stats", false, "print table row counts and the corpus checksum")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	dir, _ := cmd.Flags().GetString("dir")
	stats, _ := cmd.Flags().GetBool("stats")
	if dir == "" {
		dir = cfg.Corpus.ExportDir
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openCorpus()
	if err != nil {
		return err
	}
	defer store.Close()

	if stats {
		counts, err := store.TableCounts(ctx)
		if err != nil {
			return storeErr(err)
		}
		printCounts(cmd, counts)
		sum, err := store.Checksum(ctx)
		if err != nil {
			return storeErr(err)
		}
		fmt.Fprintf(out, "checksum: %s\n", sum)
		return nil
	}

	switch format {
	case "parquet":
		counts, err := store.ExportParquet(ctx, dir)
		if err != nil {
			return err
		}
		printCounts(cmd, counts)
		fmt.Fprintf(out, "Export summary: %d tables written to %s\n", len(counts), dir)
		return nil
	case "json":
		return store.ExportJSON(ctx, out)
	case "yaml":
		return store.ExportYAML(ctx, out)
	default:
		return fmt.Errorf("unknown format %q (want parquet, json, or yaml)", format)
	}
}

func printCounts(cmd *cobra.Command, counts map[string]int) {
	tables := make([]string, 0, len(counts))
	for t := range counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %d\n", t, counts[t])
	}
}
