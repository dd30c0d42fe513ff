// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/extract"
	"github.com/pdiddy/chondro/internal/tool"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Mine the PDF store into the relational corpus",
	Long: `Extract reads every PDF under pdf.root that the OCR gate has finished with
and records technique and species mentions, discipline assignments,
authorship and collaborations, and author and study geography. Papers
already extracted successfully are skipped unless --force is given, and
results are committed in batches of extraction.batch_size.

Lookup tables come from taxonomy.path, countries.path, oceans.path, and
species.path; a missing file falls back to the built-in table. Run
"mage init" to write editable copies.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().Bool("force", false, "re-extract papers already logged as success")
	extractCmd.Flags().Bool("ignore-ocr", false, "extract PDFs the OCR gate has not processed")
	extractCmd.Flags().Int("limit", 0, "extract at most this many papers (0 for all)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	ignoreOCR, _ := cmd.Flags().GetBool("ignore-ocr")
	limit, _ := cmd.Flags().GetInt("limit")

	tables, err := extract.Load(
		tablePath(cfg.Taxonomy.Path), tablePath(cfg.Countries.Path),
		tablePath(cfg.Oceans.Path), tablePath(cfg.Species.Path),
	)
	if err != nil {
		return err
	}
	text, err := textExtractor(tool.NewRunner(), cfg.Extraction.TextBackend, cfg.Extraction.TextTimeoutSeconds)
	if err != nil {
		return err
	}

	store, err := openCorpus()
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	e := &extract.Engine{
		Store: store,
		Extractor: &extract.Extractor{
			Tables:       tables,
			Text:         text,
			MaxTextChars: cfg.Extraction.MaxTextChars,
			ContextChars: cfg.Extraction.ContextChars,
		},
		DOIs: q,
		Options: extract.Options{
			Root:      cfg.PDF.Root,
			Workers:   cfg.Extraction.Workers,
			BatchSize: cfg.Extraction.BatchSize,
			Force:     force,
			IgnoreOCR: ignoreOCR,
			Limit:     limit,
		},
	}
	summary, err := e.Run(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d paper(s) failed extraction", summary.FailedText+summary.FailedTimeout)
	}
	return nil
}

// tablePath returns path when the file exists, or "" to select the
// built-in table.
func tablePath(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		slog.Debug("lookup table not found, using built-in", "path", path)
		return ""
	}
	return path
}
