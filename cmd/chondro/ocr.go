// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/ocr"
	"github.com/pdiddy/chondro/internal/pdftext"
	"github.com/pdiddy/chondro/internal/tool"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Add a text layer to PDFs that have none",
	Long: `OCR samples the first two pages of every PDF under pdf.root. Files with
at least ocr.min_text_len characters are logged as having text; the rest
are backed up to ocr.backup_dir and run through ocrmypdf, replacing the
original only when OCR succeeds. Logged files are skipped on later runs,
so extraction can tell which PDFs are ready.

Requires pdftotext (poppler-utils) and ocrmypdf on PATH.`,
	RunE: runOCR,
}

func init() {
	ocrCmd.Flags().Bool("retry-failed", false, "reprocess files whose OCR previously failed")
	rootCmd.AddCommand(ocrCmd)
}

func runOCR(cmd *cobra.Command, args []string) error {
	retry, _ := cmd.Flags().GetBool("retry-failed")

	runner := tool.NewRunner()
	if err := runner.Require(tool.PDFToText, tool.OCRMyPDF); err != nil {
		return err
	}

	store, err := openCorpus()
	if err != nil {
		return err
	}
	defer store.Close()

	g := &ocr.Gate{
		Log:    store,
		Text:   &pdftext.Poppler{Runner: runner, Timeout: seconds(cfg.OCR.TextTimeoutSeconds)},
		Runner: runner,
		Options: ocr.Options{
			Root:        cfg.PDF.Root,
			BackupDir:   cfg.OCR.BackupDir,
			MinTextLen:  cfg.OCR.MinTextLen,
			Timeout:     seconds(cfg.OCR.TimeoutSeconds),
			Workers:     cfg.OCR.Workers,
			RetryFailed: retry,
		},
	}
	summary, err := g.Run(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d PDF(s) failed OCR", summary.Failed)
	}
	return nil
}
