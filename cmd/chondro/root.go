// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/config"
	"github.com/pdiddy/chondro/internal/corpus"
	"github.com/pdiddy/chondro/internal/pdftext"
	"github.com/pdiddy/chondro/internal/queue"
	"github.com/pdiddy/chondro/internal/tool"
	"github.com/pdiddy/chondro/pkg/types"
)

// noConfig marks commands that run without loading configuration.
const noConfig = "no-config"

// cfg is loaded once before any command that needs it runs.
var cfg types.Config

// rootCmd is the base command for the chondro CLI.
var rootCmd = &cobra.Command{
	Use:   "chondro",
	Short: "Acquire and mine the chondrichthyan research literature",
	Long: `chondro builds a corpus of shark, ray, and chimaera research papers and
extracts the signals used to study analytical trends: techniques,
disciplines, species, authorship, and geography.

The pipeline runs as separate commands that share a work queue and a
relational corpus, so stages can run side by side:

  seed / hunt        fill the download queue from a bibliography
  download           fetch PDFs through the adapter chain
  normalize          de-duplicate and tidy the PDF store
  ocr                add a text layer to scanned PDFs
  extract            mine PDFs into the corpus
  monitor / export   report progress and publish tables`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine.
		_ = godotenv.Load()

		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogging(cmd.ErrOrStderr(), verbose)

		if cmd.Annotations[noConfig] != "" {
			return nil
		}
		file, _ := cmd.Flags().GetString("config")
		secretsDir, _ := cmd.Flags().GetString("secrets")
		c, err := config.Load(file, secretsDir)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./chondro.yaml or ~/.config/chondro/chondro.yaml)")
	rootCmd.PersistentFlags().String("secrets", ".secrets", "directory of secret files (openalex-email, mirror-proxy)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug diagnostics to stderr")
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func openQueue() (*queue.Store, error) {
	q, err := queue.Open(cfg.Queue.Path)
	if err != nil {
		return nil, storeErr(fmt.Errorf("opening queue %s: %w", cfg.Queue.Path, err))
	}
	return q, nil
}

func openCorpus() (*corpus.Store, error) {
	s, err := corpus.Open(cfg.Corpus.Path)
	if err != nil {
		return nil, storeErr(fmt.Errorf("opening corpus %s: %w", cfg.Corpus.Path, err))
	}
	return s, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// textExtractor returns the configured text backend. The pdftotext
// backend fails fast when the binary is missing.
func textExtractor(runner *tool.Runner, backend string, timeoutSeconds int) (pdftext.Extractor, error) {
	if backend == "" || backend == pdftext.BackendPDFToText {
		if err := runner.Require(tool.PDFToText); err != nil {
			return nil, err
		}
	}
	return pdftext.New(backend, runner, seconds(timeoutSeconds))
}
