// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/acquire"
	"github.com/pdiddy/chondro/internal/download"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Drain the queue, fetching PDFs through the adapter chain",
	Long: `Download claims queued items in priority order (newest publication year
first) and tries each adapter in download.adapter_order until one returns
a PDF. PDFs are placed under pdf.root as <year>/<canonical name>.pdf.

The command keeps polling while the hunter is still running and exits once
the queue is empty and the hunter has logged completion. Items that hit
only transient errors stay claimed and return to the queue when their
lease expires.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().Bool("once", false, "process one batch and exit")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	once, _ := cmd.Flags().GetBool("once")

	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	store, err := openCorpus()
	if err != nil {
		return err
	}
	defer store.Close()

	chain, err := acquire.Build(cfg.Download, cfg.HTTP, acquire.Deps{Recorder: store})
	if err != nil {
		return err
	}

	d := &download.Downloader{
		Queue:   q,
		Fetcher: chain,
		Options: download.Options{
			Root:      cfg.PDF.Root,
			BatchSize: cfg.Queue.BatchSize,
			Lease:     cfg.Download.LeaseTimeout(),
			ItemDelay: cfg.Download.ItemDelay,
			IdleSleep: cfg.Download.IdleSleep,
			Once:      once,
		},
		Out: cmd.OutOrStdout(),
	}
	summary, err := d.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(cmd.OutOrStdout(), "\ninterrupted: %d downloaded, claimed items return to the queue after %v\n",
			summary.Downloaded, cfg.Download.LeaseTimeout())
		return nil
	}
	if err != nil {
		// Run only fails on queue errors.
		return storeErr(err)
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d item(s) failed download", summary.Missed+summary.Blocked+summary.WriteFail)
	}
	return nil
}
