// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/queue"
	"github.com/pdiddy/chondro/pkg/types"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Return finished queue items to pending",
	Long: `Requeue resets terminal items so the downloader tries them again, for
example after adding an adapter or fixing a proxy. By default every failed
item is requeued; --error-kind narrows the retry to one failure tag such as
adapter_blocked.`,
	RunE: runRequeue,
}

func init() {
	requeueCmd.Flags().String("status", string(types.StatusFailed), "terminal status to requeue: failed, skipped, or success")
	requeueCmd.Flags().String("error-kind", "", "only requeue items failed with this error kind")
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	kind, _ := cmd.Flags().GetString("error-kind")

	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	n, err := q.Requeue(cmd.Context(), queue.RequeueFilter{
		Status:    types.QueueStatus(status),
		ErrorKind: types.ErrorKind(kind),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "requeued %d item(s)\n", n)
	return nil
}
