// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Report queue progress, rates, and estimated completion",
	Long: `Monitor prints counts by status and source, the last hour's download and
hunter rates, recent successes and failures, and an estimate of when the
queue drains. It only reads the queue, so it can run next to the hunter
and the downloader. The hunter rate comes from monitor.hunter_log when
that file exists, otherwise from the queue's activity log.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().Bool("once", false, "print one report and exit")
	monitorCmd.Flags().Duration("interval", 0, "polling interval (default from monitor.interval)")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	once, _ := cmd.Flags().GetBool("once")
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval == 0 {
		interval = cfg.Monitor.Interval
	}

	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	m := &monitor.Monitor{Queue: q, HunterLog: cfg.Monitor.HunterLog}
	return m.Run(cmd.Context(), cmd.OutOrStdout(), interval, once)
}
