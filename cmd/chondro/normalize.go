// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "De-duplicate and tidy the PDF store",
	Long: `Normalize works in two steps so nothing is deleted unseen. "plan" writes a
CSV of proposed removals and relocations for review; "apply" carries out a
reviewed plan, re-checking every file's hash first and appending each
decision to an audit CSV. "consolidate" merges YYYY.0 folders into YYYY,
and "watch" re-plans whenever new PDFs land in the store.`,
}

var normalizePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Write a reviewable de-duplication plan",
	RunE:  runNormalizePlan,
}

var normalizeApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Carry out a reviewed plan",
	RunE:  runNormalizeApply,
}

var normalizeConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge decimal year folders into integer year folders",
	RunE:  runNormalizeConsolidate,
}

var normalizeWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Consolidate and re-plan as PDFs arrive",
	RunE:  runNormalizeWatch,
}

func init() {
	normalizeApplyCmd.Flags().String("plan", "", "plan CSV to apply (default from normalize.plan_path)")

	normalizeCmd.AddCommand(normalizePlanCmd, normalizeApplyCmd, normalizeConsolidateCmd, normalizeWatchCmd)
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalizePlan(cmd *cobra.Command, args []string) error {
	return writePlan(cmd.OutOrStdout())
}

// writePlan plans over the PDF store and saves the plan and the list of
// unparsable names.
func writePlan(out io.Writer) error {
	pl := &normalize.Planner{
		Root:                cfg.PDF.Root,
		TitleThreshold:      cfg.Normalize.TitleThreshold,
		SupplementThreshold: cfg.Normalize.SupplementThreshold,
	}
	plan, err := pl.PlanRoot(cfg.PDF.Root)
	if err != nil {
		return fmt.Errorf("planning %s: %w", cfg.PDF.Root, err)
	}
	if err := normalize.SavePlan(cfg.Normalize.PlanPath, plan); err != nil {
		return err
	}
	if err := saveUnparsable(cfg.Normalize.UnparsablePath, plan.Unparsable); err != nil {
		return err
	}
	fmt.Fprintf(out, "Plan %s written to %s: %s\n", plan.ID, cfg.Normalize.PlanPath, plan.Summary())
	return nil
}

func saveUnparsable(path string, names []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := normalize.WriteUnparsable(f, names); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runNormalizeApply(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("plan")
	if path == "" {
		path = cfg.Normalize.PlanPath
	}
	plan, err := normalize.LoadPlan(path)
	if err != nil {
		return fmt.Errorf("loading plan: %w", err)
	}
	summary, err := normalize.ApplyPlan(cmd.Context(), plan, cfg.Normalize.AuditPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if summary.Changed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) changed since planning were kept; re-run normalize plan\n", summary.Changed)
	}
	return nil
}

func runNormalizeConsolidate(cmd *cobra.Command, args []string) error {
	_, err := normalize.Consolidate(cmd.Context(), cfg.PDF.Root, cmd.OutOrStdout())
	return err
}

func runNormalizeWatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	wt := &normalize.Watcher{
		Root:     cfg.PDF.Root,
		Debounce: cfg.Normalize.Debounce,
		Out:      out,
		OnChange: func(ctx context.Context) error {
			if _, err := normalize.Consolidate(ctx, cfg.PDF.Root, out); err != nil {
				return err
			}
			return writePlan(out)
		},
	}
	err := wt.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
