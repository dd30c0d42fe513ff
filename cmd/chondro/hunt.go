// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/chondro/internal/biblio"
	"github.com/pdiddy/chondro/internal/httputil"
	"github.com/pdiddy/chondro/internal/hunter"
)

var huntCmd = &cobra.Command{
	Use:   "hunt <bibliography>",
	Short: "Find DOIs for bibliography records that lack one",
	Long: `Hunt looks up records without a DOI, published in or after doi.min_year,
by title and first author against Crossref or OpenAlex. The best candidate
is queued when its title similarity reaches doi.accept_threshold.

Progress is checkpointed every doi.commit_every records; a rerun resumes
after the last checkpoint. Run with --verbose and keep stderr to give the
monitor a hunter log.`,
	Args: cobra.ExactArgs(1),
	RunE: runHunt,
}

func init() {
	huntCmd.Flags().String("resolver", "", "metadata resolver: crossref or openalex (default from doi.resolver)")
	rootCmd.AddCommand(huntCmd)
}

func runHunt(cmd *cobra.Command, args []string) error {
	recs, err := biblio.Read(args[0])
	if err != nil {
		return fmt.Errorf("reading bibliography: %w", err)
	}

	name, _ := cmd.Flags().GetString("resolver")
	if name == "" {
		name = cfg.DOI.Resolver
	}
	client, err := httputil.NewClient(cfg.HTTP.Timeout, "")
	if err != nil {
		return err
	}
	resolver, err := hunter.NewResolver(name, client, cfg.HTTP.UserAgent, cfg.HTTP.Mailto)
	if err != nil {
		return err
	}

	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	h := &hunter.Hunter{Queue: q, Resolver: resolver, Config: cfg.DOI, Out: cmd.OutOrStdout()}
	_, err = h.Run(cmd.Context(), recs)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(cmd.OutOrStdout(), "interrupted: cursor saved, rerun to resume")
		return nil
	}
	return err
}
