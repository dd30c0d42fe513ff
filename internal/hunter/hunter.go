// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package hunter recovers DOIs for bibliographic records that lack one
// and feeds them into the work queue. DOIs are taken from the upstream
// PDF hint when it embeds one; otherwise a metadata resolver is queried
// by title and the closest candidate is accepted above a threshold.
package hunter

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/pdiddy/chondro/internal/doi"
	"github.com/pdiddy/chondro/internal/httputil"
	"github.com/pdiddy/chondro/internal/queue"
	"github.com/pdiddy/chondro/pkg/types"
)

// CursorKey is the progress key holding the last processed literature_id.
const CursorKey = "hunter_cursor"

// Outcome is the per-record result written to the activity log.
type Outcome string

const (
	FoundHint     Outcome = "found_hint"
	Found         Outcome = "found"
	NotFound      Outcome = "not_found"
	Duplicate     Outcome = "duplicate"
	NormalizeFail Outcome = Outcome(types.ErrDOINormalizeFail)
	ResolverError Outcome = "resolver_error"
)

// Queue is the subset of the work queue the hunter writes to.
type Queue interface {
	AddHunted(ctx context.Context, rec types.Record, d string, confidence float64, matchedTitle string) (bool, error)
	HasLiterature(ctx context.Context, literatureID string) (bool, error)
	Log(ctx context.Context, process, action, details string) error
	GetProgress(ctx context.Context, key string) (string, bool, error)
	SetProgress(ctx context.Context, key, value string) error
}

// Summary holds the outcome counts of a hunter run.
type Summary struct {
	FoundHint      int
	Found          int
	NotFound       int
	Duplicate      int
	NormalizeFail  int
	ResolverErrors int

	// Resumed counts records skipped because an earlier run covered them.
	Resumed int
}

// Total returns the number of records processed in this run.
func (s Summary) Total() int {
	return s.FoundHint + s.Found + s.NotFound + s.Duplicate + s.NormalizeFail + s.ResolverErrors
}

// Queued returns the number of records added to the queue.
func (s Summary) Queued() int {
	return s.FoundHint + s.Found
}

func (s *Summary) add(o Outcome) {
	switch o {
	case FoundHint:
		s.FoundHint++
	case Found:
		s.Found++
	case NotFound:
		s.NotFound++
	case Duplicate:
		s.Duplicate++
	case NormalizeFail:
		s.NormalizeFail++
	case ResolverError:
		s.ResolverErrors++
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("found_hint=%d found=%d not_found=%d duplicate=%d doi_normalize_fail=%d resolver_error=%d resumed=%d",
		s.FoundHint, s.Found, s.NotFound, s.Duplicate, s.NormalizeFail, s.ResolverErrors, s.Resumed)
}

// Hunter runs the DOI hunt against a queue.
type Hunter struct {
	Queue    Queue
	Resolver Resolver
	Config   types.HunterConfig
	Out      io.Writer
}

// Eligible filters recs to those the hunter should consider: no DOI and
// a known year at or above minYear.
func Eligible(recs []types.Record, minYear int) []types.Record {
	var out []types.Record
	for _, r := range recs {
		if r.DOI == "" && r.HasYear() && r.Year >= minYear {
			out = append(out, r)
		}
	}
	return out
}

// Run hunts DOIs for the eligible records in recs, in input order. The
// cursor is checkpointed every CommitEvery records, so a rerun resumes
// after the last checkpoint. hunter_done is logged only when every
// record has been processed; cancellation returns ctx.Err().
func (h *Hunter) Run(ctx context.Context, recs []types.Record) (Summary, error) {
	var summary Summary
	out := h.Out
	if out == nil {
		out = io.Discard
	}
	commitEvery := h.Config.CommitEvery
	if commitEvery <= 0 {
		commitEvery = 25
	}

	if err := h.Queue.Log(ctx, queue.ProcessHunter, queue.ActionHunterStart, ""); err != nil {
		return summary, err
	}

	todo := Eligible(recs, h.Config.MinYear)
	cursor, ok, err := h.Queue.GetProgress(ctx, CursorKey)
	if err != nil {
		return summary, err
	}
	if ok && cursor != "" {
		for i, r := range todo {
			if r.LiteratureID == cursor {
				summary.Resumed = i + 1
				todo = todo[i+1:]
				break
			}
		}
	}
	if summary.Resumed > 0 {
		fmt.Fprintf(out, "resuming after %s (%d records already processed)\n", cursor, summary.Resumed)
	}

	limiter := httputil.NewLimiter(h.Config.Delay)
	processed := ""
	checkpoint := func() error {
		if processed == "" {
			return nil
		}
		return h.Queue.SetProgress(ctx, CursorKey, processed)
	}

	// On cancellation the cursor is saved outside the cancelled context.
	interrupted := func() error {
		if processed != "" {
			if err := h.Queue.SetProgress(context.WithoutCancel(ctx), CursorKey, processed); err != nil {
				slog.Warn("saving hunter cursor", "error", err)
			}
		}
		return ctx.Err()
	}

	for i, rec := range todo {
		if ctx.Err() != nil {
			return summary, interrupted()
		}

		o, details, err := h.hunt(ctx, rec, limiter)
		if err != nil {
			if ctx.Err() != nil {
				return summary, interrupted()
			}
			return summary, err
		}
		if o == ResolverError && ctx.Err() != nil {
			// Interrupted mid-call; the record is retried by the next run.
			continue
		}
		summary.add(o)
		processed = rec.LiteratureID

		if err := h.Queue.Log(ctx, queue.ProcessHunter, string(o), details); err != nil {
			return summary, err
		}
		fmt.Fprintf(out, "%-18s %s %s\n", o+":", rec.LiteratureID, details)
		slog.Debug("hunted", "outcome", string(o), "literature_id", rec.LiteratureID)

		if (i+1)%commitEvery == 0 {
			if err := checkpoint(); err != nil {
				return summary, err
			}
		}
	}

	if err := checkpoint(); err != nil {
		return summary, err
	}
	if err := h.Queue.Log(ctx, queue.ProcessHunter, queue.ActionHunterDone, summary.String()); err != nil {
		return summary, err
	}
	fmt.Fprintf(out, "\nHunt summary: %d queued, %d not found, %d duplicate, %d unrecoverable, %d resolver errors (total: %d)\n",
		summary.Queued(), summary.NotFound, summary.Duplicate, summary.NormalizeFail, summary.ResolverErrors, summary.Total())
	return summary, nil
}

// hunt resolves one record. Only store errors are returned; everything
// else is an Outcome.
func (h *Hunter) hunt(ctx context.Context, rec types.Record, limiter *rate.Limiter) (Outcome, string, error) {
	if dup, err := h.Queue.HasLiterature(ctx, rec.LiteratureID); err != nil {
		return "", "", err
	} else if dup {
		return Duplicate, "literature_id already queued", nil
	}

	if d, err := doi.Find(rec.PDFHint); err == nil {
		return h.add(ctx, rec, d, 1.0, rec.Title, FoundHint)
	}

	if err := limiter.Wait(ctx); err != nil {
		return ResolverError, err.Error(), nil
	}
	cands, err := h.Resolver.Candidates(ctx, rec.Title, rec.Authors, h.Config.TopK)
	if err != nil {
		slog.Warn("resolver failed", "resolver", h.Resolver.Name(), "literature_id", rec.LiteratureID, "error", err)
		return ResolverError, err.Error(), nil
	}

	best, ok := Best(rec.Title, cands)
	if !ok || best.Score < h.Config.AcceptThreshold {
		score := 0.0
		if ok {
			score = best.Score
		}
		return NotFound, fmt.Sprintf("best_score=%.3f", score), nil
	}

	d, err := doi.Normalize(best.DOI)
	if err != nil {
		return NormalizeFail, fmt.Sprintf("doi=%q", best.DOI), nil
	}
	return h.add(ctx, rec, d, best.Score, best.Title, Found)
}

func (h *Hunter) add(ctx context.Context, rec types.Record, d string, score float64, matched string, o Outcome) (Outcome, string, error) {
	inserted, err := h.Queue.AddHunted(ctx, rec, d, score, matched)
	if err != nil {
		return "", "", err
	}
	details := fmt.Sprintf("doi=%s score=%.3f", d, score)
	if !inserted {
		return Duplicate, details, nil
	}
	return o, details, nil
}
