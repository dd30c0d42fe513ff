// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package monitor reports acquisition progress. It only reads the work
// queue, so it can run alongside the hunter and the downloader.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/pdiddy/chondro/internal/hunter"
	"github.com/pdiddy/chondro/internal/queue"
	"github.com/pdiddy/chondro/pkg/types"
)

// DefaultInterval is the polling interval when none is configured.
const DefaultInterval = 30 * time.Second

// recentCount is the number of recent successes and failures shown.
const recentCount = 5

// Queue is the read-only view of the work queue the monitor needs.
type Queue interface {
	Stats(ctx context.Context) (queue.Stats, error)
	Recent(ctx context.Context, status types.QueueStatus, n int) ([]types.QueueItem, error)
	Activity(ctx context.Context, process string, since time.Time) ([]types.ActivityLogEntry, error)
	HunterDone(ctx context.Context) (bool, error)
}

// Snapshot is one observation of the pipeline.
type Snapshot struct {
	Taken  time.Time
	Stats  queue.Stats
	Recent []types.QueueItem
	Failed []types.QueueItem

	// HunterRate is the number of records the hunter resolved in the
	// past hour. HunterDone is set once the hunter logged completion.
	HunterRate int
	HunterDone bool

	// ETA is the projected time to drain pending items at the current
	// download rate. It is zero when there is no rate to project from.
	ETA time.Duration
}

// Monitor polls a queue and renders snapshots.
type Monitor struct {
	Queue Queue

	// HunterLog is an optional hunter diagnostic log. When set and
	// readable it replaces the activity log as the source of the hunter
	// rate.
	HunterLog string

	now func() time.Time
}

func (m *Monitor) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// Snapshot reads the queue once.
func (m *Monitor) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Taken: m.clock()}

	var err error
	if snap.Stats, err = m.Queue.Stats(ctx); err != nil {
		return snap, err
	}
	if snap.Recent, err = m.Queue.Recent(ctx, types.StatusSuccess, recentCount); err != nil {
		return snap, err
	}
	if snap.Failed, err = m.Queue.Recent(ctx, types.StatusFailed, recentCount); err != nil {
		return snap, err
	}
	if snap.HunterDone, err = m.Queue.HunterDone(ctx); err != nil {
		return snap, err
	}
	if snap.HunterRate, err = m.hunterRate(ctx, snap.Taken.Add(-time.Hour)); err != nil {
		return snap, err
	}
	snap.ETA = ETA(snap.Stats.Pending(), snap.Stats.LastHour)
	return snap, nil
}

func (m *Monitor) hunterRate(ctx context.Context, since time.Time) (int, error) {
	if m.HunterLog != "" {
		f, err := os.Open(m.HunterLog)
		if err == nil {
			defer f.Close()
			return HunterLogRate(f, since)
		}
		slog.Debug("hunter log unavailable, using activity log", "path", m.HunterLog, "error", err)
	}

	entries, err := m.Queue.Activity(ctx, queue.ProcessHunter, since)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if resolved(e.Action) {
			n++
		}
	}
	return n, nil
}

// resolved reports whether a hunter action marks a finished lookup.
func resolved(action string) bool {
	switch hunter.Outcome(action) {
	case hunter.Found, hunter.FoundHint, hunter.NotFound, hunter.Duplicate:
		return true
	}
	return false
}

// ETA projects how long pending items take at perHour downloads an hour.
func ETA(pending, perHour int) time.Duration {
	if pending <= 0 || perHour <= 0 {
		return 0
	}
	return time.Duration(float64(pending) / float64(perHour) * float64(time.Hour)).Round(time.Minute)
}

// Render writes a text report of snap.
func Render(w io.Writer, snap Snapshot) error {
	st := snap.Stats
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Queue at %s (%d items)\n", snap.Taken.Format(time.DateTime), st.Total)
	for _, s := range []types.QueueStatus{
		types.StatusPending, types.StatusInFlight, types.StatusSuccess, types.StatusFailed, types.StatusSkipped,
	} {
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", s, st.ByStatus[s], percent(st.ByStatus[s], st.Total))
	}

	fmt.Fprintln(tw, "By source")
	sources := make([]string, 0, len(st.BySource))
	for s := range st.BySource {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(tw, "  %s\t%d\t\n", s, st.BySource[types.SourceTag(s)])
	}

	fmt.Fprintf(tw, "Downloads last hour\t%d\t\n", st.LastHour)
	hunterState := "running"
	if snap.HunterDone {
		hunterState = "done"
	}
	fmt.Fprintf(tw, "Hunter last hour\t%d\t(%s)\n", snap.HunterRate, hunterState)
	if snap.ETA > 0 {
		fmt.Fprintf(tw, "Estimated completion\t%s\t(%s)\n", snap.ETA, snap.Taken.Add(snap.ETA).Format(time.DateTime))
	} else {
		fmt.Fprintf(tw, "Estimated completion\tunknown\t\n")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	renderItems(w, "Recent downloads", snap.Recent, func(it types.QueueItem) string { return it.PDFPath })
	renderItems(w, "Recent failures", snap.Failed, func(it types.QueueItem) string { return string(it.ErrorKind) })
	return nil
}

func renderItems(w io.Writer, title string, items []types.QueueItem, detail func(types.QueueItem) string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  %s  %s  %s\n", it.FinishedAt.Format(time.DateTime), it.Record.LiteratureID, detail(it))
	}
}

func percent(n, total int) string {
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}

// Run renders a snapshot every interval until ctx is cancelled. With
// once set it renders a single snapshot and returns.
func (m *Monitor) Run(ctx context.Context, w io.Writer, interval time.Duration, once bool) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap, err := m.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading queue: %w", err)
		}
		if err := Render(w, snap); err != nil {
			return err
		}
		if once {
			return nil
		}
		fmt.Fprintln(w)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
