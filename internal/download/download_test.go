// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/chondro/internal/acquire"
	"github.com/pdiddy/chondro/internal/queue"
	"github.com/pdiddy/chondro/pkg/types"
)

var pdfA = []byte("%PDF-1.5\npaper A\n%%EOF\n")
var pdfB = []byte("%PDF-1.5\npaper B, a different file\n%%EOF\n")

// scriptedFetcher returns a fixed result per literature_id.
type scriptedFetcher struct {
	mu      sync.Mutex
	results map[string]acquire.Result
	calls   []string
}

func (s *scriptedFetcher) Fetch(_ context.Context, rec types.Record) (acquire.Result, []acquire.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, rec.LiteratureID)
	res, ok := s.results[rec.LiteratureID]
	if !ok {
		res = acquire.Result{Outcome: acquire.Miss, Detail: "unscripted"}
	}
	res.Adapter = "fake"
	return res, []acquire.Attempt{{Adapter: "fake", Outcome: res.Outcome, Detail: res.Detail}}
}

func openQueue(t *testing.T) *queue.Store {
	t.Helper()
	s, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, q *queue.Store, recs ...types.Record) {
	t.Helper()
	_, err := q.Seed(context.Background(), recs)
	require.NoError(t, err)
}

func record(id, d string, year int, title string) types.Record {
	return types.Record{LiteratureID: id, DOI: d, Year: year, Authors: "Worm, B.", Title: title}
}

func statusOf(t *testing.T, q *queue.Store, literatureID string) types.QueueItem {
	t.Helper()
	items, err := q.Recent(context.Background(), "", 100)
	require.NoError(t, err)
	for _, it := range items {
		if it.Record.LiteratureID == literatureID {
			return it
		}
	}
	t.Fatalf("item %s not found", literatureID)
	return types.QueueItem{}
}

func TestRunOutcomes(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t)
	root := t.TempDir()
	seed(t, q,
		record("ok", "10.1/ok", 2015, "Global catches"),
		record("miss", "10.1/miss", 2014, "Nobody has this"),
		record("blocked", "10.1/blocked", 2013, "Behind a paywall"),
		record("flaky", "10.1/flaky", 2012, "Server down"),
	)
	require.NoError(t, q.Log(ctx, queue.ProcessHunter, queue.ActionHunterDone, ""))

	f := &scriptedFetcher{results: map[string]acquire.Result{
		"ok":      {Outcome: acquire.OK, Data: pdfA, SourceURL: "https://example.org/a.pdf"},
		"miss":    {Outcome: acquire.Miss, Detail: "http_404"},
		"blocked": {Outcome: acquire.Blocked, Detail: "http_403"},
		"flaky":   {Outcome: acquire.Transient, Detail: "http_502"},
	}}
	var out bytes.Buffer
	d := &Downloader{Queue: q, Fetcher: f, Options: Options{Root: root, BatchSize: 10}, Out: &out}

	summary, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.Missed)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, summary.Deferred)
	assert.True(t, summary.HasFailures())
	assert.Equal(t, []string{"ok", "miss", "blocked", "flaky"}, f.calls, "priority order")
	assert.Contains(t, out.String(), "Download summary: 1 downloaded")

	okItem := statusOf(t, q, "ok")
	assert.Equal(t, types.StatusSuccess, okItem.Status)
	want := filepath.Join(root, "2015", "Worm.2015.Global catches.pdf")
	assert.Equal(t, want, okItem.PDFPath)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, pdfA, data)

	missItem := statusOf(t, q, "miss")
	assert.Equal(t, types.StatusFailed, missItem.Status)
	assert.Equal(t, types.ErrAdapterMiss, missItem.ErrorKind)

	blockedItem := statusOf(t, q, "blocked")
	assert.Equal(t, types.ErrAdapterBlocked, blockedItem.ErrorKind)

	flaky := statusOf(t, q, "flaky")
	assert.Equal(t, types.StatusInFlight, flaky.Status, "transient items wait for the lease sweeper")
}

func TestRunOnceDoesNotWaitForHunter(t *testing.T) {
	q := openQueue(t)
	seed(t, q, record("a", "10.1/a", 2015, "A"), record("b", "10.1/b", 2016, "B"))

	f := &scriptedFetcher{results: map[string]acquire.Result{}}
	d := &Downloader{Queue: q, Fetcher: f, Options: Options{Root: t.TempDir(), BatchSize: 1, Once: true}}

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total())
	assert.Equal(t, []string{"b"}, f.calls)
}

func TestRunWaitsWhileHunterRunning(t *testing.T) {
	q := openQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := &Downloader{Queue: q, Fetcher: &scriptedFetcher{}, Options: Options{Root: t.TempDir(), IdleSleep: 10 * time.Millisecond}}
	_, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunExitsWhenDrainedAndHunterDone(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t)
	require.NoError(t, q.Log(ctx, queue.ProcessHunter, queue.ActionHunterStart, ""))
	require.NoError(t, q.Log(ctx, queue.ProcessHunter, queue.ActionHunterDone, ""))

	d := &Downloader{Queue: q, Fetcher: &scriptedFetcher{}, Options: Options{Root: t.TempDir(), IdleSleep: time.Hour}}
	summary, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Total())
}

func TestRunReclaimsExpiredLeases(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t)
	seed(t, q, record("a", "10.1/a", 2015, "Stuck item"))
	_, err := q.ClaimNextBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Log(ctx, queue.ProcessHunter, queue.ActionHunterDone, ""))

	f := &scriptedFetcher{results: map[string]acquire.Result{"a": {Outcome: acquire.OK, Data: pdfA}}}
	d := &Downloader{Queue: q, Fetcher: f, Options: Options{Root: t.TempDir(), Lease: time.Nanosecond}}
	time.Sleep(time.Millisecond)

	summary, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Requeued)
	assert.Equal(t, 1, summary.Downloaded)
}

func TestPlace(t *testing.T) {
	root := t.TempDir()
	rec := record("x", "10.1/x", 0, "Shark nursery areas: a review")

	p, err := Place(root, rec, pdfA)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "unknown_year", "Worm.unknown_year.Shark nursery areas a review.pdf"), p.Path)
	assert.False(t, p.Reused)

	again, err := Place(root, rec, pdfA)
	require.NoError(t, err)
	assert.Equal(t, p.Path, again.Path)
	assert.True(t, again.Reused, "identical content is reused")

	other, err := Place(root, rec, pdfB)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "unknown_year", "Worm.unknown_year.Shark nursery areas a review_dup1.pdf"), other.Path)
	assert.Equal(t, 1, other.Collisions)

	third, err := Place(root, rec, pdfB)
	require.NoError(t, err)
	assert.Equal(t, other.Path, third.Path)
	assert.True(t, third.Reused)

	entries, err := os.ReadDir(filepath.Join(root, "unknown_year"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}
