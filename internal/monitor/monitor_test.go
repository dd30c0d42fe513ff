// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package monitor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/chondro/internal/queue"
	"github.com/pdiddy/chondro/pkg/types"
)

func seededQueue(t *testing.T) *queue.Store {
	t.Helper()
	ctx := context.Background()
	s, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var recs []types.Record
	for _, id := range []string{"a", "b", "c", "d"} {
		recs = append(recs, types.Record{LiteratureID: id, DOI: "10.1000/" + id, Year: 2020, Title: "Paper " + id})
	}
	_, err = s.Seed(ctx, recs)
	require.NoError(t, err)
	_, err = s.AddHunted(ctx, types.Record{LiteratureID: "e", Year: 2019, Title: "Hunted"}, "10.1000/e", 0.9, "Hunted")
	require.NoError(t, err)

	batch, err := s.ClaimNextBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.NoError(t, s.Finish(ctx, batch[0].ID, types.StatusSuccess, "pdfs/2020/a.pdf", types.ErrNone))
	require.NoError(t, s.Finish(ctx, batch[1].ID, types.StatusSuccess, "pdfs/2020/b.pdf", types.ErrNone))
	require.NoError(t, s.Finish(ctx, batch[2].ID, types.StatusFailed, "", types.ErrAdapterMiss))

	require.NoError(t, s.Log(ctx, queue.ProcessHunter, queue.ActionHunterStart, ""))
	require.NoError(t, s.Log(ctx, queue.ProcessHunter, "found", "10.1000/e"))
	require.NoError(t, s.Log(ctx, queue.ProcessHunter, "not_found", ""))
	require.NoError(t, s.Log(ctx, queue.ProcessHunter, "resolver_error", "timeout"))
	return s
}

func TestSnapshot(t *testing.T) {
	m := &Monitor{Queue: seededQueue(t)}
	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, snap.Stats.Total)
	assert.Equal(t, 2, snap.Stats.Pending())
	assert.Equal(t, 2, snap.Stats.ByStatus[types.StatusSuccess])
	assert.Equal(t, 4, snap.Stats.BySource[types.SourceSeeded])
	assert.Equal(t, 1, snap.Stats.BySource[types.SourceHunted])
	assert.Equal(t, 2, snap.Stats.LastHour)
	assert.Len(t, snap.Recent, 2)
	require.Len(t, snap.Failed, 1)
	assert.Equal(t, types.ErrAdapterMiss, snap.Failed[0].ErrorKind)

	assert.Equal(t, 2, snap.HunterRate, "resolver errors and lifecycle rows are not lookups")
	assert.False(t, snap.HunterDone)
	assert.Equal(t, time.Hour, snap.ETA)
}

func TestRender(t *testing.T) {
	m := &Monitor{Queue: seededQueue(t)}
	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Render(&out, snap))
	s := out.String()
	assert.Contains(t, s, "(5 items)")
	assert.Contains(t, s, "40.0%")
	assert.Contains(t, s, "seeded")
	assert.Contains(t, s, "1h0m0s")
	assert.Contains(t, s, "(running)")
	assert.Contains(t, s, "Recent downloads")
	assert.Contains(t, s, "pdfs/2020/a.pdf")
	assert.Contains(t, s, "adapter_miss")
}

func TestRenderEmptyQueue(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Render(&out, Snapshot{Taken: time.Now()}))
	assert.Contains(t, out.String(), "(0 items)")
	assert.Contains(t, out.String(), "unknown")
	assert.NotContains(t, out.String(), "Recent")
}

func TestETA(t *testing.T) {
	assert.Equal(t, time.Duration(0), ETA(10, 0))
	assert.Equal(t, time.Duration(0), ETA(0, 10))
	assert.Equal(t, 30*time.Minute, ETA(5, 10))
	assert.Equal(t, 250*time.Hour, ETA(5000, 20))
}

func TestHunterLogRate(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log := strings.Join([]string{
		`time=2026-03-01T11:59:59.000Z level=DEBUG msg=hunted outcome=found literature_id=1`,
		`time=2026-03-01T12:00:00.000Z level=DEBUG msg=hunted outcome=found literature_id=2`,
		`time=2026-03-01T12:30:00.500+00:00 level=DEBUG msg=hunted outcome=not_found literature_id=3`,
		`time=2026-03-01T12:31:00.000Z level=DEBUG msg=hunted outcome=resolver_error literature_id=4`,
		`time=2026-03-01T12:32:00.000Z level=WARN msg="resolver failed" error="timeout"`,
		`found: 5 10.1000/x`,
		`time=garbage level=DEBUG msg=hunted outcome=found`,
	}, "\n")
	n, err := HunterLogRate(strings.NewReader(log), since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSnapshotPrefersHunterLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hunter.log")
	now := time.Now().UTC()
	line := "time=" + now.Format(time.RFC3339Nano) + " level=DEBUG msg=hunted outcome=duplicate\n"
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat(line, 7)), 0o644))

	m := &Monitor{Queue: seededQueue(t), HunterLog: path}
	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, snap.HunterRate)

	m.HunterLog = filepath.Join(t.TempDir(), "missing.log")
	snap, err = m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.HunterRate, "falls back to the activity log")
}

func TestRunOnce(t *testing.T) {
	m := &Monitor{Queue: seededQueue(t)}
	var out bytes.Buffer
	require.NoError(t, m.Run(context.Background(), &out, time.Millisecond, true))
	assert.Equal(t, 1, strings.Count(out.String(), "Queue at"))
}

func TestRunStopsOnCancel(t *testing.T) {
	m := &Monitor{Queue: seededQueue(t)}
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, &out, 10*time.Millisecond, false) }()
	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
