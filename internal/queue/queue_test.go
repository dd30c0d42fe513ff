// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/chondro/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(id, d string, year int) types.Record {
	return types.Record{
		LiteratureID: id,
		DOI:          d,
		Year:         year,
		Authors:      "Worm, B.",
		Title:        "Paper " + id,
	}
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 2020, Priority(2020))
	assert.Equal(t, PriorityFloor, Priority(1850))
	assert.Equal(t, PriorityFloor, Priority(0))
}

func TestClaimOrdersByPriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	summary, err := s.Seed(ctx, []types.Record{
		rec("a", "10.1000/a", 2005),
		rec("b", "10.1000/b", 2020),
		rec("c", "10.1000/c", 1998),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Inserted)

	var years []int
	for range 3 {
		batch, err := s.ClaimNextBatch(ctx, 1)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, types.StatusInFlight, batch[0].Status)
		years = append(years, batch[0].Record.Year)
	}
	assert.Equal(t, []int{2020, 2005, 1998}, years)

	batch, err := s.ClaimNextBatch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestClaimEqualPriorityByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Seed(ctx, []types.Record{
		rec("a", "10.1000/a", 2015),
		rec("b", "10.1000/b", 2015),
		rec("c", "10.1000/c", 0),
	})
	require.NoError(t, err)

	batch, err := s.ClaimNextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "a", batch[0].Record.LiteratureID)
	assert.Equal(t, "b", batch[1].Record.LiteratureID)
	assert.Equal(t, "c", batch[2].Record.LiteratureID)
	assert.Equal(t, PriorityFloor, batch[2].Priority)
}

func TestSeedTwiceIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recs := []types.Record{
		rec("a", "https://doi.org/10.1111/ABC.123", 2012),
		rec("b", "10.1111/abc.123 ", 2012),
		rec("c", "", 2012),
		rec("d", "not a doi", 2012),
	}

	first, err := s.Seed(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, SeedSummary{Inserted: 1, Duplicates: 1, NoDOI: 2}, first)

	second, err := s.Seed(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Duplicates)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.BySource[types.SourceSeeded])
}

func TestAddHuntedDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.AddHunted(ctx, rec("x", "", 2019), "DOI:10.3354/MEPS1", 0.93, "Matched")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AddHunted(ctx, rec("y", "", 2019), "10.3354/meps1", 0.8, "Other")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.AddHunted(ctx, rec("z", "", 2019), "nope", 0.8, "")
	assert.Error(t, err)

	batch, err := s.ClaimNextBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, types.SourceHunted, batch[0].Source)
	assert.Equal(t, "10.3354/meps1", batch[0].Record.DOI)
	assert.InDelta(t, 0.93, batch[0].Confidence, 1e-9)
	assert.Equal(t, "Matched", batch[0].MatchedTitle)

	has, err := s.HasLiterature(ctx, "x")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFinishAtMostOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Seed(ctx, []types.Record{rec("a", "10.1000/a", 2020)})
	require.NoError(t, err)
	batch, err := s.ClaimNextBatch(ctx, 1)
	require.NoError(t, err)
	id := batch[0].ID

	require.NoError(t, s.Finish(ctx, id, types.StatusSuccess, "pdfs/2020/a.pdf", types.ErrNone))

	err = s.Finish(ctx, id, types.StatusSuccess, "pdfs/2020/other.pdf", types.ErrNone)
	assert.ErrorIs(t, err, ErrNotInFlight)

	it, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, it.Status)
	assert.Equal(t, "pdfs/2020/a.pdf", it.PDFPath)
	assert.False(t, it.FinishedAt.IsZero())
}

func TestDownloadedDOIs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Seed(ctx, []types.Record{rec("a", "10.1000/a", 2020), rec("b", "10.1000/b", 2020)})
	require.NoError(t, err)
	batch, err := s.ClaimNextBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.NoError(t, s.Finish(ctx, batch[0].ID, types.StatusSuccess, "pdfs/2020/a.pdf", types.ErrNone))
	require.NoError(t, s.Finish(ctx, batch[1].ID, types.StatusFailed, "", types.ErrAdapterMiss))

	got, err := s.DownloadedDOIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"pdfs/2020/a.pdf": batch[0].Record.DOI}, got)
}

func TestFinishRejectsPendingAndBadArgs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Seed(ctx, []types.Record{rec("a", "10.1000/a", 2020)})
	require.NoError(t, err)

	err = s.Finish(ctx, 1, types.StatusFailed, "", types.ErrAdapterMiss)
	assert.ErrorIs(t, err, ErrNotInFlight)

	batch, err := s.ClaimNextBatch(ctx, 1)
	require.NoError(t, err)
	assert.Error(t, s.Finish(ctx, batch[0].ID, types.StatusSuccess, "", types.ErrNone))
	assert.Error(t, s.Finish(ctx, batch[0].ID, types.StatusPending, "", types.ErrNone))

	_, err = s.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetExpired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	_, err := s.Seed(ctx, []types.Record{rec("a", "10.1000/a", 2020), rec("b", "10.1000/b", 2019)})
	require.NoError(t, err)
	_, err = s.ClaimNextBatch(ctx, 1)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(5 * time.Minute) }
	_, err = s.ClaimNextBatch(ctx, 1)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	n, err := s.ResetExpired(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Pending())
	assert.Equal(t, 1, st.ByStatus[types.StatusInFlight])

	batch, err := s.ClaimNextBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "a", batch[0].Record.LiteratureID)
}

func TestRequeue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Seed(ctx, []types.Record{
		rec("a", "10.1000/a", 2020),
		rec("b", "10.1000/b", 2020),
		rec("c", "10.1000/c", 2020),
	})
	require.NoError(t, err)
	batch, err := s.ClaimNextBatch(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, s.Finish(ctx, batch[0].ID, types.StatusFailed, "", types.ErrAdapterBlocked))
	require.NoError(t, s.Finish(ctx, batch[1].ID, types.StatusFailed, "", types.ErrAdapterMiss))
	require.NoError(t, s.Finish(ctx, batch[2].ID, types.StatusSuccess, "x.pdf", types.ErrNone))

	n, err := s.Requeue(ctx, RequeueFilter{ErrorKind: types.ErrAdapterBlocked})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	it, err := s.Get(ctx, batch[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, it.Status)
	assert.Empty(t, it.ErrorKind)

	n, err = s.Requeue(ctx, RequeueFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Requeue(ctx, RequeueFilter{Status: types.StatusInFlight})
	assert.Error(t, err)
}

func TestHunterDone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	done, err := s.HunterDone(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.Log(ctx, ProcessHunter, ActionHunterStart, ""))
	require.NoError(t, s.Log(ctx, ProcessHunter, "found", "10.1/x"))
	done, err = s.HunterDone(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.Log(ctx, ProcessHunter, ActionHunterDone, "processed=1"))
	done, err = s.HunterDone(ctx)
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, s.Log(ctx, ProcessHunter, ActionHunterStart, ""))
	done, err = s.HunterDone(ctx)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestProgress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetProgress(ctx, "hunter_cursor")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetProgress(ctx, "hunter_cursor", "10"))
	require.NoError(t, s.SetProgress(ctx, "hunter_cursor", "20"))
	v, ok, err := s.GetProgress(ctx, "hunter_cursor")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "20", v)
}

func TestStatsThroughputAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	_, err := s.Seed(ctx, []types.Record{rec("a", "10.1000/a", 2020), rec("b", "10.1000/b", 2020)})
	require.NoError(t, err)
	batch, err := s.ClaimNextBatch(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, s.Finish(ctx, batch[0].ID, types.StatusSuccess, "a.pdf", types.ErrNone))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, s.Finish(ctx, batch[1].ID, types.StatusSuccess, "b.pdf", types.ErrNone))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ByStatus[types.StatusSuccess])
	assert.Equal(t, 1, st.LastHour)

	recent, err := s.Recent(ctx, types.StatusSuccess, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Record.LiteratureID)

	entries, err := s.Activity(ctx, ProcessSeeder, base.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "seed", entries[0].Action)
}

func TestConcurrentClaimsNeverOverlap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var recs []types.Record
	for i := range 40 {
		id := fmt.Sprintf("lit-%02d", i)
		recs = append(recs, rec(id, "10.1000/"+id, 2000+i%20))
	}
	_, err := s.Seed(ctx, recs)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[int64]int{}
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := s.ClaimNextBatch(ctx, 3)
				if err != nil || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, it := range batch {
					seen[it.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 40)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %d claimed more than once", id)
	}
}
