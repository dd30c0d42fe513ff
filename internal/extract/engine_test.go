// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/chondro/internal/corpus"
	"github.com/pdiddy/chondro/pkg/types"
)

type fakeStore struct {
	mu       sync.Mutex
	statuses map[string]types.ExtractionStatus
	ocr      map[string]types.OCRStatus
	marked   []string
	runIDs   []string
	batches  [][]types.PaperResult
}

func (f *fakeStore) ExtractionStatuses(context.Context) (map[string]types.ExtractionStatus, error) {
	return f.statuses, nil
}

func (f *fakeStore) OCRStatuses(context.Context) (map[string]types.OCRStatus, error) {
	return f.ocr, nil
}

func (f *fakeStore) MarkExtracting(_ context.Context, ids []string, _ string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, ids...)
	return nil
}

func (f *fakeStore) WriteBatch(_ context.Context, runID string, results []types.PaperResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runIDs = append(f.runIDs, runID)
	f.batches = append(f.batches, append([]types.PaperResult(nil), results...))
	return nil
}

type fakeDOIs map[string]string

func (f fakeDOIs) DownloadedDOIs(context.Context) (map[string]string, error) {
	return f, nil
}

type corpusFixture struct {
	root  string
	paths map[string]string
	text  *fakeText
}

// newCorpusFixture lays out five PDFs: two with text, one already
// extracted, one the OCR gate has not seen, and one with no text.
func newCorpusFixture(t *testing.T) corpusFixture {
	t.Helper()
	root := t.TempDir()
	names := map[string]string{
		"heithaus": filepath.Join(root, "2012", "Heithaus.Frid.2012.Ecol import intact top pred.pdf"),
		"worm":     filepath.Join(root, "2015", "Worm.Dulvy.Frid.2015.Global catches of sharks.pdf"),
		"done":     filepath.Join(root, "2016", "Done.2016.Already extracted.pdf"),
		"scan":     filepath.Join(root, "2017", "Scan.2017.Awaiting OCR.pdf"),
		"blank":    filepath.Join(root, "2018", "Blank.2018.No text layer.pdf"),
	}
	for _, p := range names {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("%PDF"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "2012", "notes.txt"), []byte("x"), 0o644))

	ft := &fakeText{text: map[string]string{
		names["heithaus"]: parachuteText + telemetryText,
		names["worm"]:     nswFirstPage + "\fMethods\nCPUE and bycatch data were collected off Florida.\nResults\n",
		names["done"]:     telemetryText,
		names["scan"]:     telemetryText,
		names["blank"]:    "",
	}}
	return corpusFixture{root: root, paths: names, text: ft}
}

func (c corpusFixture) ocr() map[string]types.OCRStatus {
	return map[string]types.OCRStatus{
		c.paths["heithaus"]: types.OCRHasText,
		c.paths["worm"]:     types.OCRAlreadyDone,
		c.paths["done"]:     types.OCRHasText,
		c.paths["blank"]:    types.OCRFailed,
	}
}

func TestEngineRun(t *testing.T) {
	fx := newCorpusFixture(t)
	store := &fakeStore{
		statuses: map[string]types.ExtractionStatus{
			PaperID(fx.paths["done"]):  types.ExtractionSuccess,
			PaperID(fx.paths["blank"]): types.ExtractionFailedText,
		},
		ocr: fx.ocr(),
	}
	e := &Engine{
		Store:     store,
		Extractor: &Extractor{Tables: defaultTables(t), Text: fx.text},
		DOIs:      fakeDOIs{fx.paths["heithaus"]: "10.1890/11-1234.1"},
		Options:   Options{Root: fx.root, Workers: 2, BatchSize: 2},
	}

	var out bytes.Buffer
	summary, err := e.Run(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 1, summary.FailedText)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.AwaitingOCR)
	assert.True(t, summary.HasFailures())
	assert.Contains(t, out.String(), "Extraction summary: 2 extracted, 1 failed (text)")

	assert.ElementsMatch(t, []string{
		PaperID(fx.paths["heithaus"]), PaperID(fx.paths["worm"]), PaperID(fx.paths["blank"]),
	}, store.marked)

	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 2)
	assert.Len(t, store.batches[1], 1)
	for _, id := range store.runIDs {
		assert.Equal(t, summary.RunID, id)
	}

	byID := map[string]types.PaperResult{}
	for _, b := range store.batches {
		for _, r := range b {
			byID[r.PaperID] = r
		}
	}
	heithaus := byID[PaperID(fx.paths["heithaus"])]
	assert.Equal(t, "10.1890/11-1234.1", heithaus.DOI)
	assert.Equal(t, 2012, heithaus.Year)
	assert.Empty(t, byID[PaperID(fx.paths["worm"])].DOI)
}

func TestEngineForceAndIgnoreOCR(t *testing.T) {
	fx := newCorpusFixture(t)
	store := &fakeStore{
		statuses: map[string]types.ExtractionStatus{PaperID(fx.paths["done"]): types.ExtractionSuccess},
	}
	e := &Engine{
		Store:     store,
		Extractor: &Extractor{Tables: defaultTables(t), Text: fx.text},
		Options:   Options{Root: fx.root, Workers: 3, Force: true, IgnoreOCR: true},
	}
	summary, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Extracted)
	assert.Equal(t, 1, summary.FailedText)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.AwaitingOCR)
	require.Len(t, store.batches, 1)

	e.Options.Limit = 2
	store.batches = nil
	summary, err = e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total())
}

func TestEngineAgainstCorpus(t *testing.T) {
	ctx := context.Background()
	fx := newCorpusFixture(t)
	store, err := corpus.Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	for path, st := range fx.ocr() {
		require.NoError(t, store.RecordOCR(ctx, types.OCRLogEntry{Path: path, Status: st}))
	}

	e := &Engine{
		Store:     store,
		Extractor: &Extractor{Tables: defaultTables(t), Text: fx.text},
		Options:   Options{Root: fx.root, Workers: 2, BatchSize: 10},
	}
	first, err := e.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Extracted)
	assert.Equal(t, 1, first.FailedText)

	sum1, err := store.Checksum(ctx)
	require.NoError(t, err)

	second, err := e.Run(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Extracted)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 1, second.FailedText, "failures are retried")

	e.Options.Force = true
	_, err = e.Run(ctx, nil)
	require.NoError(t, err)
	sum2, err := store.Checksum(ctx)
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2, "re-extraction leaves the same corpus")

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts["papers"])
	assert.Equal(t, 5, counts["researchers"], "Heithaus, Frid, Worm, Dulvy, Done")
}
