// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/chondro/pkg/types"
)

// DefaultBatchSize is the number of papers committed per transaction.
const DefaultBatchSize = 100

// Store is the relational model as the engine sees it. *corpus.Store
// implements it.
type Store interface {
	ExtractionStatuses(ctx context.Context) (map[string]types.ExtractionStatus, error)
	OCRStatuses(ctx context.Context) (map[string]types.OCRStatus, error)
	MarkExtracting(ctx context.Context, paperIDs []string, runID string, force bool) error
	WriteBatch(ctx context.Context, runID string, results []types.PaperResult) error
}

// DOISource maps downloaded PDF paths to their DOIs. *queue.Store
// implements it.
type DOISource interface {
	DownloadedDOIs(ctx context.Context) (map[string]string, error)
}

// Options controls one engine run.
type Options struct {
	// Root is the canonical PDF store.
	Root string

	Workers   int
	BatchSize int

	// Force re-extracts papers already logged as success.
	Force bool

	// IgnoreOCR extracts PDFs the OCR gate has not seen yet.
	IgnoreOCR bool

	// Limit caps the number of papers extracted; zero means no cap.
	Limit int
}

// Summary holds the outcome of an engine run.
type Summary struct {
	RunID         string
	Extracted     int
	FailedText    int
	FailedTimeout int
	Skipped       int
	AwaitingOCR   int
}

// Total returns the number of papers extracted or failed this run.
func (s Summary) Total() int {
	return s.Extracted + s.FailedText + s.FailedTimeout
}

// HasFailures reports whether any paper failed.
func (s Summary) HasFailures() bool {
	return s.FailedText+s.FailedTimeout > 0
}

// Engine runs extraction over the PDF store.
type Engine struct {
	Store     Store
	Extractor *Extractor

	// DOIs is optional. When set, results carry the DOI the paper was
	// downloaded under.
	DOIs DOISource

	Options Options
}

type job struct {
	path string
	id   string
}

// Run extracts every PDF under Root that still needs it. Workers analyse
// papers in parallel; a single writer commits results in batches, so a
// run stopped midway keeps every batch already written.
func (e *Engine) Run(ctx context.Context, w io.Writer) (Summary, error) {
	if w == nil {
		w = io.Discard
	}
	summary := Summary{RunID: uuid.NewString()}

	jobs, err := e.plan(ctx, &summary)
	if err != nil {
		return summary, err
	}
	slog.Info("extraction", "run", summary.RunID, "papers", len(jobs),
		"skipped", summary.Skipped, "awaiting_ocr", summary.AwaitingOCR)
	if len(jobs) == 0 {
		printSummary(w, summary)
		return summary, nil
	}

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.id
	}
	if err := e.Store.MarkExtracting(ctx, ids, summary.RunID, e.Options.Force); err != nil {
		return summary, err
	}

	dois := map[string]string{}
	if e.DOIs != nil {
		byPath, err := e.DOIs.DownloadedDOIs(ctx)
		if err != nil {
			return summary, err
		}
		for path, doi := range byPath {
			dois[PaperID(path)] = doi
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	paths := make(chan job)
	results := make(chan types.PaperResult)

	eg.Go(func() error {
		defer close(paths)
		for _, j := range jobs {
			select {
			case paths <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for range e.workers() {
		workers.Add(1)
		eg.Go(func() error {
			defer workers.Done()
			for j := range paths {
				r, err := e.Extractor.Extract(ctx, j.path)
				if err != nil {
					return fmt.Errorf("extracting %s: %w", j.path, err)
				}
				r.DOI = dois[r.PaperID]
				select {
				case results <- r:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	eg.Go(func() error {
		workers.Wait()
		close(results)
		return nil
	})

	eg.Go(func() error {
		return e.write(ctx, summary.RunID, results, w, &summary)
	})

	if err := eg.Wait(); err != nil {
		return summary, err
	}
	printSummary(w, summary)
	return summary, nil
}

// write is the single writer: it batches results and commits each batch
// in one transaction.
func (e *Engine) write(ctx context.Context, runID string, results <-chan types.PaperResult, w io.Writer, summary *Summary) error {
	size := e.Options.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	batch := make([]types.PaperResult, 0, size)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.Store.WriteBatch(ctx, runID, batch); err != nil {
			return fmt.Errorf("writing batch: %w", err)
		}
		slog.Debug("batch committed", "run", runID, "papers", len(batch))
		batch = batch[:0]
		return nil
	}

	for r := range results {
		switch r.Status {
		case types.ExtractionSuccess:
			summary.Extracted++
			fmt.Fprintf(w, "extracted %s (%d techniques, %d authors)\n", r.PaperID, len(r.Techniques), len(r.Authors))
		case types.ExtractionFailedTimeout:
			summary.FailedTimeout++
			fmt.Fprintf(w, "failed    %s: %s\n", r.PaperID, r.Error)
		default:
			summary.FailedText++
			fmt.Fprintf(w, "failed    %s: %s\n", r.PaperID, r.Error)
		}
		batch = append(batch, r)
		if len(batch) == size {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// plan lists the PDFs to extract, counting those skipped as already done
// or still waiting for the OCR gate.
func (e *Engine) plan(ctx context.Context, summary *Summary) ([]job, error) {
	statuses, err := e.Store.ExtractionStatuses(ctx)
	if err != nil {
		return nil, err
	}
	var ocr map[string]types.OCRStatus
	if !e.Options.IgnoreOCR {
		if ocr, err = e.Store.OCRStatuses(ctx); err != nil {
			return nil, err
		}
	}

	var jobs []job
	seen := make(map[string]string)
	err = filepath.WalkDir(e.Options.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != e.Options.Root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			return nil
		}

		id := PaperID(path)
		if prev, dup := seen[id]; dup {
			slog.Warn("duplicate paper id, keeping first", "paper", id, "kept", prev, "ignored", path)
			return nil
		}
		seen[id] = path

		if statuses[id] == types.ExtractionSuccess && !e.Options.Force {
			summary.Skipped++
			return nil
		}
		if ocr != nil && !ocrTerminal(ocr[path]) {
			summary.AwaitingOCR++
			return nil
		}
		if e.Options.Limit > 0 && len(jobs) >= e.Options.Limit {
			return nil
		}
		jobs = append(jobs, job{path: path, id: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", e.Options.Root, err)
	}
	return jobs, nil
}

func ocrTerminal(s types.OCRStatus) bool {
	switch s {
	case types.OCRHasText, types.OCRRan, types.OCRAlreadyDone, types.OCRFailed:
		return true
	}
	return false
}

func (e *Engine) workers() int {
	if e.Options.Workers > 0 {
		return e.Options.Workers
	}
	return max(runtime.NumCPU()-1, 1)
}

func printSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\nExtraction summary: %d extracted, %d failed (text), %d failed (timeout), %d skipped, %d awaiting OCR\n",
		s.Extracted, s.FailedText, s.FailedTimeout, s.Skipped, s.AwaitingOCR)
}
