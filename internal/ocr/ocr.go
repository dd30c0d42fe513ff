// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ocr decides which PDFs lack a text layer and adds one with
// ocrmypdf. Originals are backed up before they are replaced, and every
// outcome is logged so that a file is never processed twice.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/chondro/internal/pdftext"
	"github.com/pdiddy/chondro/internal/tool"
	"github.com/pdiddy/chondro/pkg/types"
)

// Defaults applied when Options fields are zero.
const (
	DefaultMinTextLen = 100
	DefaultTimeout    = 300 * time.Second
	sampleLastPage    = 2
	maxErrorLen       = 200

	// exitAlreadyDone is ocrmypdf's status for a file that already has text.
	exitAlreadyDone = 6
)

// Log records and reports OCR outcomes. *corpus.Store implements it.
type Log interface {
	OCRStatuses(ctx context.Context) (map[string]types.OCRStatus, error)
	RecordOCR(ctx context.Context, e types.OCRLogEntry) error
}

// Options controls one gate run.
type Options struct {
	// Root is the canonical PDF store.
	Root string

	// BackupDir receives a copy of every original before OCR. Paths below
	// it mirror paths below Root.
	BackupDir string

	MinTextLen int
	Timeout    time.Duration
	Workers    int

	// RetryFailed reprocesses files logged as failed.
	RetryFailed bool
}

// Summary holds the outcome of a gate run.
type Summary struct {
	HasText     int
	Ran         int
	AlreadyDone int
	Failed      int
	Skipped     int
}

// Total returns the number of files examined this run.
func (s Summary) Total() int {
	return s.HasText + s.Ran + s.AlreadyDone + s.Failed
}

// HasFailures reports whether any file failed OCR.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Gate samples PDFs for text and runs OCR on those without.
type Gate struct {
	Log     Log
	Text    pdftext.Extractor
	Runner  *tool.Runner
	Options Options

	now func() time.Time
}

// Run processes every PDF under Root that has no terminal log entry.
// Files are handled in parallel by Options.Workers goroutines.
func (g *Gate) Run(ctx context.Context, w io.Writer) (Summary, error) {
	if w == nil {
		w = io.Discard
	}
	statuses, err := g.Log.OCRStatuses(ctx)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	var todo []string
	err = walkPDFs(g.Options.Root, g.Options.BackupDir, func(path string) {
		st, ok := statuses[path]
		if ok && (st != types.OCRFailed || !g.Options.RetryFailed) {
			summary.Skipped++
			return
		}
		todo = append(todo, path)
	})
	if err != nil {
		return summary, err
	}
	slog.Info("ocr gate", "root", g.Options.Root, "pending", len(todo), "skipped", summary.Skipped)

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers())
	for _, path := range todo {
		eg.Go(func() error {
			entry, err := g.Process(ctx, path)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			switch entry.Status {
			case types.OCRHasText:
				summary.HasText++
			case types.OCRRan:
				summary.Ran++
			case types.OCRAlreadyDone:
				summary.AlreadyDone++
			case types.OCRFailed:
				summary.Failed++
			}
			line := fmt.Sprintf("%-12s %s", entry.Status, path)
			if entry.Error != "" {
				line += " (" + entry.Error + ")"
			}
			fmt.Fprintln(w, line)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return summary, err
	}

	fmt.Fprintf(w, "\nOCR summary: %d has text, %d ocr ran, %d already done, %d failed, %d skipped\n",
		summary.HasText, summary.Ran, summary.AlreadyDone, summary.Failed, summary.Skipped)
	return summary, nil
}

// Process samples one PDF, runs OCR when it has too little text, and
// records the outcome. A returned error means nothing was logged: the
// context was cancelled, a tool is missing, or the log write failed.
func (g *Gate) Process(ctx context.Context, path string) (types.OCRLogEntry, error) {
	entry := types.OCRLogEntry{Path: path}

	text, err := g.Text.Text(ctx, path, 1, sampleLastPage)
	if ctx.Err() != nil {
		return entry, ctx.Err()
	}
	if errors.Is(err, tool.ErrToolMissing) {
		return entry, err
	}
	if err != nil {
		slog.Debug("text sample failed, treating as image-only", "path", path, "error", err)
	}
	entry.CharsSampled = utf8.RuneCountInString(strings.TrimSpace(text))

	if entry.CharsSampled >= g.minTextLen() {
		entry.Status = types.OCRHasText
		return entry, g.record(ctx, entry)
	}

	backup, err := g.backup(path)
	if err != nil {
		g.fail(&entry, types.ErrOCRFail, err)
		return entry, g.record(ctx, entry)
	}
	entry.BackupPath = backup

	status, err := g.ocr(ctx, path)
	switch {
	case errors.Is(err, tool.ErrToolMissing):
		return entry, err
	case ctx.Err() != nil:
		return entry, ctx.Err()
	case errors.Is(err, tool.ErrTimeout):
		g.fail(&entry, types.ErrOCRTimeout, err)
	case err != nil:
		g.fail(&entry, types.ErrOCRFail, err)
	default:
		entry.Status = status
	}
	return entry, g.record(ctx, entry)
}

// ocr runs ocrmypdf into a temp file beside path and renames it over the
// original on success. The temp file never survives a failure.
func (g *Gate) ocr(ctx context.Context, path string) (types.OCRStatus, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ocr-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	_, err = g.Runner.Run(ctx, g.timeout(), tool.OCRMyPDF,
		"--skip-text", "--fast", "--output-type", "pdf", path, tmpPath)
	if tool.ExitCode(err) == exitAlreadyDone {
		os.Remove(tmpPath)
		return types.OCRAlreadyDone, nil
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		os.Remove(tmpPath)
		return "", errors.New("ocrmypdf produced no output")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("replacing original: %w", err)
	}
	return types.OCRRan, nil
}

// backup copies path under BackupDir, mirroring its place below Root. An
// existing backup is never overwritten; the new copy gets a timestamp
// suffix instead.
func (g *Gate) backup(path string) (string, error) {
	if g.Options.BackupDir == "" {
		return "", nil
	}
	rel, err := filepath.Rel(g.Options.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	dst := filepath.Join(g.Options.BackupDir, rel)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(dst)
		dst = strings.TrimSuffix(dst, ext) + "_" + g.clock().UTC().Format("20060102T150405") + ext
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating backup folder: %w", err)
	}
	if err := copyFile(path, dst); err != nil {
		return "", fmt.Errorf("backing up %s: %w", path, err)
	}
	return dst, nil
}

func (g *Gate) fail(entry *types.OCRLogEntry, kind types.ErrorKind, err error) {
	entry.Status = types.OCRFailed
	entry.ErrorKind = kind
	entry.Error = truncate(err.Error(), maxErrorLen)
}

func (g *Gate) record(ctx context.Context, entry types.OCRLogEntry) error {
	entry.Timestamp = g.clock().UTC()
	return g.Log.RecordOCR(ctx, entry)
}

func (g *Gate) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

func (g *Gate) minTextLen() int {
	if g.Options.MinTextLen > 0 {
		return g.Options.MinTextLen
	}
	return DefaultMinTextLen
}

func (g *Gate) timeout() time.Duration {
	if g.Options.Timeout > 0 {
		return g.Options.Timeout
	}
	return DefaultTimeout
}

func (g *Gate) workers() int {
	if g.Options.Workers > 0 {
		return g.Options.Workers
	}
	return DefaultWorkers()
}

// DefaultWorkers is one less than the CPU count, and at least one.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// walkPDFs calls fn for every non-hidden PDF under root, skipping the
// backup tree when it lives inside root.
func walkPDFs(root, backupDir string, fn func(path string)) error {
	backupDir = filepath.Clean(backupDir)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || filepath.Clean(path) == backupDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			return nil
		}
		fn(path)
		return nil
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
