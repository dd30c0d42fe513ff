// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/chondro/internal/pdftext"
	"github.com/pdiddy/chondro/internal/tool"
	"github.com/pdiddy/chondro/pkg/types"
)

type memLog struct {
	mu      sync.Mutex
	entries map[string]types.OCRLogEntry
}

func newMemLog() *memLog {
	return &memLog{entries: make(map[string]types.OCRLogEntry)}
}

func (m *memLog) OCRStatuses(context.Context) (map[string]types.OCRStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.OCRStatus, len(m.entries))
	for p, e := range m.entries {
		out[p] = e.Status
	}
	return out, nil
}

func (m *memLog) RecordOCR(_ context.Context, e types.OCRLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Path] = e
	return nil
}

// fakeExecutor answers pdftotext from text and ocrmypdf from ocr, both
// keyed by the input file's base name.
type fakeExecutor struct {
	mu   sync.Mutex
	text map[string]string
	ocr  map[string]string // "ok", "exit6", "fail", "hang"
	runs int
}

func (f *fakeExecutor) LookPath(file string) (string, error) {
	return "/usr/bin/" + file, nil
}

func (f *fakeExecutor) Run(ctx context.Context, name string, args ...string) (tool.Result, error) {
	switch name {
	case tool.PDFToText:
		in := args[len(args)-2]
		return tool.Result{Stdout: []byte(f.text[filepath.Base(in)])}, nil
	case tool.OCRMyPDF:
		f.mu.Lock()
		f.runs++
		f.mu.Unlock()
		in, out := args[len(args)-2], args[len(args)-1]
		switch f.ocr[filepath.Base(in)] {
		case "ok":
			return tool.Result{}, os.WriteFile(out, []byte("%PDF ocr layer"), 0o644)
		case "exit6":
			return tool.Result{ExitCode: 6, Stderr: "page already has text"}, errors.New("exit status 6")
		case "hang":
			<-ctx.Done()
			return tool.Result{ExitCode: -1}, ctx.Err()
		default:
			return tool.Result{ExitCode: 2, Stderr: strings.Repeat("tesseract error ", 40)}, errors.New("exit status 2")
		}
	}
	return tool.Result{}, fmt.Errorf("unexpected command %s", name)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newGate(t *testing.T, fe *fakeExecutor, log Log) (*Gate, string, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "pdfs")
	backups := filepath.Join(t.TempDir(), "backups")
	runner := tool.NewRunnerWithExecutor(fe)
	return &Gate{
		Log:    log,
		Text:   &pdftext.Poppler{Runner: runner, Timeout: time.Second},
		Runner: runner,
		Options: Options{
			Root: root, BackupDir: backups,
			Timeout: 100 * time.Millisecond, Workers: 2,
		},
		now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}, root, backups
}

func TestRunOutcomes(t *testing.T) {
	fe := &fakeExecutor{
		text: map[string]string{
			"A.2020.Text layer.pdf": strings.Repeat("shark ", 30),
			"B.2020.Scanned.pdf":    "  ",
		},
		ocr: map[string]string{
			"B.2020.Scanned.pdf":         "ok",
			"C.2020.Mixed pages.pdf":     "exit6",
			"D.2020.Corrupt.pdf":         "fail",
			"E.2020.Very large scan.pdf": "hang",
		},
	}
	log := newMemLog()
	g, root, backups := newGate(t, fe, log)
	for _, name := range []string{"A.2020.Text layer.pdf", "B.2020.Scanned.pdf", "C.2020.Mixed pages.pdf", "D.2020.Corrupt.pdf", "E.2020.Very large scan.pdf"} {
		writeFile(t, filepath.Join(root, "2020", name), "%PDF original "+name)
	}
	writeFile(t, filepath.Join(root, "2020", "notes.txt"), "not a pdf")

	var out bytes.Buffer
	summary, err := g.Run(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, Summary{HasText: 1, Ran: 1, AlreadyDone: 1, Failed: 2}, summary)
	assert.True(t, summary.HasFailures())
	assert.Contains(t, out.String(), "OCR summary: 1 has text, 1 ocr ran")

	a := log.entries[filepath.Join(root, "2020", "A.2020.Text layer.pdf")]
	assert.Equal(t, types.OCRHasText, a.Status)
	assert.Equal(t, 179, a.CharsSampled)
	assert.Empty(t, a.BackupPath)

	scanned := filepath.Join(root, "2020", "B.2020.Scanned.pdf")
	b := log.entries[scanned]
	assert.Equal(t, types.OCRRan, b.Status)
	assert.Equal(t, filepath.Join(backups, "2020", "B.2020.Scanned.pdf"), b.BackupPath)
	data, err := os.ReadFile(scanned)
	require.NoError(t, err)
	assert.Equal(t, "%PDF ocr layer", string(data))
	data, err = os.ReadFile(b.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF original B.2020.Scanned.pdf", string(data))

	assert.Equal(t, types.OCRAlreadyDone, log.entries[filepath.Join(root, "2020", "C.2020.Mixed pages.pdf")].Status)

	corrupt := filepath.Join(root, "2020", "D.2020.Corrupt.pdf")
	d := log.entries[corrupt]
	assert.Equal(t, types.OCRFailed, d.Status)
	assert.Equal(t, types.ErrOCRFail, d.ErrorKind)
	assert.LessOrEqual(t, len([]rune(d.Error)), 200)
	data, err = os.ReadFile(corrupt)
	require.NoError(t, err)
	assert.Equal(t, "%PDF original D.2020.Corrupt.pdf", string(data), "original untouched")

	assert.Equal(t, types.ErrOCRTimeout, log.entries[filepath.Join(root, "2020", "E.2020.Very large scan.pdf")].ErrorKind)

	leftovers, err := filepath.Glob(filepath.Join(root, "2020", ".ocr-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files are removed")
}

func TestRunSkipsLoggedFiles(t *testing.T) {
	fe := &fakeExecutor{ocr: map[string]string{"B.2020.Scanned.pdf": "ok", "D.2020.Corrupt.pdf": "fail"}}
	log := newMemLog()
	g, root, _ := newGate(t, fe, log)
	writeFile(t, filepath.Join(root, "2020", "B.2020.Scanned.pdf"), "%PDF b")
	writeFile(t, filepath.Join(root, "2020", "D.2020.Corrupt.pdf"), "%PDF d")

	_, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, fe.runs)

	summary, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, summary.Total())
	assert.Equal(t, 2, fe.runs, "failures are not retried automatically")

	g.Options.RetryFailed = true
	summary, err = g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 3, fe.runs)
}

func TestBackupNeverOverwrites(t *testing.T) {
	g, root, backups := newGate(t, &fakeExecutor{}, newMemLog())
	src := filepath.Join(root, "2019", "Lea.2019.Scan.pdf")
	writeFile(t, src, "%PDF second")
	writeFile(t, filepath.Join(backups, "2019", "Lea.2019.Scan.pdf"), "%PDF first")

	dst, err := g.backup(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backups, "2019", "Lea.2019.Scan_20260301T120000.pdf"), dst)

	data, err := os.ReadFile(filepath.Join(backups, "2019", "Lea.2019.Scan.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF first", string(data))
}

func TestProcessMissingTool(t *testing.T) {
	g, root, _ := newGate(t, &fakeExecutor{}, newMemLog())
	g.Text = &pdftext.Poppler{Runner: tool.NewRunnerWithExecutor(missingExecutor{}), Timeout: time.Second}
	path := filepath.Join(root, "2020", "A.2020.X.pdf")
	writeFile(t, path, "%PDF")

	_, err := g.Process(context.Background(), path)
	assert.ErrorIs(t, err, tool.ErrToolMissing)
	assert.Empty(t, g.Log.(*memLog).entries, "nothing is logged when a tool is missing")
}

type missingExecutor struct{}

func (missingExecutor) LookPath(string) (string, error) { return "", errors.New("not found") }

func (missingExecutor) Run(context.Context, string, ...string) (tool.Result, error) {
	return tool.Result{}, &exec.Error{Name: tool.PDFToText, Err: exec.ErrNotFound}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
}
