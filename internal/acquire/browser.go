// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/chondro/internal/tool"
	"github.com/pdiddy/chondro/pkg/types"
)

// browserPollInterval spaces download-directory checks. Tests shorten it.
var browserPollInterval = time.Second

// partialSuffixes mark files a browser is still writing.
var partialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

const defaultBrowserTimeout = 2 * time.Minute

// Browser drives an external browser helper that saves the PDF reached
// from the DOI landing page. The helper is invoked as
// `command <url> <download-dir>` with a fresh directory per item.
type Browser struct {
	base
	runner  *tool.Runner
	command string
	timeout time.Duration
	tempDir string
}

// NewBrowser returns the browser-driven adapter.
func NewBrowser(runner *tool.Runner, command string, timeout time.Duration, tempDir string, delay time.Duration) *Browser {
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	return &Browser{
		base:    base{name: NameBrowser, delay: delay, needsDOI: true},
		runner:  runner,
		command: command,
		timeout: timeout,
		tempDir: tempDir,
	}
}

// TryFetch implements Adapter. The download directory is polled until a
// completed file keeps the same size across two polls; the directory is
// removed before returning.
func (b *Browser) TryFetch(ctx context.Context, rec types.Record) Result {
	dir, err := os.MkdirTemp(b.tempDir, "chondro-browser-*")
	if err != nil {
		return transient(fmt.Sprintf("creating download dir: %v", err))
	}
	defer os.RemoveAll(dir)

	target := "https://doi.org/" + rec.DOI
	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	done := make(chan error, 1)
	go func() {
		_, err := b.runner.Run(runCtx, 0, b.command, target, dir)
		done <- err
	}()
	exited := false
	defer func() {
		cancel()
		if !exited {
			<-done
		}
	}()

	ticker := time.NewTicker(browserPollInterval)
	defer ticker.Stop()

	var lastName string
	lastSize := int64(-1)
	for {
		select {
		case <-runCtx.Done():
			if ctx.Err() != nil {
				return transient(ctx.Err().Error())
			}
			return transient("browser_timeout")

		case err := <-done:
			exited = true
			if name, _, ok := completedFile(dir); ok {
				return b.read(dir, name, target)
			}
			if runCtx.Err() != nil {
				return transient("browser_timeout")
			}
			if errors.Is(err, tool.ErrToolMissing) {
				return miss(err.Error())
			}
			if err != nil {
				return miss(fmt.Sprintf("browser_failed: %v", err))
			}
			return miss("browser_no_file")

		case <-ticker.C:
			name, size, ok := completedFile(dir)
			if ok && size > 0 && name == lastName && size == lastSize {
				return b.read(dir, name, target)
			}
			lastName, lastSize = name, size
		}
	}
}

func (b *Browser) read(dir, name, target string) Result {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return transient(fmt.Sprintf("reading browser download: %v", err))
	}
	if !IsPDF(data) {
		return Result{Outcome: Miss, Detail: string(types.ErrContentNotPDF), SourceURL: target}
	}
	return Result{Outcome: OK, Data: data, ContentType: "application/pdf", SourceURL: target}
}

// completedFile returns the largest regular file in dir that is not a
// partial download.
func completedFile(dir string) (string, int64, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, false
	}
	var name string
	size := int64(-1)
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") || isPartial(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > size {
			name, size = e.Name(), info.Size()
		}
	}
	return name, size, name != ""
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
