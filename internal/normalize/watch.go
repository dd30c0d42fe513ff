// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period Watch waits for after the last PDF
// event before running its callback.
const DefaultDebounce = 5 * time.Second

// Watcher runs OnChange after PDFs appear or change under Root.
type Watcher struct {
	Root     string
	Debounce time.Duration
	OnChange func(ctx context.Context) error
	Out      io.Writer
}

// Run watches Root and every folder below it until ctx is cancelled.
// Bursts of events collapse into one OnChange call. Callback errors are
// logged and watching continues.
func (wt *Watcher) Run(ctx context.Context) error {
	out := wt.Out
	if out == nil {
		out = io.Discard
	}
	debounce := wt.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, wt.Root); err != nil {
		return err
	}
	fmt.Fprintf(out, "watching %s\n", wt.Root)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(fw, ev.Name); err != nil {
						slog.Warn("watching new folder", "dir", ev.Name, "error", err)
					}
					pending = resetTimer(timer, debounce, pending)
					continue
				}
			}
			if !isWatchedPDF(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				slog.Debug("pdf event", "path", ev.Name, "op", ev.Op.String())
				pending = resetTimer(timer, debounce, pending)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)

		case <-timer.C:
			pending = false
			fmt.Fprintf(out, "changes settled, normalizing %s\n", wt.Root)
			if wt.OnChange == nil {
				continue
			}
			if err := wt.OnChange(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("normalize after change", "error", err)
			}
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration, pending bool) bool {
	if pending && !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
	return true
}

func isWatchedPDF(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".pdf")
}

// addTree watches dir and every non-hidden folder below it.
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
