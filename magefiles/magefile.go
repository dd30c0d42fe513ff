//go:build mage

// Package main contains Mage build targets for chondro developer tooling.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/pdiddy/chondro/internal/corpus"
	"github.com/pdiddy/chondro/internal/extract"
	"github.com/pdiddy/chondro/internal/queue"
)

// projectDirs lists the working directories the pipeline expects.
var projectDirs = []string{
	"data",
	"pdfs",
	"pdfs_backup",
}

const (
	dataDir    = "data"
	queuePath  = "data/queue.db"
	corpusPath = "data/corpus.db"
)

// Init creates the working directories and writes the default lookup
// tables into data/ when they are missing.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	written, err := extract.WriteDefaults(dataDir)
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Println("  ", p)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "chondro"
	cmdPkg  = "./cmd/chondro"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// All tests then builds.
func All() {
	mg.SerialDeps(Test, Build)
}

// Stats prints Go line counts and, when the stores exist, queue and
// corpus row counts.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}
	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)

	ctx := context.Background()
	if _, err := os.Stat(queuePath); err == nil {
		q, err := queue.Open(queuePath)
		if err != nil {
			return err
		}
		defer q.Close()
		st, err := q.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Queue items:                    %d (%d pending, %d downloaded last hour)\n",
			st.Total, st.Pending(), st.LastHour)
	}
	if _, err := os.Stat(corpusPath); err == nil {
		s, err := corpus.Open(corpusPath)
		if err != nil {
			return err
		}
		defer s.Close()
		counts, err := s.TableCounts(ctx)
		if err != nil {
			return err
		}
		tables := make([]string, 0, len(counts))
		for t := range counts {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Printf("  %-28s %d\n", t, counts[t])
		}
	}
	return nil
}

// countGoLines walks the tree and counts non-blank lines in Go files.
// If testOnly is true, count only _test.go files; otherwise count non-test .go files.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") != testOnly {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				total++
			}
		}
		return nil
	})
	return total, err
}
