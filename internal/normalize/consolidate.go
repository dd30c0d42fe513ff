// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/chondro/internal/naming"
)

// ConsolidateSummary counts what Consolidate did.
type ConsolidateSummary struct {
	Moved          int
	Dropped        int
	Renamed        int
	FoldersRemoved int

	// Review lists files moved under a _dupN name because a different
	// file already held the canonical name.
	Review []string
}

// Consolidate merges every YYYY.0 folder under root into YYYY. A file
// with no counterpart is moved. A counterpart with identical content
// means the source is dropped; any other counterpart means the source is
// moved under the next free _dupN name and flagged for review. Decimal
// folders left empty are deleted.
func Consolidate(ctx context.Context, root string, w io.Writer) (ConsolidateSummary, error) {
	if w == nil {
		w = io.Discard
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return ConsolidateSummary{}, fmt.Errorf("reading %s: %w", root, err)
	}

	var summary ConsolidateSummary
	for _, dir := range entries {
		if !dir.IsDir() {
			continue
		}
		year, ok := naming.DecimalYear(dir.Name())
		if !ok {
			continue
		}
		src := filepath.Join(root, dir.Name())
		dst := filepath.Join(root, year)
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return summary, fmt.Errorf("creating %s: %w", dst, err)
		}
		if err := mergeFolder(ctx, src, dst, w, &summary); err != nil {
			return summary, err
		}

		left, err := os.ReadDir(src)
		if err != nil {
			return summary, fmt.Errorf("reading %s: %w", src, err)
		}
		if len(left) == 0 {
			if err := os.Remove(src); err != nil {
				return summary, fmt.Errorf("removing %s: %w", src, err)
			}
			summary.FoldersRemoved++
			fmt.Fprintf(w, "removed folder %s\n", src)
		} else {
			slog.Warn("decimal year folder not empty after merge", "dir", src, "entries", len(left))
		}
	}

	sort.Strings(summary.Review)
	fmt.Fprintf(w, "\nConsolidate summary: %d moved, %d dropped, %d renamed, %d folders removed\n",
		summary.Moved, summary.Dropped, summary.Renamed, summary.FoldersRemoved)
	return summary, nil
}

func mergeFolder(ctx context.Context, src, dst string, w io.Writer, summary *ConsolidateSummary) error {
	files, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".pdf") {
			continue
		}
		from := filepath.Join(src, f.Name())
		info, err := f.Info()
		if err != nil {
			return err
		}

		to := filepath.Join(dst, f.Name())
		existing, err := os.Stat(to)
		if os.IsNotExist(err) {
			if err := os.Rename(from, to); err != nil {
				return fmt.Errorf("moving %s: %w", from, err)
			}
			summary.Moved++
			fmt.Fprintf(w, "moved   %s -> %s\n", from, to)
			continue
		}
		if err != nil {
			return err
		}
		same, err := sameContent(from, to, info.Size(), existing.Size())
		if err != nil {
			return err
		}

		if same {
			if err := os.Remove(from); err != nil {
				return fmt.Errorf("removing %s: %w", from, err)
			}
			summary.Dropped++
			fmt.Fprintf(w, "dropped %s (identical to %s)\n", from, to)
			continue
		}

		dup, err := freeDupName(to)
		if err != nil {
			return err
		}
		if err := os.Rename(from, dup); err != nil {
			return fmt.Errorf("moving %s: %w", from, err)
		}
		summary.Renamed++
		summary.Review = append(summary.Review, dup)
		fmt.Fprintf(w, "renamed %s -> %s (review)\n", from, dup)
	}
	return nil
}

// sameContent reports whether two files of the given sizes have equal
// SHA-256 sums. Files of different size are never hashed.
func sameContent(a, b string, sizeA, sizeB int64) (bool, error) {
	if sizeA != sizeB {
		return false, nil
	}
	sumA, err := hashFile(a)
	if err != nil {
		return false, err
	}
	sumB, err := hashFile(b)
	if err != nil {
		return false, err
	}
	return sumA == sumB, nil
}

// freeDupName returns the first _dupN variant of path that does not exist.
func freeDupName(path string) (string, error) {
	for n := 1; n < 1000; n++ {
		candidate := naming.DupName(path, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free _dupN name for %s", path)
}
