// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdiddy/chondro/internal/naming"
	"github.com/pdiddy/chondro/pkg/types"
)

// Placement describes where Place put a document.
type Placement struct {
	Path string

	// Reused is true when an identical file already sat at Path.
	Reused bool

	// Collisions counts differing files skipped before Path was chosen.
	Collisions int
}

// maxDup bounds the _dupN search.
const maxDup = 1000

// Place writes data to <root>/<year>/<canonical>.pdf. An existing file
// with the same SHA-256 is reused; a differing one pushes the name to
// the next free _dupN suffix. Writes go to a temp file in the target
// directory and are renamed into place.
func Place(root string, rec types.Record, data []byte) (Placement, error) {
	target := naming.Path(root, rec)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Placement{}, fmt.Errorf("creating directory %s: %w", dir, err)
	}
	sum := sha256.Sum256(data)

	var p Placement
	for n := 0; n < maxDup; n++ {
		path := naming.DupName(target, n)
		same, err := sameContent(path, sum[:])
		switch {
		case os.IsNotExist(err):
			if err := writeAtomic(path, data); err != nil {
				return Placement{}, err
			}
			p.Path = path
			return p, nil
		case err != nil:
			return Placement{}, err
		case same:
			p.Path, p.Reused = path, true
			return p, nil
		}
		p.Collisions++
	}
	return Placement{}, fmt.Errorf("no free name for %s after %d collisions", target, maxDup)
}

// sameContent reports whether the file at path hashes to sum. The error
// satisfies os.IsNotExist when there is no such file.
func sameContent(path string, sum []byte) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, fmt.Errorf("hashing %s: %w", path, err)
	}
	return bytes.Equal(h.Sum(nil), sum), nil
}

// writeAtomic writes data to a temp file beside path, then renames it.
func writeAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
