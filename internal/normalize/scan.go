// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize keeps the canonical PDF store tidy: it finds
// duplicate papers and plans their removal, applies reviewed plans with
// an audit trail, merges decimal year folders, and can watch the store
// for new files.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/chondro/internal/naming"
)

// File is one PDF found under the store root.
type File struct {
	Path   string
	Name   string
	Size   int64
	Parsed naming.Parsed
	Type   naming.FileType
}

// bucket is the author+year key duplicates are searched within.
func (f File) bucket() string {
	return strings.ToLower(f.Parsed.Author) + "|" + naming.YearFolder(f.Parsed.Year)
}

// Scan walks root and parses every PDF name. Names that do not parse are
// returned separately and left untouched. Hidden files and in-progress
// downloads are skipped.
func Scan(root string) ([]File, []string, error) {
	var files []File
	var unparsable []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		p, err := naming.Parse(name)
		if err != nil {
			unparsable = append(unparsable, path)
			return nil
		}
		files = append(files, File{
			Path:   path,
			Name:   name,
			Size:   info.Size(),
			Parsed: p,
			Type:   naming.Classify(name),
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	sort.Strings(unparsable)
	return files, unparsable, nil
}

// WriteUnparsable lists names that could not be parsed, one per line.
func WriteUnparsable(w io.Writer, paths []string) error {
	for _, p := range paths {
		if _, err := fmt.Fprintln(w, p); err != nil {
			return err
		}
	}
	return nil
}

// hashFile returns the hex SHA-256 of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hasher caches file hashes for one planning pass.
type hasher struct {
	sums map[string]string
}

func (h *hasher) sum(path string) (string, error) {
	if s, ok := h.sums[path]; ok {
		return s, nil
	}
	s, err := hashFile(path)
	if err != nil {
		return "", err
	}
	if h.sums == nil {
		h.sums = make(map[string]string)
	}
	h.sums[path] = s
	return s, nil
}
