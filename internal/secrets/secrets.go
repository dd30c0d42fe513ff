// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads credentials kept out of chondro.yaml. Each file in
// the secrets directory holds one value; its name is the key.
//
// Recognized keys: openalex-email (contact address for the polite pools
// of OpenAlex, Crossref and Unpaywall) and mirror-proxy.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Secrets maps a key file name to its trimmed contents.
type Secrets map[string]string

// Value returns the secret for key, or "" when it is not set.
func (s Secrets) Value(key string) string {
	return s[key]
}

// Load reads every regular, non-hidden file in dir. A missing directory
// yields an empty set. Files that cannot be read are logged and skipped;
// files holding only whitespace are ignored.
func Load(dir string) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Secrets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := Secrets{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			s[name] = v
		}
	}
	return s, nil
}
