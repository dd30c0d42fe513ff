// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/chondro/internal/acquire"
	"github.com/pdiddy/chondro/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chondro.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"), "")
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.DOI.AcceptThreshold)
	assert.Equal(t, 2010, cfg.DOI.MinYear)
	assert.Equal(t, 5, cfg.DOI.TopK)
	assert.Equal(t, time.Second, cfg.DOI.Delay)
	assert.Equal(t, 25, cfg.DOI.CommitEvery)
	assert.Equal(t, "crossref", cfg.DOI.Resolver)

	assert.Equal(t, acquire.DefaultOrder, cfg.Download.AdapterOrder)
	assert.Equal(t, 1.0, cfg.Download.PolitenessDelaySeconds["unpaywall"])
	assert.Equal(t, 10*time.Minute, cfg.Download.LeaseTimeout())
	assert.Equal(t, 30*time.Second, cfg.Download.IdleSleep)
	assert.Empty(t, cfg.Download.MirrorBase)

	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "chondro/0.1", cfg.HTTP.UserAgent)
	assert.Equal(t, "data/queue.db", cfg.Queue.Path)
	assert.Equal(t, 100, cfg.Queue.BatchSize)
	assert.Equal(t, "pdfs", cfg.PDF.Root)

	assert.Equal(t, "data/normalize_plan.csv", cfg.Normalize.PlanPath)
	assert.Equal(t, 0.6, cfg.Normalize.TitleThreshold)
	assert.Equal(t, 5*time.Second, cfg.Normalize.Debounce)

	assert.Equal(t, 100, cfg.OCR.MinTextLen)
	assert.Equal(t, 300, cfg.OCR.TimeoutSeconds)
	assert.Equal(t, DefaultWorkers(), cfg.OCR.Workers)
	assert.Equal(t, "pdfs_backup", cfg.OCR.BackupDir)

	assert.Equal(t, 500_000, cfg.Extraction.MaxTextChars)
	assert.Equal(t, 100, cfg.Extraction.ContextChars)
	assert.Equal(t, "pdftotext", cfg.Extraction.TextBackend)
	assert.Equal(t, 10, cfg.Extraction.TextTimeoutSeconds)
	assert.GreaterOrEqual(t, cfg.Extraction.Workers, 1)

	assert.Equal(t, "data/taxonomy.yaml", cfg.Taxonomy.Path)
	assert.Equal(t, "data/species.yaml", cfg.Species.Path)
	assert.Equal(t, "data/corpus.db", cfg.Corpus.Path)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
doi:
  accept_threshold: 0.8
  resolver: openalex
download:
  adapter_order: [unpaywall, arxiv]
  politeness_delay_s:
    arxiv: 3
extraction:
  text_backend: native
`)
	t.Setenv("CHONDRO_PDF_ROOT", "/srv/pdfs")
	t.Setenv("CHONDRO_EXTRACTION_WORKERS", "3")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.DOI.AcceptThreshold)
	assert.Equal(t, "openalex", cfg.DOI.Resolver)
	assert.Equal(t, []string{"unpaywall", "arxiv"}, cfg.Download.AdapterOrder)
	assert.Equal(t, 3*time.Second, cfg.Download.PolitenessDelay("arxiv", time.Second))
	assert.Equal(t, "native", cfg.Extraction.TextBackend)
	assert.Equal(t, "/srv/pdfs", cfg.PDF.Root)
	assert.Equal(t, 3, cfg.Extraction.Workers)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SecretMailto), []byte("lab@example.org\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SecretMirrorProxy), []byte("socks5://127.0.0.1:9050"), 0o600))

	cfg, err := Load(writeConfig(t, "http:\n  mailto: set@example.org\n"), dir)
	require.NoError(t, err)
	assert.Equal(t, "set@example.org", cfg.HTTP.Mailto, "config wins over secrets")
	assert.Equal(t, "socks5://127.0.0.1:9050", cfg.Download.MirrorProxy)
}

func TestValidate(t *testing.T) {
	valid := func() types.Config {
		cfg, err := Load(writeConfig(t, "{}\n"), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*types.Config)
	}{
		{"threshold above one", func(c *types.Config) { c.DOI.AcceptThreshold = 1.5 }},
		{"negative threshold", func(c *types.Config) { c.Normalize.TitleThreshold = -0.1 }},
		{"empty adapter order", func(c *types.Config) { c.Download.AdapterOrder = nil }},
		{"unknown adapter", func(c *types.Config) { c.Download.AdapterOrder = []string{"hint", "scihub"} }},
		{"negative politeness", func(c *types.Config) { c.Download.PolitenessDelaySeconds["hint"] = -1 }},
		{"negative workers", func(c *types.Config) { c.Extraction.Workers = -2 }},
		{"negative ocr workers", func(c *types.Config) { c.OCR.Workers = -1 }},
		{"unknown resolver", func(c *types.Config) { c.DOI.Resolver = "scopus" }},
		{"unknown backend", func(c *types.Config) { c.Extraction.TextBackend = "tesseract" }},
		{"zero batch", func(c *types.Config) { c.Queue.BatchSize = 0 }},
		{"empty corpus path", func(c *types.Config) { c.Corpus.Path = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, Validate(cfg), ErrInvalid)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"), "")
	require.NoError(t, err)
	cfg.DOI.AcceptThreshold = 2
	cfg.Extraction.Workers = -1

	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doi.accept_threshold")
	assert.Contains(t, err.Error(), "extraction.workers")
}
