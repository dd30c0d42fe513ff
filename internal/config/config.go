// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads pipeline settings. Environment variables with the
// CHONDRO_ prefix override chondro.yaml, and files in the secrets
// directory fill credentials that neither sets.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/chondro/internal/acquire"
	"github.com/pdiddy/chondro/internal/secrets"
	"github.com/pdiddy/chondro/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. CHONDRO_PDF_ROOT.
const EnvPrefix = "CHONDRO"

// Secret file names read from the secrets directory.
const (
	SecretMailto      = "openalex-email"
	SecretMirrorProxy = "mirror-proxy"
)

// ErrInvalid marks a configuration value that failed validation.
var ErrInvalid = errors.New("invalid configuration")

// DefaultWorkers leaves one CPU for the writer and the OS.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// SetDefaults registers every key with its default so that environment
// overrides apply even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", "chondro/0.1")
	v.SetDefault("http.mailto", "")

	v.SetDefault("queue.path", "data/queue.db")
	v.SetDefault("queue.batch_size", 100)

	v.SetDefault("doi.accept_threshold", 0.7)
	v.SetDefault("doi.min_year", 2010)
	v.SetDefault("doi.top_k", 5)
	v.SetDefault("doi.delay", "1s")
	v.SetDefault("doi.commit_every", 25)
	v.SetDefault("doi.resolver", "crossref")

	v.SetDefault("download.adapter_order", acquire.DefaultOrder)
	delays := make(map[string]float64, len(acquire.DefaultOrder))
	for _, name := range acquire.DefaultOrder {
		delays[name] = acquire.DefaultPolitenessDelay.Seconds()
	}
	v.SetDefault("download.politeness_delay_s", delays)
	v.SetDefault("download.lease_timeout_s", 600)
	v.SetDefault("download.item_delay", "0s")
	v.SetDefault("download.idle_sleep", "30s")
	v.SetDefault("download.mirror_base", "")
	v.SetDefault("download.mirror_proxy", "")
	v.SetDefault("download.browser_command", "")
	v.SetDefault("download.browser_timeout", "2m")
	v.SetDefault("download.publisher_templates", map[string]string{})

	v.SetDefault("pdf.root", "pdfs")

	v.SetDefault("normalize.plan_path", "data/normalize_plan.csv")
	v.SetDefault("normalize.audit_path", "data/normalize_audit.csv")
	v.SetDefault("normalize.unparsable_path", "data/unparsable.txt")
	v.SetDefault("normalize.title_threshold", 0.6)
	v.SetDefault("normalize.supplement_threshold", 0.5)
	v.SetDefault("normalize.debounce", "5s")

	v.SetDefault("ocr.min_text_len", 100)
	v.SetDefault("ocr.timeout_s", 300)
	v.SetDefault("ocr.text_timeout_s", 10)
	v.SetDefault("ocr.workers", DefaultWorkers())
	v.SetDefault("ocr.backup_dir", "pdfs_backup")

	v.SetDefault("extraction.workers", DefaultWorkers())
	v.SetDefault("extraction.max_text_chars", 500_000)
	v.SetDefault("extraction.context_chars", 100)
	v.SetDefault("extraction.batch_size", 100)
	v.SetDefault("extraction.text_backend", "pdftotext")
	v.SetDefault("extraction.text_timeout_s", 10)

	v.SetDefault("taxonomy.path", "data/taxonomy.yaml")
	v.SetDefault("countries.path", "data/countries.yaml")
	v.SetDefault("oceans.path", "data/oceans.yaml")
	v.SetDefault("species.path", "data/species.yaml")

	v.SetDefault("corpus.path", "data/corpus.db")
	v.SetDefault("corpus.export_dir", "data/export")

	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.hunter_log", "")
}

// New returns a viper instance with defaults, the environment binding,
// and the config search path. An empty file searches ./chondro.yaml and
// ~/.config/chondro/chondro.yaml.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("chondro")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "chondro"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (when present), applies secrets from
// secretsDir, and validates the result. An explicitly named file that
// cannot be read is an error; a missing default file is not.
func Load(file, secretsDir string) (types.Config, error) {
	v := New(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("%w: reading config: %v", ErrInvalid, err)
		}
	} else {
		slog.Debug("using config file", "path", v.ConfigFileUsed())
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: decoding config: %v", ErrInvalid, err)
	}

	if secretsDir != "" {
		s, err := secrets.Load(secretsDir)
		if err != nil {
			return cfg, err
		}
		ApplySecrets(&cfg, s)
	}

	return cfg, Validate(cfg)
}

// ApplySecrets fills credentials the config left empty.
func ApplySecrets(cfg *types.Config, s secrets.Secrets) {
	if cfg.HTTP.Mailto == "" {
		cfg.HTTP.Mailto = s.Value(SecretMailto)
	}
	if cfg.Download.MirrorProxy == "" {
		cfg.Download.MirrorProxy = s.Value(SecretMirrorProxy)
	}
}

// Validate reports every invalid value, each wrapping ErrInvalid.
func Validate(cfg types.Config) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if t := cfg.DOI.AcceptThreshold; t < 0 || t > 1 {
		bad("doi.accept_threshold %v outside [0,1]", t)
	}
	if cfg.DOI.TopK < 1 {
		bad("doi.top_k must be at least 1, got %d", cfg.DOI.TopK)
	}
	if cfg.DOI.CommitEvery < 1 {
		bad("doi.commit_every must be at least 1, got %d", cfg.DOI.CommitEvery)
	}
	if r := cfg.DOI.Resolver; r != "crossref" && r != "openalex" {
		bad("doi.resolver %q is not crossref or openalex", r)
	}

	if len(cfg.Download.AdapterOrder) == 0 {
		bad("download.adapter_order is empty")
	}
	for _, name := range cfg.Download.AdapterOrder {
		if !slices.Contains(acquire.DefaultOrder, strings.ToLower(strings.TrimSpace(name))) {
			bad("download.adapter_order: unknown adapter %q", name)
		}
	}
	for name, s := range cfg.Download.PolitenessDelaySeconds {
		if s < 0 {
			bad("download.politeness_delay_s.%s is negative", name)
		}
	}
	if cfg.Download.LeaseTimeoutSeconds <= 0 {
		bad("download.lease_timeout_s must be positive, got %d", cfg.Download.LeaseTimeoutSeconds)
	}
	if cfg.Queue.BatchSize < 1 {
		bad("queue.batch_size must be at least 1, got %d", cfg.Queue.BatchSize)
	}

	for key, th := range map[string]float64{
		"normalize.title_threshold":      cfg.Normalize.TitleThreshold,
		"normalize.supplement_threshold": cfg.Normalize.SupplementThreshold,
	} {
		if th < 0 || th > 1 {
			bad("%s %v outside [0,1]", key, th)
		}
	}

	if cfg.OCR.Workers < 0 {
		bad("ocr.workers is negative")
	}
	if cfg.OCR.MinTextLen < 0 {
		bad("ocr.min_text_len is negative")
	}
	if cfg.Extraction.Workers < 0 {
		bad("extraction.workers is negative")
	}
	if cfg.Extraction.BatchSize < 1 {
		bad("extraction.batch_size must be at least 1, got %d", cfg.Extraction.BatchSize)
	}
	if cfg.Extraction.MaxTextChars < 1 {
		bad("extraction.max_text_chars must be positive")
	}
	if b := cfg.Extraction.TextBackend; b != "pdftotext" && b != "native" {
		bad("extraction.text_backend %q is not pdftotext or native", b)
	}

	for key, p := range map[string]string{
		"queue.path":  cfg.Queue.Path,
		"pdf.root":    cfg.PDF.Root,
		"corpus.path": cfg.Corpus.Path,
	} {
		if strings.TrimSpace(p) == "" {
			bad("%s is empty", key)
		}
	}

	return errors.Join(errs...)
}
