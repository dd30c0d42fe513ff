package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// Mailto is the contact address sent to resolvers that run a polite pool.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty" mapstructure:"mailto"`
}

// QueueConfig locates the work queue and sizes claims.
type QueueConfig struct {
	// Path is the SQLite file backing the queue.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// BatchSize is the number of items claimed per downloader iteration.
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
}

// HunterConfig holds settings for the DOI hunter.
type HunterConfig struct {
	// AcceptThreshold is the minimum title similarity for a candidate DOI.
	AcceptThreshold float64 `json:"accept_threshold" yaml:"accept_threshold" mapstructure:"accept_threshold"`

	// MinYear drops records older than this year.
	MinYear int `json:"min_year" yaml:"min_year" mapstructure:"min_year"`

	// TopK is the number of resolver candidates scored per record.
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// Delay is the pause between resolver calls.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`

	// CommitEvery checkpoints the hunter cursor after this many records.
	CommitEvery int `json:"commit_every" yaml:"commit_every" mapstructure:"commit_every"`

	// Resolver selects the metadata resolver: crossref or openalex.
	Resolver string `json:"resolver" yaml:"resolver" mapstructure:"resolver"`
}

// DownloadConfig holds settings for the PDF downloader and its adapters.
type DownloadConfig struct {
	// AdapterOrder lists adapter names in priority order.
	AdapterOrder []string `json:"adapter_order" yaml:"adapter_order" mapstructure:"adapter_order"`

	// PolitenessDelaySeconds maps adapter name to its minimum spacing between calls.
	PolitenessDelaySeconds map[string]float64 `json:"politeness_delay_s" yaml:"politeness_delay_s" mapstructure:"politeness_delay_s"`

	// LeaseTimeoutSeconds is how long an item may stay in_flight before the
	// sweeper returns it to pending.
	LeaseTimeoutSeconds int `json:"lease_timeout_s" yaml:"lease_timeout_s" mapstructure:"lease_timeout_s"`

	// ItemDelay is the pause between queue items.
	ItemDelay time.Duration `json:"item_delay" yaml:"item_delay" mapstructure:"item_delay"`

	// IdleSleep is the pause when the queue is empty but the hunter is still running.
	IdleSleep time.Duration `json:"idle_sleep" yaml:"idle_sleep" mapstructure:"idle_sleep"`

	// MirrorBase is the landing-page base URL of the last-resort mirror.
	MirrorBase string `json:"mirror_base,omitempty" yaml:"mirror_base,omitempty" mapstructure:"mirror_base"`

	// MirrorProxy routes mirror traffic through a proxy (socks5:// or http://).
	MirrorProxy string `json:"mirror_proxy,omitempty" yaml:"mirror_proxy,omitempty" mapstructure:"mirror_proxy"`

	// BrowserCommand is the helper invoked as: command <url> <download-dir>.
	BrowserCommand string `json:"browser_command,omitempty" yaml:"browser_command,omitempty" mapstructure:"browser_command"`

	// BrowserTimeout bounds a single browser-driven fetch.
	BrowserTimeout time.Duration `json:"browser_timeout" yaml:"browser_timeout" mapstructure:"browser_timeout"`

	// PublisherTemplates maps a DOI prefix to a PDF URL template containing {doi}.
	PublisherTemplates map[string]string `json:"publisher_templates,omitempty" yaml:"publisher_templates,omitempty" mapstructure:"publisher_templates"`
}

// LeaseTimeout returns the lease as a duration.
func (c DownloadConfig) LeaseTimeout() time.Duration {
	return time.Duration(c.LeaseTimeoutSeconds) * time.Second
}

// PolitenessDelay returns the configured delay for adapter name, or def.
func (c DownloadConfig) PolitenessDelay(name string, def time.Duration) time.Duration {
	if s, ok := c.PolitenessDelaySeconds[name]; ok && s >= 0 {
		return time.Duration(s * float64(time.Second))
	}
	return def
}

// PDFConfig locates the canonical PDF store.
type PDFConfig struct {
	// Root is the directory holding <year>/<canonical>.pdf.
	Root string `json:"root" yaml:"root" mapstructure:"root"`
}

// NormalizeConfig holds settings for the PDF normalizer.
type NormalizeConfig struct {
	// PlanPath is where `normalize plan` writes the reviewable CSV.
	PlanPath string `json:"plan_path" yaml:"plan_path" mapstructure:"plan_path"`

	// AuditPath receives one CSV row per applied decision.
	AuditPath string `json:"audit_path" yaml:"audit_path" mapstructure:"audit_path"`

	// UnparsablePath lists PDF names the parser rejected.
	UnparsablePath string `json:"unparsable_path" yaml:"unparsable_path" mapstructure:"unparsable_path"`

	TitleThreshold      float64       `json:"title_threshold" yaml:"title_threshold" mapstructure:"title_threshold"`
	SupplementThreshold float64       `json:"supplement_threshold" yaml:"supplement_threshold" mapstructure:"supplement_threshold"`
	Debounce            time.Duration `json:"debounce" yaml:"debounce" mapstructure:"debounce"`
}

// OCRConfig holds settings for the OCR gate.
type OCRConfig struct {
	MinTextLen         int    `json:"min_text_len" yaml:"min_text_len" mapstructure:"min_text_len"`
	TimeoutSeconds     int    `json:"timeout_s" yaml:"timeout_s" mapstructure:"timeout_s"`
	TextTimeoutSeconds int    `json:"text_timeout_s" yaml:"text_timeout_s" mapstructure:"text_timeout_s"`
	Workers            int    `json:"workers" yaml:"workers" mapstructure:"workers"`
	BackupDir          string `json:"backup_dir" yaml:"backup_dir" mapstructure:"backup_dir"`
}

// ExtractionConfig holds settings for the signal extraction engine.
type ExtractionConfig struct {
	Workers            int    `json:"workers" yaml:"workers" mapstructure:"workers"`
	MaxTextChars       int    `json:"max_text_chars" yaml:"max_text_chars" mapstructure:"max_text_chars"`
	ContextChars       int    `json:"context_chars" yaml:"context_chars" mapstructure:"context_chars"`
	BatchSize          int    `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	TextBackend        string `json:"text_backend" yaml:"text_backend" mapstructure:"text_backend"`
	TextTimeoutSeconds int    `json:"text_timeout_s" yaml:"text_timeout_s" mapstructure:"text_timeout_s"`
}

// FileConfig locates one lookup file that parameterizes extraction.
type FileConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// CorpusConfig locates the relational store.
type CorpusConfig struct {
	Path      string `json:"path" yaml:"path" mapstructure:"path"`
	ExportDir string `json:"export_dir" yaml:"export_dir" mapstructure:"export_dir"`
}

// MonitorConfig holds settings for the progress monitor.
type MonitorConfig struct {
	Interval  time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`
	HunterLog string        `json:"hunter_log,omitempty" yaml:"hunter_log,omitempty" mapstructure:"hunter_log"`
}

// Config groups all stage configurations for the pipeline.
type Config struct {
	HTTP       HTTPConfig       `json:"http" yaml:"http" mapstructure:"http"`
	Queue      QueueConfig      `json:"queue" yaml:"queue" mapstructure:"queue"`
	DOI        HunterConfig     `json:"doi" yaml:"doi" mapstructure:"doi"`
	Download   DownloadConfig   `json:"download" yaml:"download" mapstructure:"download"`
	PDF        PDFConfig        `json:"pdf" yaml:"pdf" mapstructure:"pdf"`
	Normalize  NormalizeConfig  `json:"normalize" yaml:"normalize" mapstructure:"normalize"`
	OCR        OCRConfig        `json:"ocr" yaml:"ocr" mapstructure:"ocr"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Taxonomy   FileConfig       `json:"taxonomy" yaml:"taxonomy" mapstructure:"taxonomy"`
	Countries  FileConfig       `json:"countries" yaml:"countries" mapstructure:"countries"`
	Oceans     FileConfig       `json:"oceans" yaml:"oceans" mapstructure:"oceans"`
	Species    FileConfig       `json:"species" yaml:"species" mapstructure:"species"`
	Corpus     CorpusConfig     `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
	Monitor    MonitorConfig    `json:"monitor" yaml:"monitor" mapstructure:"monitor"`
}
