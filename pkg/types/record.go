// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the chondro pipeline.
// Bibliographic records and queue items flow through acquisition; the
// relational rows in corpus.go are produced by signal extraction.
package types

import "time"

// Record is one row of the upstream bibliographic dump.
type Record struct {
	// LiteratureID is the stable external key from the upstream database.
	LiteratureID string `json:"literature_id" yaml:"literature_id" parquet:"literature_id"`

	// DOI is the normalized DOI, empty when unknown.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty" parquet:"doi,optional"`

	// Year is the publication year; zero means unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty" parquet:"year,optional"`

	// Authors is the raw author string as supplied upstream.
	Authors string `json:"authors" yaml:"authors" parquet:"authors,optional"`

	// Title is the raw title string.
	Title string `json:"title" yaml:"title" parquet:"title,optional"`

	// Journal is the journal or venue name.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty" parquet:"journal,optional"`

	// PDFHint is an optional upstream URL that may point at a PDF or embed a DOI.
	PDFHint string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty" parquet:"pdf_url,optional"`
}

// HasYear reports whether the record carries a known publication year.
func (r Record) HasYear() bool { return r.Year > 0 }

// QueueStatus is the lifecycle state of a QueueItem.
type QueueStatus string

const (
	StatusPending  QueueStatus = "pending"
	StatusInFlight QueueStatus = "in_flight"
	StatusSuccess  QueueStatus = "success"
	StatusFailed   QueueStatus = "failed"
	StatusSkipped  QueueStatus = "skipped"
)

// Terminal reports whether s ends the lifecycle of a queue item.
func (s QueueStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// SourceTag records how an item entered the queue.
type SourceTag string

const (
	SourceSeeded SourceTag = "seeded"
	SourceHunted SourceTag = "hunted"
)

// ErrorKind tags a per-item failure. Every failure in the pipeline is
// recorded as one of these rather than propagated.
type ErrorKind string

const (
	ErrNone                ErrorKind = ""
	ErrDOINormalizeFail    ErrorKind = "doi_normalize_fail"
	ErrAdapterMiss         ErrorKind = "adapter_miss"
	ErrAdapterBlocked      ErrorKind = "adapter_blocked"
	ErrContentNotPDF       ErrorKind = "content_not_pdf"
	ErrFilesystemCollision ErrorKind = "filesystem_collision"
	ErrTextExtractTimeout  ErrorKind = "text_extract_timeout"
	ErrTextExtractEmpty    ErrorKind = "text_extract_empty"
	ErrOCRTimeout          ErrorKind = "ocr_timeout"
	ErrOCRFail             ErrorKind = "ocr_fail"
	ErrParseFilenameFail   ErrorKind = "parse_filename_fail"
	ErrCountryAmbiguous    ErrorKind = "country_ambiguous"
	ErrWriteFail           ErrorKind = "write_fail"
)

// QueueItem is a unit of work in the download queue.
type QueueItem struct {
	ID           int64       `json:"id" yaml:"id"`
	Record       Record      `json:"record" yaml:"record"`
	Source       SourceTag   `json:"source" yaml:"source"`
	Priority     int         `json:"priority" yaml:"priority"`
	Status       QueueStatus `json:"status" yaml:"status"`
	Confidence   float64     `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	MatchedTitle string      `json:"matched_title,omitempty" yaml:"matched_title,omitempty"`
	PDFPath      string      `json:"pdf_path,omitempty" yaml:"pdf_path,omitempty"`
	ErrorKind    ErrorKind   `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	AddedAt      time.Time   `json:"added_at" yaml:"added_at"`
	ClaimedAt    time.Time   `json:"claimed_at,omitempty" yaml:"claimed_at,omitempty"`
	FinishedAt   time.Time   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// ActivityLogEntry is an append-only audit row.
type ActivityLogEntry struct {
	ID        int64     `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Process   string    `json:"process" yaml:"process"`
	Action    string    `json:"action" yaml:"action"`
	Details   string    `json:"details" yaml:"details"`
}
