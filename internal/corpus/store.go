// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus is the relational model populated by the extraction
// engine: papers, technique mentions, discipline assignments, researchers,
// collaborations, institutions, and geography. It also holds the
// extraction and OCR logs that make both stages resumable, and the
// open-access status recorded by the acquisition adapters.
package corpus

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeFormat is fixed width so timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Store is the SQLite-backed corpus database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the corpus database at path and ensures its
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating corpus directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening corpus database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating corpus schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeFormat)
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			paper_id TEXT PRIMARY KEY,
			year INTEGER,
			doi TEXT,
			pdf_path TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi)`,
		`CREATE TABLE IF NOT EXISTS technique_mentions (
			paper_id TEXT NOT NULL REFERENCES papers(paper_id),
			technique_name TEXT NOT NULL,
			primary_discipline TEXT NOT NULL,
			mention_count INTEGER NOT NULL,
			context_sample TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (paper_id, technique_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mentions_technique ON technique_mentions(technique_name)`,
		`CREATE TABLE IF NOT EXISTS discipline_assignments (
			paper_id TEXT NOT NULL REFERENCES papers(paper_id),
			year INTEGER,
			discipline_code TEXT NOT NULL,
			assignment_type TEXT NOT NULL CHECK (assignment_type IN ('primary', 'cross_cutting')),
			technique_count INTEGER NOT NULL,
			PRIMARY KEY (paper_id, discipline_code),
			CHECK (assignment_type = 'primary' OR discipline_code = 'DATA')
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_discipline_year ON discipline_assignments(discipline_code, year)`,
		`CREATE TABLE IF NOT EXISTS researchers (
			researcher_id INTEGER PRIMARY KEY AUTOINCREMENT,
			surname TEXT NOT NULL UNIQUE,
			first_paper_year INTEGER,
			last_paper_year INTEGER,
			country TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS authorship (
			paper_id TEXT NOT NULL REFERENCES papers(paper_id),
			researcher_id INTEGER NOT NULL REFERENCES researchers(researcher_id),
			author_position INTEGER NOT NULL,
			is_lead_author INTEGER NOT NULL,
			PRIMARY KEY (paper_id, author_position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_authorship_researcher ON authorship(researcher_id)`,
		`CREATE TABLE IF NOT EXISTS collaborations (
			researcher_id_1 INTEGER NOT NULL REFERENCES researchers(researcher_id),
			researcher_id_2 INTEGER NOT NULL REFERENCES researchers(researcher_id),
			first_year INTEGER,
			last_year INTEGER,
			collaboration_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (researcher_id_1, researcher_id_2),
			CHECK (researcher_id_1 < researcher_id_2)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collaborations_r2 ON collaborations(researcher_id_2)`,
		`CREATE TABLE IF NOT EXISTS paper_collaborations (
			paper_id TEXT NOT NULL,
			researcher_id_1 INTEGER NOT NULL,
			researcher_id_2 INTEGER NOT NULL,
			PRIMARY KEY (paper_id, researcher_id_1, researcher_id_2)
		)`,
		`CREATE TABLE IF NOT EXISTS institutions (
			institution_id INTEGER PRIMARY KEY AUTOINCREMENT,
			institution_name TEXT NOT NULL UNIQUE,
			country TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS paper_geography (
			paper_id TEXT PRIMARY KEY REFERENCES papers(paper_id),
			first_author_institution TEXT,
			first_author_country TEXT,
			first_author_region TEXT,
			study_country TEXT,
			study_ocean_basin TEXT,
			study_latitude REAL,
			study_longitude REAL,
			study_location_text TEXT,
			has_author_country INTEGER NOT NULL,
			has_study_location INTEGER NOT NULL,
			is_parachute_research INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_geography_author_country ON paper_geography(first_author_country)`,
		`CREATE TABLE IF NOT EXISTS species_mentions (
			paper_id TEXT NOT NULL REFERENCES papers(paper_id),
			species TEXT NOT NULL,
			mention_count INTEGER NOT NULL,
			PRIMARY KEY (paper_id, species)
		)`,
		`CREATE TABLE IF NOT EXISTS open_access_status (
			doi TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			is_oa INTEGER NOT NULL,
			oa_url TEXT,
			license TEXT,
			version TEXT,
			host_type TEXT,
			journal_is_oa INTEGER,
			journal_is_in_doaj INTEGER,
			source TEXT NOT NULL DEFAULT '',
			checked_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS extraction_log (
			paper_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			techniques_found INTEGER NOT NULL DEFAULT 0,
			authors_found INTEGER NOT NULL DEFAULT 0,
			error_kind TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			extraction_date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extraction_status ON extraction_log(status)`,
		`CREATE TABLE IF NOT EXISTS ocr_log (
			path TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			chars_sampled INTEGER NOT NULL DEFAULT 0,
			backup_path TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// nullString maps "" to NULL.
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// nullYear maps unknown years (0) to NULL.
func nullYear(y int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(y), Valid: y > 0}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
