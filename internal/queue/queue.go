// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package queue is the durable work queue shared by the DOI hunter, the
// PDF downloader, and the monitor. It is a single SQLite file in WAL mode
// so one producer, one consumer, and any number of readers can use it
// from separate processes.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/chondro/internal/doi"
	"github.com/pdiddy/chondro/pkg/types"
)

// PriorityFloor is the lowest priority an item can carry. Records with
// an unknown year get the floor.
const PriorityFloor = 1900

// Process tags written to the activity log.
const (
	ProcessSeeder     = "seeder"
	ProcessHunter     = "hunter"
	ProcessDownloader = "downloader"
	ProcessOperator   = "operator"
)

// Activity actions with meaning to other processes.
const (
	ActionHunterStart = "hunter_start"
	ActionHunterDone  = "hunter_done"
)

// timeFormat is fixed width so timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

var (
	// ErrNotInFlight is returned by Finish when the item is not currently
	// claimed. The row is left unchanged.
	ErrNotInFlight = errors.New("queue item is not in_flight")

	// ErrNotFound is returned when an item id does not exist.
	ErrNotFound = errors.New("queue item not found")
)

// Store is the SQLite-backed work queue.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the queue database at path and ensures its schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating queue directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening queue database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating queue schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS download_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			literature_id TEXT NOT NULL,
			doi TEXT NOT NULL UNIQUE,
			year INTEGER NOT NULL DEFAULT 0,
			authors TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			journal TEXT NOT NULL DEFAULT '',
			pdf_url TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			priority INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			confidence REAL NOT NULL DEFAULT 0,
			matched_title TEXT NOT NULL DEFAULT '',
			added_timestamp TEXT NOT NULL,
			claimed_timestamp TEXT,
			download_timestamp TEXT,
			pdf_path TEXT,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_claim ON download_queue(status, priority DESC, id)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_literature ON download_queue(literature_id)`,
		`CREATE TABLE IF NOT EXISTS progress (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			process TEXT NOT NULL,
			action TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_process ON activity_log(process, timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeFormat)
}

// Priority derives a queue priority from a publication year.
func Priority(year int) int {
	if year < PriorityFloor {
		return PriorityFloor
	}
	return year
}

// SeedSummary holds counts from a seeding run.
type SeedSummary struct {
	Inserted   int
	Duplicates int
	NoDOI      int
}

// Total returns the number of records considered.
func (s SeedSummary) Total() int {
	return s.Inserted + s.Duplicates + s.NoDOI
}

// Seed bulk-inserts records as pending seeded items. Records whose DOI
// is already queued are ignored; records without a recoverable DOI are
// counted and left for the hunter.
func (s *Store) Seed(ctx context.Context, recs []types.Record) (SeedSummary, error) {
	var summary SeedSummary

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return summary, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := s.stamp()
	for _, rec := range recs {
		d, err := doi.Normalize(rec.DOI)
		if err != nil {
			summary.NoDOI++
			continue
		}
		rec.DOI = d
		inserted, err := execInsert(ctx, stmt, rec, types.SourceSeeded, 0, "", now)
		if err != nil {
			return summary, fmt.Errorf("seeding %s: %w", rec.LiteratureID, err)
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Duplicates++
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO activity_log (timestamp, process, action, details) VALUES (?, ?, ?, ?)`,
		now, ProcessSeeder, "seed",
		fmt.Sprintf("inserted=%d duplicates=%d no_doi=%d", summary.Inserted, summary.Duplicates, summary.NoDOI),
	); err != nil {
		return summary, fmt.Errorf("logging seed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing seed: %w", err)
	}
	return summary, nil
}

// AddHunted inserts a record whose DOI was found by the hunter. It
// returns false when the DOI is already queued.
func (s *Store) AddHunted(ctx context.Context, rec types.Record, d string, confidence float64, matchedTitle string) (bool, error) {
	norm, err := doi.Normalize(d)
	if err != nil {
		return false, fmt.Errorf("adding %s: %w", rec.LiteratureID, err)
	}
	rec.DOI = norm

	stmt, err := s.db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return false, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	return execInsert(ctx, stmt, rec, types.SourceHunted, confidence, matchedTitle, s.stamp())
}

const insertSQL = `INSERT OR IGNORE INTO download_queue
	(literature_id, doi, year, authors, title, journal, pdf_url, source, priority, status, confidence, matched_title, added_timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?)`

func execInsert(ctx context.Context, stmt *sql.Stmt, rec types.Record, source types.SourceTag, confidence float64, matched, now string) (bool, error) {
	res, err := stmt.ExecContext(ctx,
		rec.LiteratureID, rec.DOI, rec.Year, rec.Authors, rec.Title, rec.Journal, rec.PDFHint,
		string(source), Priority(rec.Year), confidence, matched, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const itemColumns = `id, literature_id, doi, year, authors, title, journal, pdf_url, source, priority,
	status, confidence, matched_title, added_timestamp,
	COALESCE(claimed_timestamp, ''), COALESCE(download_timestamp, ''),
	COALESCE(pdf_path, ''), COALESCE(error_message, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (types.QueueItem, error) {
	var it types.QueueItem
	var source, status, errKind, added, claimed, finished string
	err := row.Scan(
		&it.ID, &it.Record.LiteratureID, &it.Record.DOI, &it.Record.Year, &it.Record.Authors,
		&it.Record.Title, &it.Record.Journal, &it.Record.PDFHint, &source, &it.Priority,
		&status, &it.Confidence, &it.MatchedTitle, &added, &claimed, &finished,
		&it.PDFPath, &errKind,
	)
	if err != nil {
		return it, err
	}
	it.Source = types.SourceTag(source)
	it.Status = types.QueueStatus(status)
	it.ErrorKind = types.ErrorKind(errKind)
	it.AddedAt = parseTime(added)
	it.ClaimedAt = parseTime(claimed)
	it.FinishedAt = parseTime(finished)
	return it, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ClaimNextBatch atomically moves up to n pending items to in_flight and
// returns them ordered by priority descending, then id ascending.
func (s *Store) ClaimNextBatch(ctx context.Context, n int) ([]types.QueueItem, error) {
	if n <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`UPDATE download_queue SET status = 'in_flight', claimed_timestamp = ?
		 WHERE id IN (
			SELECT id FROM download_queue WHERE status = 'pending'
			ORDER BY priority DESC, id ASC LIMIT ?
		 )
		 RETURNING `+itemColumns,
		s.stamp(), n,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming batch: %w", err)
	}

	var items []types.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning claimed item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("reading claimed items: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	// RETURNING does not preserve the subquery order.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// Finish moves an in_flight item to a terminal status. It returns
// ErrNotInFlight when the item is in any other state, so a second Finish
// on the same id is rejected and the row keeps its first outcome.
func (s *Store) Finish(ctx context.Context, id int64, status types.QueueStatus, pdfPath string, kind types.ErrorKind) error {
	if !status.Terminal() {
		return fmt.Errorf("finishing item %d: %q is not a terminal status", id, status)
	}
	if status == types.StatusSuccess && pdfPath == "" {
		return fmt.Errorf("finishing item %d: success requires a pdf path", id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE download_queue
		 SET status = ?, pdf_path = NULLIF(?, ''), error_message = NULLIF(?, ''), download_timestamp = ?
		 WHERE id = ? AND status = 'in_flight'`,
		string(status), pdfPath, string(kind), s.stamp(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing item %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing item %d: %w", id, ErrNotInFlight)
	}
	return nil
}

// Get returns one item by id.
func (s *Store) Get(ctx context.Context, id int64) (types.QueueItem, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM download_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return it, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return it, fmt.Errorf("reading item %d: %w", id, err)
	}
	return it, nil
}

// ResetExpired returns in_flight items whose claim is older than lease
// to pending. It is the idle sweeper that recovers from crashed or
// cancelled consumers.
func (s *Store) ResetExpired(ctx context.Context, lease time.Duration) (int, error) {
	cutoff := s.now().Add(-lease).UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx,
		`UPDATE download_queue SET status = 'pending', claimed_timestamp = NULL
		 WHERE status = 'in_flight' AND (claimed_timestamp IS NULL OR claimed_timestamp <= ?)`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("resetting expired leases: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// RequeueFilter selects terminal items for an operator retry.
type RequeueFilter struct {
	// Status defaults to failed.
	Status types.QueueStatus

	// ErrorKind, when set, limits the retry to one failure tag.
	ErrorKind types.ErrorKind
}

// Requeue returns matching terminal items to pending and clears their
// outcome columns.
func (s *Store) Requeue(ctx context.Context, f RequeueFilter) (int, error) {
	status := f.Status
	if status == "" {
		status = types.StatusFailed
	}
	if !status.Terminal() {
		return 0, fmt.Errorf("requeue: %q is not a terminal status", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE download_queue
		 SET status = 'pending', claimed_timestamp = NULL, download_timestamp = NULL,
		     pdf_path = NULL, error_message = NULL
		 WHERE status = ? AND (? = '' OR error_message = ?)`,
		string(status), string(f.ErrorKind), string(f.ErrorKind),
	)
	if err != nil {
		return 0, fmt.Errorf("requeueing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		details := fmt.Sprintf("status=%s error_kind=%s count=%d", status, f.ErrorKind, n)
		if err := s.Log(ctx, ProcessOperator, "requeue", details); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

// HasLiterature reports whether a literature_id is already queued under
// any DOI.
func (s *Store) HasLiterature(ctx context.Context, literatureID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM download_queue WHERE literature_id = ?`, literatureID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking literature %s: %w", literatureID, err)
	}
	return n > 0, nil
}

// DownloadedDOIs maps the pdf_path of every successful item to its DOI.
func (s *Store) DownloadedDOIs(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pdf_path, doi FROM download_queue WHERE status = 'success' AND pdf_path IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("querying downloaded items: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, doi string
		if err := rows.Scan(&path, &doi); err != nil {
			return nil, fmt.Errorf("scanning downloaded item: %w", err)
		}
		out[path] = doi
	}
	return out, rows.Err()
}

// SetProgress records a named checkpoint.
func (s *Store) SetProgress(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (key, value, updated_timestamp) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_timestamp = excluded.updated_timestamp`,
		key, value, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("setting progress %s: %w", key, err)
	}
	return nil
}

// GetProgress reads a checkpoint. The boolean is false when the key has
// never been set.
func (s *Store) GetProgress(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM progress WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading progress %s: %w", key, err)
	}
	return v, true, nil
}
