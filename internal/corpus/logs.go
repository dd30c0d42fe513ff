// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/chondro/pkg/types"
)

// ExtractionStatuses returns the logged status of every paper.
func (s *Store) ExtractionStatuses(ctx context.Context) (map[string]types.ExtractionStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT paper_id, status FROM extraction_log`)
	if err != nil {
		return nil, fmt.Errorf("querying extraction log: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.ExtractionStatus)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scanning extraction log: %w", err)
		}
		out[id] = types.ExtractionStatus(status)
	}
	return out, rows.Err()
}

// ExtractionCounts returns the number of papers in each logged status.
func (s *Store) ExtractionCounts(ctx context.Context) (map[types.ExtractionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM extraction_log GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting extraction log: %w", err)
	}
	defer rows.Close()

	out := make(map[types.ExtractionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning extraction counts: %w", err)
		}
		out[types.ExtractionStatus(status)] = n
	}
	return out, rows.Err()
}

// RecordOCR upserts the OCR log row for entry.Path.
func (s *Store) RecordOCR(ctx context.Context, e types.OCRLogEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ocr_log (path, status, chars_sampled, backup_path, error_kind, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			status = excluded.status, chars_sampled = excluded.chars_sampled,
			backup_path = excluded.backup_path, error_kind = excluded.error_kind,
			error = excluded.error, timestamp = excluded.timestamp`,
		e.Path, string(e.Status), e.CharsSampled, e.BackupPath,
		string(e.ErrorKind), e.Error, ts.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("recording ocr status for %s: %w", e.Path, err)
	}
	return nil
}

// OCRStatuses returns the logged OCR status keyed by path.
func (s *Store) OCRStatuses(ctx context.Context) (map[string]types.OCRStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, status FROM ocr_log`)
	if err != nil {
		return nil, fmt.Errorf("querying ocr log: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.OCRStatus)
	for rows.Next() {
		var path, status string
		if err := rows.Scan(&path, &status); err != nil {
			return nil, fmt.Errorf("scanning ocr log: %w", err)
		}
		out[path] = types.OCRStatus(status)
	}
	return out, rows.Err()
}

// OCREntry returns the OCR log row for path. ok is false when the path
// has never been logged.
func (s *Store) OCREntry(ctx context.Context, path string) (types.OCRLogEntry, bool, error) {
	var e types.OCRLogEntry
	var status, kind, ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT path, status, chars_sampled, backup_path, error_kind, error, timestamp
		 FROM ocr_log WHERE path = ?`, path,
	).Scan(&e.Path, &status, &e.CharsSampled, &e.BackupPath, &kind, &e.Error, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("reading ocr log for %s: %w", path, err)
	}
	e.Status = types.OCRStatus(status)
	e.ErrorKind = types.ErrorKind(kind)
	e.Timestamp, _ = time.Parse(timeFormat, ts)
	return e, true, nil
}

// RecordOA upserts the open-access status for a DOI. It satisfies
// acquire.OARecorder.
func (s *Store) RecordOA(ctx context.Context, st types.OpenAccessStatus) error {
	if st.DOI == "" {
		return errors.New("open access status without doi")
	}
	checked := st.CheckedAt
	if checked.IsZero() {
		checked = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO open_access_status (doi, status, is_oa, oa_url, license, version, host_type,
			journal_is_oa, journal_is_in_doaj, source, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(doi) DO UPDATE SET
			status = excluded.status, is_oa = excluded.is_oa, oa_url = excluded.oa_url,
			license = excluded.license, version = excluded.version, host_type = excluded.host_type,
			journal_is_oa = excluded.journal_is_oa, journal_is_in_doaj = excluded.journal_is_in_doaj,
			source = excluded.source, checked_at = excluded.checked_at`,
		st.DOI, string(st.Status), boolInt(st.IsOA), nullString(st.OAURL), nullString(st.License),
		nullString(st.Version), nullString(st.HostType), nullBool(st.JournalIsOA), nullBool(st.JournalInDOAJ),
		st.Source, checked.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("recording open access status for %s: %w", st.DOI, err)
	}
	return nil
}

// OpenAccess returns the recorded status for a DOI.
func (s *Store) OpenAccess(ctx context.Context, doi string) (types.OpenAccessStatus, bool, error) {
	var st types.OpenAccessStatus
	var status, checked string
	var isOA int
	var oaURL, license, version, hostType sql.NullString
	var journalOA, doaj sql.NullBool
	err := s.db.QueryRowContext(ctx,
		`SELECT doi, status, is_oa, oa_url, license, version, host_type,
			journal_is_oa, journal_is_in_doaj, source, checked_at
		 FROM open_access_status WHERE doi = ?`, doi,
	).Scan(&st.DOI, &status, &isOA, &oaURL, &license, &version, &hostType, &journalOA, &doaj, &st.Source, &checked)
	if errors.Is(err, sql.ErrNoRows) {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("reading open access status for %s: %w", doi, err)
	}
	st.Status = types.OAStatus(status)
	st.IsOA = isOA != 0
	st.OAURL, st.License, st.Version, st.HostType = oaURL.String, license.String, version.String, hostType.String
	if journalOA.Valid {
		v := journalOA.Bool
		st.JournalIsOA = &v
	}
	if doaj.Valid {
		v := doaj.Bool
		st.JournalInDOAJ = &v
	}
	st.CheckedAt, _ = time.Parse(timeFormat, checked)
	return st, true, nil
}
