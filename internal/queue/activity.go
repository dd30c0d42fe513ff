// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/chondro/pkg/types"
)

// Log appends an activity row.
func (s *Store) Log(ctx context.Context, process, action, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (timestamp, process, action, details) VALUES (?, ?, ?, ?)`,
		s.stamp(), process, action, details,
	)
	if err != nil {
		return fmt.Errorf("logging %s/%s: %w", process, action, err)
	}
	return nil
}

// Activity returns log rows for process written at or after since,
// oldest first. An empty process matches every producer.
func (s *Store) Activity(ctx context.Context, process string, since time.Time) ([]types.ActivityLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, process, action, details FROM activity_log
		 WHERE (? = '' OR process = ?) AND timestamp >= ?
		 ORDER BY id`,
		process, process, since.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var entries []types.ActivityLogEntry
	for rows.Next() {
		var e types.ActivityLogEntry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Process, &e.Action, &e.Details); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HunterDone reports whether the most recent hunter lifecycle entry is
// hunter_done. A hunter that restarts logs hunter_start, which clears it.
func (s *Store) HunterDone(ctx context.Context) (bool, error) {
	var action string
	err := s.db.QueryRowContext(ctx,
		`SELECT action FROM activity_log
		 WHERE process = ? AND action IN (?, ?)
		 ORDER BY id DESC LIMIT 1`,
		ProcessHunter, ActionHunterStart, ActionHunterDone,
	).Scan(&action)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking hunter status: %w", err)
	}
	return action == ActionHunterDone, nil
}

// Stats summarizes the queue.
type Stats struct {
	ByStatus map[types.QueueStatus]int
	BySource map[types.SourceTag]int
	Total    int

	// LastHour is the number of successful downloads in the past hour.
	LastHour int
}

// Pending returns the number of items waiting to be claimed.
func (s Stats) Pending() int { return s.ByStatus[types.StatusPending] }

// Stats returns counts by status and source plus one-hour throughput.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		ByStatus: map[types.QueueStatus]int{},
		BySource: map[types.SourceTag]int{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, source, count(*) FROM download_queue GROUP BY status, source`)
	if err != nil {
		return st, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, source string
		var n int
		if err := rows.Scan(&status, &source, &n); err != nil {
			return st, fmt.Errorf("scanning stats: %w", err)
		}
		st.ByStatus[types.QueueStatus(status)] += n
		st.BySource[types.SourceTag(source)] += n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	st.LastHour, err = s.Throughput(ctx, time.Hour)
	return st, err
}

// Throughput counts successful downloads finished within window.
func (s *Store) Throughput(ctx context.Context, window time.Duration) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM download_queue WHERE status = 'success' AND download_timestamp >= ?`,
		s.now().Add(-window).UTC().Format(timeFormat),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying throughput: %w", err)
	}
	return n, nil
}

// Recent returns up to n items in status, most recently finished first.
// An empty status matches every item.
func (s *Store) Recent(ctx context.Context, status types.QueueStatus, n int) ([]types.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM download_queue
		 WHERE (? = '' OR status = ?) ORDER BY download_timestamp DESC, id DESC LIMIT ?`,
		string(status), string(status), n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent %s: %w", status, err)
	}
	defer rows.Close()

	var items []types.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recent item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
