// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var planHeader = []string{"plan_id", "action", "path", "keep_path", "reason", "size", "sha256"}

var auditHeader = []string{"timestamp", "plan_id", "action", "path", "keep_path", "sha256", "result"}

// Audit results written by ApplyPlan.
const (
	ResultRemoved      = "removed"
	ResultRelocated    = "relocated"
	ResultMissing      = "missing"
	ResultHashChanged  = "hash_changed"
	ResultKeepMissing  = "keep_missing"
	ResultTargetExists = "target_exists"
)

// WritePlan writes plan as CSV with a header row.
func WritePlan(w io.Writer, plan Plan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(planHeader); err != nil {
		return err
	}
	for _, e := range plan.Entries {
		row := []string{plan.ID, string(e.Action), e.Path, e.KeepPath, e.Reason, strconv.FormatInt(e.Size, 10), e.SHA256}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SavePlan writes plan to path through a temp file and rename.
func SavePlan(path string, plan Plan) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating plan directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".plan-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := WritePlan(tmp, plan); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing plan: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing plan: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming plan: %w", err)
	}
	return nil
}

// ReadPlan parses a plan written by WritePlan.
func ReadPlan(r io.Reader) (Plan, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(planHeader)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Plan{}, errors.New("plan is empty")
	}
	if err != nil {
		return Plan{}, fmt.Errorf("reading plan header: %w", err)
	}
	for i, col := range planHeader {
		if header[i] != col {
			return Plan{}, fmt.Errorf("plan column %d is %q, want %q", i+1, header[i], col)
		}
	}

	var plan Plan
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Plan{}, fmt.Errorf("reading plan: %w", err)
		}
		size, err := strconv.ParseInt(row[5], 10, 64)
		if err != nil {
			return Plan{}, fmt.Errorf("plan row for %s: bad size %q", row[2], row[5])
		}
		if plan.ID == "" {
			plan.ID = row[0]
		}
		plan.Entries = append(plan.Entries, Entry{
			Action: Action(row[1]), Path: row[2], KeepPath: row[3],
			Reason: row[4], Size: size, SHA256: row[6],
		})
	}
	return plan, nil
}

// LoadPlan reads a plan CSV from path.
func LoadPlan(path string) (Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return Plan{}, fmt.Errorf("opening plan: %w", err)
	}
	defer f.Close()
	return ReadPlan(f)
}

// ApplySummary counts what ApplyPlan did.
type ApplySummary struct {
	Removed   int
	Relocated int
	Missing   int
	Changed   int
	Skipped   int
}

// Total returns the number of actionable entries seen.
func (s ApplySummary) Total() int {
	return s.Removed + s.Relocated + s.Missing + s.Changed + s.Skipped
}

// ApplyPlan carries out the remove and relocate entries of plan. A file
// is only removed when it still hashes to the recorded SHA-256 and its
// surviving copy still exists. Every decision is appended to the audit
// CSV at auditPath.
func ApplyPlan(ctx context.Context, plan Plan, auditPath string, w io.Writer) (ApplySummary, error) {
	if w == nil {
		w = io.Discard
	}
	audit, err := openAudit(auditPath)
	if err != nil {
		return ApplySummary{}, err
	}
	defer audit.close()

	var summary ApplySummary
	for _, e := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		var result string
		switch e.Action {
		case ActionRemove:
			result, err = applyRemove(e)
		case ActionRelocate:
			result, err = applyRelocate(e)
		default:
			continue
		}
		if err != nil {
			return summary, err
		}

		switch result {
		case ResultRemoved:
			summary.Removed++
		case ResultRelocated:
			summary.Relocated++
		case ResultMissing:
			summary.Missing++
		case ResultHashChanged:
			summary.Changed++
		default:
			summary.Skipped++
		}
		fmt.Fprintf(w, "%-13s %s\n", result, e.Path)
		if err := audit.write(plan.ID, e, result); err != nil {
			return summary, err
		}
	}

	fmt.Fprintf(w, "\nApply summary: %d removed, %d relocated, %d missing, %d changed, %d skipped\n",
		summary.Removed, summary.Relocated, summary.Missing, summary.Changed, summary.Skipped)
	return summary, nil
}

func applyRemove(e Entry) (string, error) {
	if _, err := os.Stat(e.Path); os.IsNotExist(err) {
		return ResultMissing, nil
	}
	if e.KeepPath == "" || e.KeepPath == e.Path {
		return ResultKeepMissing, nil
	}
	if _, err := os.Stat(e.KeepPath); err != nil {
		return ResultKeepMissing, nil
	}
	sum, err := hashFile(e.Path)
	if err != nil {
		return "", err
	}
	if sum != e.SHA256 {
		return ResultHashChanged, nil
	}
	if err := os.Remove(e.Path); err != nil {
		return "", fmt.Errorf("removing %s: %w", e.Path, err)
	}
	slog.Debug("removed duplicate", "path", e.Path, "kept", e.KeepPath)
	return ResultRemoved, nil
}

func applyRelocate(e Entry) (string, error) {
	if _, err := os.Stat(e.Path); os.IsNotExist(err) {
		return ResultMissing, nil
	}
	if _, err := os.Stat(e.KeepPath); err == nil {
		return ResultTargetExists, nil
	}
	if err := os.MkdirAll(filepath.Dir(e.KeepPath), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(e.KeepPath), err)
	}
	if err := os.Rename(e.Path, e.KeepPath); err != nil {
		return "", fmt.Errorf("moving %s: %w", e.Path, err)
	}
	return ResultRelocated, nil
}

// auditLog appends rows to the audit CSV.
type auditLog struct {
	f  *os.File
	cw *csv.Writer
}

func openAudit(path string) (*auditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	a := &auditLog{f: f, cw: csv.NewWriter(f)}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := a.cw.Write(auditHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *auditLog) write(planID string, e Entry, result string) error {
	row := []string{time.Now().UTC().Format(time.RFC3339), planID, string(e.Action), e.Path, e.KeepPath, e.SHA256, result}
	if err := a.cw.Write(row); err != nil {
		return fmt.Errorf("writing audit row: %w", err)
	}
	a.cw.Flush()
	return a.cw.Error()
}

func (a *auditLog) close() error {
	a.cw.Flush()
	return a.f.Close()
}
