// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/chondro/pkg/types"
)

// Row types for tables whose shape differs from the domain types.
type (
	PaperRow struct {
		PaperID string `json:"paper_id" parquet:"paper_id"`
		Year    int    `json:"year" parquet:"year"`
		DOI     string `json:"doi,omitempty" parquet:"doi,optional"`
		PDFPath string `json:"pdf_path" parquet:"pdf_path"`
	}

	ResearcherRow struct {
		ResearcherID   int64  `json:"researcher_id" parquet:"researcher_id"`
		Surname        string `json:"surname" parquet:"surname"`
		FirstPaperYear int    `json:"first_paper_year" parquet:"first_paper_year"`
		LastPaperYear  int    `json:"last_paper_year" parquet:"last_paper_year"`
		Country        string `json:"country,omitempty" parquet:"country,optional"`
	}

	AuthorshipRow struct {
		PaperID      string `json:"paper_id" parquet:"paper_id"`
		ResearcherID int64  `json:"researcher_id" parquet:"researcher_id"`
		Position     int    `json:"author_position" parquet:"author_position"`
		IsLead       bool   `json:"is_lead_author" parquet:"is_lead_author"`
	}

	CollaborationRow struct {
		ResearcherID1 int64 `json:"researcher_id_1" parquet:"researcher_id_1"`
		ResearcherID2 int64 `json:"researcher_id_2" parquet:"researcher_id_2"`
		FirstYear     int   `json:"first_year" parquet:"first_year"`
		LastYear      int   `json:"last_year" parquet:"last_year"`
		Count         int   `json:"collaboration_count" parquet:"collaboration_count"`
	}

	InstitutionRow struct {
		Name    string `json:"institution_name" parquet:"institution_name"`
		Country string `json:"country,omitempty" parquet:"country,optional"`
	}

	ExtractionLogRow struct {
		PaperID         string `json:"paper_id" parquet:"paper_id"`
		Status          string `json:"status" parquet:"status"`
		TechniquesFound int    `json:"techniques_found" parquet:"techniques_found"`
		AuthorsFound    int    `json:"authors_found" parquet:"authors_found"`
		ErrorKind       string `json:"error_kind,omitempty" parquet:"error_kind,optional"`
		Error           string `json:"error,omitempty" parquet:"error,optional"`
		RunID           string `json:"run_id" parquet:"run_id"`
		ExtractionDate  string `json:"extraction_date" parquet:"extraction_date"`
	}
)

// queryRows runs query and scans each row with scan.
func queryRows[T any](ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) papers(ctx context.Context) ([]PaperRow, error) {
	return queryRows(ctx, s.db,
		`SELECT paper_id, COALESCE(year, 0), COALESCE(doi, ''), pdf_path FROM papers ORDER BY paper_id`,
		func(r *sql.Rows) (PaperRow, error) {
			var p PaperRow
			err := r.Scan(&p.PaperID, &p.Year, &p.DOI, &p.PDFPath)
			return p, err
		})
}

func (s *Store) techniqueMentions(ctx context.Context) ([]types.TechniqueMention, error) {
	return queryRows(ctx, s.db,
		`SELECT paper_id, technique_name, primary_discipline, mention_count, context_sample
		 FROM technique_mentions ORDER BY paper_id, technique_name`,
		func(r *sql.Rows) (types.TechniqueMention, error) {
			var m types.TechniqueMention
			var d string
			err := r.Scan(&m.PaperID, &m.Technique, &d, &m.MentionCount, &m.ContextSample)
			m.Discipline = types.Discipline(d)
			return m, err
		})
}

func (s *Store) disciplineAssignments(ctx context.Context) ([]types.DisciplineAssignment, error) {
	return queryRows(ctx, s.db,
		`SELECT paper_id, COALESCE(year, 0), discipline_code, assignment_type, technique_count
		 FROM discipline_assignments ORDER BY paper_id, discipline_code`,
		func(r *sql.Rows) (types.DisciplineAssignment, error) {
			var a types.DisciplineAssignment
			var d, t string
			err := r.Scan(&a.PaperID, &a.Year, &d, &t, &a.TechniqueCount)
			a.Discipline, a.AssignmentType = types.Discipline(d), types.AssignmentType(t)
			return a, err
		})
}

func (s *Store) speciesMentions(ctx context.Context) ([]types.SpeciesMention, error) {
	return queryRows(ctx, s.db,
		`SELECT paper_id, species, mention_count FROM species_mentions ORDER BY paper_id, species`,
		func(r *sql.Rows) (types.SpeciesMention, error) {
			var m types.SpeciesMention
			err := r.Scan(&m.PaperID, &m.Species, &m.MentionCount)
			return m, err
		})
}

func (s *Store) researchers(ctx context.Context) ([]ResearcherRow, error) {
	return queryRows(ctx, s.db,
		`SELECT researcher_id, surname, COALESCE(first_paper_year, 0), COALESCE(last_paper_year, 0), COALESCE(country, '')
		 FROM researchers ORDER BY researcher_id`,
		func(r *sql.Rows) (ResearcherRow, error) {
			var v ResearcherRow
			err := r.Scan(&v.ResearcherID, &v.Surname, &v.FirstPaperYear, &v.LastPaperYear, &v.Country)
			return v, err
		})
}

func (s *Store) authorship(ctx context.Context) ([]AuthorshipRow, error) {
	return queryRows(ctx, s.db,
		`SELECT paper_id, researcher_id, author_position, is_lead_author
		 FROM authorship ORDER BY paper_id, author_position`,
		func(r *sql.Rows) (AuthorshipRow, error) {
			var v AuthorshipRow
			err := r.Scan(&v.PaperID, &v.ResearcherID, &v.Position, &v.IsLead)
			return v, err
		})
}

func (s *Store) collaborations(ctx context.Context) ([]CollaborationRow, error) {
	return queryRows(ctx, s.db,
		`SELECT researcher_id_1, researcher_id_2, COALESCE(first_year, 0), COALESCE(last_year, 0), collaboration_count
		 FROM collaborations ORDER BY researcher_id_1, researcher_id_2`,
		func(r *sql.Rows) (CollaborationRow, error) {
			var v CollaborationRow
			err := r.Scan(&v.ResearcherID1, &v.ResearcherID2, &v.FirstYear, &v.LastYear, &v.Count)
			return v, err
		})
}

func (s *Store) institutions(ctx context.Context) ([]InstitutionRow, error) {
	return queryRows(ctx, s.db,
		`SELECT institution_name, COALESCE(country, '') FROM institutions ORDER BY institution_name`,
		func(r *sql.Rows) (InstitutionRow, error) {
			var v InstitutionRow
			err := r.Scan(&v.Name, &v.Country)
			return v, err
		})
}

func (s *Store) geography(ctx context.Context) ([]types.PaperGeography, error) {
	return queryRows(ctx, s.db,
		`SELECT paper_id, COALESCE(first_author_institution, ''), COALESCE(first_author_country, ''),
			COALESCE(first_author_region, ''), COALESCE(study_country, ''), COALESCE(study_ocean_basin, ''),
			study_latitude, study_longitude, COALESCE(study_location_text, ''),
			has_author_country, has_study_location, is_parachute_research
		 FROM paper_geography ORDER BY paper_id`,
		func(r *sql.Rows) (types.PaperGeography, error) {
			var g types.PaperGeography
			var region string
			var lat, lon sql.NullFloat64
			err := r.Scan(&g.PaperID, &g.Institution, &g.AuthorCountry, &region, &g.StudyCountry,
				&g.StudyOceanBasin, &lat, &lon, &g.StudyLocationText,
				&g.HasAuthorCountry, &g.HasStudyLocation, &g.IsParachuteResearch)
			g.AuthorRegion = types.Region(region)
			if lat.Valid && lon.Valid {
				g.StudyLatitude, g.StudyLongitude = &lat.Float64, &lon.Float64
			}
			return g, err
		})
}

func (s *Store) openAccess(ctx context.Context) ([]types.OpenAccessStatus, error) {
	dois, err := queryRows(ctx, s.db, `SELECT doi FROM open_access_status ORDER BY doi`,
		func(r *sql.Rows) (string, error) {
			var d string
			err := r.Scan(&d)
			return d, err
		})
	if err != nil {
		return nil, err
	}
	out := make([]types.OpenAccessStatus, 0, len(dois))
	for _, d := range dois {
		st, _, err := s.OpenAccess(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) extractionLog(ctx context.Context) ([]ExtractionLogRow, error) {
	return queryRows(ctx, s.db,
		`SELECT paper_id, status, techniques_found, authors_found, error_kind, error, run_id, extraction_date
		 FROM extraction_log ORDER BY paper_id`,
		func(r *sql.Rows) (ExtractionLogRow, error) {
			var v ExtractionLogRow
			err := r.Scan(&v.PaperID, &v.Status, &v.TechniquesFound, &v.AuthorsFound,
				&v.ErrorKind, &v.Error, &v.RunID, &v.ExtractionDate)
			return v, err
		})
}

// ExportParquet writes one <table>.parquet file per table into dir and
// returns the row count written for each table.
func (s *Store) ExportParquet(ctx context.Context, dir string) (map[string]int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	exports := []struct {
		table string
		run   func(table string) (int, error)
	}{
		{"papers", func(t string) (int, error) { return exportTable(ctx, dir, t, s.papers) }},
		{"technique_mentions", func(t string) (int, error) { return exportTable(ctx, dir, t, s.techniqueMentions) }},
		{"discipline_assignments", func(t string) (int, error) { return exportTable(ctx, dir, t, s.disciplineAssignments) }},
		{"species_mentions", func(t string) (int, error) { return exportTable(ctx, dir, t, s.speciesMentions) }},
		{"researchers", func(t string) (int, error) { return exportTable(ctx, dir, t, s.researchers) }},
		{"authorship", func(t string) (int, error) { return exportTable(ctx, dir, t, s.authorship) }},
		{"collaborations", func(t string) (int, error) { return exportTable(ctx, dir, t, s.collaborations) }},
		{"institutions", func(t string) (int, error) { return exportTable(ctx, dir, t, s.institutions) }},
		{"paper_geography", func(t string) (int, error) { return exportTable(ctx, dir, t, s.geography) }},
		{"open_access_status", func(t string) (int, error) { return exportTable(ctx, dir, t, s.openAccess) }},
		{"extraction_log", func(t string) (int, error) { return exportTable(ctx, dir, t, s.extractionLog) }},
	}

	counts := make(map[string]int, len(exports))
	for _, e := range exports {
		n, err := e.run(e.table)
		if err != nil {
			return counts, fmt.Errorf("exporting %s: %w", e.table, err)
		}
		counts[e.table] = n
	}
	return counts, nil
}

// exportTable loads rows and writes them to dir/<table>.parquet through a
// temp file.
func exportTable[T any](ctx context.Context, dir, table string, load func(context.Context) ([]T, error)) (int, error) {
	rows, err := load(ctx)
	if err != nil {
		return 0, err
	}

	tmpFile, err := os.CreateTemp(dir, "."+table+"-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	w := parquet.NewGenericWriter[T](tmpFile)
	if _, err := w.Write(rows); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("writing rows: %w", err)
	}
	if err := w.Close(); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("closing parquet writer: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, table+".parquet")); err != nil {
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return len(rows), nil
}

// DisciplineSummary is one discipline assignment in a paper summary.
type DisciplineSummary struct {
	Code  types.Discipline     `json:"code" yaml:"code"`
	Type  types.AssignmentType `json:"type" yaml:"type"`
	Count int                  `json:"technique_count" yaml:"technique_count"`
}

// PaperSummary is the per-paper document written by ExportJSON and
// ExportYAML.
type PaperSummary struct {
	PaperID     string                `json:"paper_id" yaml:"paper_id"`
	Year        int                   `json:"year,omitempty" yaml:"year,omitempty"`
	DOI         string                `json:"doi,omitempty" yaml:"doi,omitempty"`
	Authors     []string              `json:"authors" yaml:"authors"`
	Techniques  []string              `json:"techniques" yaml:"techniques"`
	Disciplines []DisciplineSummary   `json:"disciplines" yaml:"disciplines"`
	Species     []string              `json:"species,omitempty" yaml:"species,omitempty"`
	Geography   *types.PaperGeography `json:"geography,omitempty" yaml:"geography,omitempty"`
}

// Summaries assembles one PaperSummary per paper, ordered by paper id.
func (s *Store) Summaries(ctx context.Context) ([]PaperSummary, error) {
	papers, err := s.papers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading papers: %w", err)
	}
	index := make(map[string]*PaperSummary, len(papers))
	out := make([]PaperSummary, len(papers))
	for i, p := range papers {
		out[i] = PaperSummary{PaperID: p.PaperID, Year: p.Year, DOI: p.DOI,
			Authors: []string{}, Techniques: []string{}, Disciplines: []DisciplineSummary{}}
		index[p.PaperID] = &out[i]
	}

	mentions, err := s.techniqueMentions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading mentions: %w", err)
	}
	for _, m := range mentions {
		if p := index[m.PaperID]; p != nil {
			p.Techniques = append(p.Techniques, m.Technique)
		}
	}

	assignments, err := s.disciplineAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}
	for _, a := range assignments {
		if p := index[a.PaperID]; p != nil {
			p.Disciplines = append(p.Disciplines, DisciplineSummary{Code: a.Discipline, Type: a.AssignmentType, Count: a.TechniqueCount})
		}
	}

	species, err := s.speciesMentions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading species: %w", err)
	}
	for _, sp := range species {
		if p := index[sp.PaperID]; p != nil {
			p.Species = append(p.Species, sp.Species)
		}
	}

	authors, err := queryRows(ctx, s.db,
		`SELECT a.paper_id, r.surname FROM authorship a
		 JOIN researchers r ON r.researcher_id = a.researcher_id
		 ORDER BY a.paper_id, a.author_position`,
		func(r *sql.Rows) ([2]string, error) {
			var v [2]string
			err := r.Scan(&v[0], &v[1])
			return v, err
		})
	if err != nil {
		return nil, fmt.Errorf("loading authors: %w", err)
	}
	for _, a := range authors {
		if p := index[a[0]]; p != nil {
			p.Authors = append(p.Authors, a[1])
		}
	}

	geo, err := s.geography(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading geography: %w", err)
	}
	for i := range geo {
		if p := index[geo[i].PaperID]; p != nil {
			p.Geography = &geo[i]
		}
	}
	return out, nil
}

// ExportJSON writes paper summaries to w as an indented JSON array.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	summaries, err := s.Summaries(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// ExportYAML writes paper summaries to w as a YAML sequence.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer) error {
	summaries, err := s.Summaries(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(summaries); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

// canonicalDump lists the queries whose output defines the relational
// state. Surrogate ids, run ids, and timestamps are excluded so two runs
// over the same PDFs compare equal.
var canonicalDump = []string{
	`SELECT paper_id, year, doi, pdf_path FROM papers ORDER BY paper_id`,
	`SELECT paper_id, technique_name, primary_discipline, mention_count, context_sample
	 FROM technique_mentions ORDER BY paper_id, technique_name`,
	`SELECT paper_id, year, discipline_code, assignment_type, technique_count
	 FROM discipline_assignments ORDER BY paper_id, discipline_code`,
	`SELECT paper_id, species, mention_count FROM species_mentions ORDER BY paper_id, species`,
	`SELECT surname, first_paper_year, last_paper_year, country FROM researchers ORDER BY surname`,
	`SELECT a.paper_id, r.surname, a.author_position, a.is_lead_author
	 FROM authorship a JOIN researchers r ON r.researcher_id = a.researcher_id
	 ORDER BY a.paper_id, a.author_position`,
	`SELECT MIN(r1.surname, r2.surname), MAX(r1.surname, r2.surname), c.first_year, c.last_year, c.collaboration_count
	 FROM collaborations c
	 JOIN researchers r1 ON r1.researcher_id = c.researcher_id_1
	 JOIN researchers r2 ON r2.researcher_id = c.researcher_id_2
	 ORDER BY 1, 2`,
	`SELECT institution_name, country FROM institutions ORDER BY institution_name`,
	`SELECT paper_id, first_author_institution, first_author_country, first_author_region,
		study_country, study_ocean_basin, study_latitude, study_longitude, study_location_text,
		has_author_country, has_study_location, is_parachute_research
	 FROM paper_geography ORDER BY paper_id`,
	`SELECT paper_id, status, techniques_found, authors_found, error_kind FROM extraction_log ORDER BY paper_id`,
}

// Checksum returns a hex SHA-256 over a canonical ordered dump of the
// relational tables.
func (s *Store) Checksum(ctx context.Context) (string, error) {
	h := sha256.New()
	for _, q := range canonicalDump {
		rows, err := s.db.QueryContext(ctx, q)
		if err != nil {
			return "", fmt.Errorf("dumping table: %w", err)
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			return "", err
		}
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return "", fmt.Errorf("scanning dump row: %w", err)
			}
			fields := make([]string, len(vals))
			for i, v := range vals {
				if v.Valid {
					fields[i] = v.String
				} else {
					fields[i] = `\N`
				}
			}
			io.WriteString(h, strings.Join(fields, "\t")+"\n")
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", err
		}
		rows.Close()
		io.WriteString(h, "--\n")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// TableCounts returns the number of rows in each relational table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	tables := []string{
		"papers", "technique_mentions", "discipline_assignments", "species_mentions",
		"researchers", "authorship", "collaborations", "institutions", "paper_geography",
		"open_access_status", "extraction_log", "ocr_log",
	}
	out := make(map[string]int, len(tables))
	for _, t := range tables {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", t, err)
		}
		out[t] = n
	}
	return out, nil
}
