// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pdiddy/chondro/pkg/types"
)

// paperTables hold rows owned by a single paper. They are cleared before
// a paper's rows are rewritten.
var paperTables = []string{
	"technique_mentions",
	"discipline_assignments",
	"authorship",
	"species_mentions",
	"paper_geography",
}

// MarkExtracting records that a run has started on the given papers.
// Rows already marked success are left alone unless force is set.
func (s *Store) MarkExtracting(ctx context.Context, paperIDs []string, runID string, force bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO extraction_log (paper_id, status, run_id, extraction_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET
			status = excluded.status, run_id = excluded.run_id,
			extraction_date = excluded.extraction_date
		WHERE extraction_log.status != 'success' OR ?`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing extraction mark: %w", err)
	}
	defer stmt.Close()

	now := s.stamp()
	for _, id := range paperIDs {
		if _, err := stmt.ExecContext(ctx, id, string(types.ExtractionRunning), runID, now, force); err != nil {
			return fmt.Errorf("marking %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// WriteBatch commits extraction results in one transaction. Successful
// papers supersede their previous rows; researchers and institutions are
// upserted and collaboration counts only grow for author pairs not yet
// linked to the paper, so writing the same results twice leaves the same
// state. Failed papers only update the extraction log.
func (s *Store) WriteBatch(ctx context.Context, runID string, results []types.PaperResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.stamp()
	for i := range results {
		r := &results[i]
		if r.Status == types.ExtractionSuccess {
			if err := writePaper(ctx, tx, r); err != nil {
				return fmt.Errorf("writing %s: %w", r.PaperID, err)
			}
		}
		if err := writeLog(ctx, tx, r, runID, now); err != nil {
			return fmt.Errorf("logging %s: %w", r.PaperID, err)
		}
	}
	return tx.Commit()
}

func writeLog(ctx context.Context, tx *sql.Tx, r *types.PaperResult, runID, now string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO extraction_log
			(paper_id, status, techniques_found, authors_found, error_kind, error, run_id, extraction_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(paper_id) DO UPDATE SET
			status = excluded.status, techniques_found = excluded.techniques_found,
			authors_found = excluded.authors_found, error_kind = excluded.error_kind,
			error = excluded.error, run_id = excluded.run_id,
			extraction_date = excluded.extraction_date`,
		r.PaperID, string(r.Status), len(r.Techniques), len(r.Authors),
		string(r.ErrorKind), r.Error, runID, now,
	)
	return err
}

func writePaper(ctx context.Context, tx *sql.Tx, r *types.PaperResult) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO papers (paper_id, year, doi, pdf_path) VALUES (?, ?, ?, ?)
		 ON CONFLICT(paper_id) DO UPDATE SET
			year = excluded.year,
			doi = COALESCE(excluded.doi, papers.doi),
			pdf_path = excluded.pdf_path`,
		r.PaperID, nullYear(r.Year), nullString(r.DOI), r.PDFPath,
	)
	if err != nil {
		return fmt.Errorf("upserting paper: %w", err)
	}

	for _, table := range paperTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE paper_id = ?`, r.PaperID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, m := range r.Techniques {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO technique_mentions (paper_id, technique_name, primary_discipline, mention_count, context_sample)
			 VALUES (?, ?, ?, ?, ?)`,
			r.PaperID, m.Technique, string(m.Discipline), m.MentionCount, m.ContextSample,
		); err != nil {
			return fmt.Errorf("inserting mention %s: %w", m.Technique, err)
		}
	}

	for _, a := range r.Disciplines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO discipline_assignments (paper_id, year, discipline_code, assignment_type, technique_count)
			 VALUES (?, ?, ?, ?, ?)`,
			r.PaperID, nullYear(r.Year), string(a.Discipline), string(a.AssignmentType), a.TechniqueCount,
		); err != nil {
			return fmt.Errorf("inserting assignment %s: %w", a.Discipline, err)
		}
	}

	for _, sp := range r.Species {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO species_mentions (paper_id, species, mention_count) VALUES (?, ?, ?)`,
			r.PaperID, sp.Species, sp.MentionCount,
		); err != nil {
			return fmt.Errorf("inserting species %s: %w", sp.Species, err)
		}
	}

	leadCountry := ""
	if r.Geography != nil {
		leadCountry = r.Geography.AuthorCountry
	}
	ids, err := writeAuthors(ctx, tx, r, leadCountry)
	if err != nil {
		return err
	}
	if err := writeCollaborations(ctx, tx, r.PaperID, r.Year, ids); err != nil {
		return err
	}

	if r.Geography != nil {
		if err := writeGeography(ctx, tx, r.PaperID, r.Geography); err != nil {
			return err
		}
	}
	return nil
}

// writeAuthors upserts researchers and authorship rows. It returns the
// distinct researcher ids in author order.
func writeAuthors(ctx context.Context, tx *sql.Tx, r *types.PaperResult, leadCountry string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, a := range r.Authors {
		country := ""
		if a.IsLead {
			country = leadCountry
		}
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO researchers (surname, first_paper_year, last_paper_year, country)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(surname) DO UPDATE SET
				first_paper_year = MIN(COALESCE(researchers.first_paper_year, excluded.first_paper_year),
				                       COALESCE(excluded.first_paper_year, researchers.first_paper_year)),
				last_paper_year = MAX(COALESCE(researchers.last_paper_year, excluded.last_paper_year),
				                      COALESCE(excluded.last_paper_year, researchers.last_paper_year)),
				country = COALESCE(researchers.country, excluded.country)
			 RETURNING researcher_id`,
			a.Surname, nullYear(r.Year), nullYear(r.Year), nullString(country),
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("upserting researcher %s: %w", a.Surname, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO authorship (paper_id, researcher_id, author_position, is_lead_author) VALUES (?, ?, ?, ?)`,
			r.PaperID, id, a.Position, boolInt(a.IsLead),
		); err != nil {
			return nil, fmt.Errorf("inserting authorship %s: %w", a.Surname, err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// writeCollaborations links every unordered pair of researchers on the
// paper. A pair's count grows only the first time it is linked to this
// paper.
func writeCollaborations(ctx context.Context, tx *sql.Tx, paperID string, year int, ids []int64) error {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			r1, r2 := ids[i], ids[j]
			if r1 > r2 {
				r1, r2 = r2, r1
			}
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO paper_collaborations (paper_id, researcher_id_1, researcher_id_2) VALUES (?, ?, ?)`,
				paperID, r1, r2,
			)
			if err != nil {
				return fmt.Errorf("linking pair %d-%d: %w", r1, r2, err)
			}
			added, err := res.RowsAffected()
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO collaborations (researcher_id_1, researcher_id_2, first_year, last_year, collaboration_count)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(researcher_id_1, researcher_id_2) DO UPDATE SET
					first_year = MIN(COALESCE(collaborations.first_year, excluded.first_year),
					                 COALESCE(excluded.first_year, collaborations.first_year)),
					last_year = MAX(COALESCE(collaborations.last_year, excluded.last_year),
					                COALESCE(excluded.last_year, collaborations.last_year)),
					collaboration_count = collaborations.collaboration_count + excluded.collaboration_count`,
				r1, r2, nullYear(year), nullYear(year), added,
			); err != nil {
				return fmt.Errorf("upserting collaboration %d-%d: %w", r1, r2, err)
			}
		}
	}
	return nil
}

func writeGeography(ctx context.Context, tx *sql.Tx, paperID string, g *types.PaperGeography) error {
	g.Finalize()
	if g.Institution != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO institutions (institution_name, country) VALUES (?, ?)
			 ON CONFLICT(institution_name) DO UPDATE SET
				country = COALESCE(institutions.country, excluded.country)`,
			g.Institution, nullString(g.AuthorCountry),
		); err != nil {
			return fmt.Errorf("upserting institution: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO paper_geography (paper_id, first_author_institution, first_author_country,
			first_author_region, study_country, study_ocean_basin, study_latitude, study_longitude,
			study_location_text, has_author_country, has_study_location, is_parachute_research)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		paperID, nullString(g.Institution), nullString(g.AuthorCountry),
		nullString(string(g.AuthorRegion)), nullString(g.StudyCountry), nullString(g.StudyOceanBasin),
		nullFloat(g.StudyLatitude), nullFloat(g.StudyLongitude), nullString(g.StudyLocationText),
		boolInt(g.HasAuthorCountry), boolInt(g.HasStudyLocation), boolInt(g.IsParachuteResearch),
	)
	if err != nil {
		return fmt.Errorf("inserting geography: %w", err)
	}
	return nil
}
