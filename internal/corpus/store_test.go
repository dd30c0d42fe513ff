// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/chondro/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func float(v float64) *float64 { return &v }

func heithausPaper() types.PaperResult {
	return types.PaperResult{
		PaperID: "Heithaus.etal.2008.Predicting ecological consequences.pdf",
		PDFPath: "/pdfs/2008/Heithaus.etal.2008.Predicting ecological consequences.pdf",
		DOI:     "10.1016/j.tree.2008.01.003",
		Year:    2008,
		Status:  types.ExtractionSuccess,
		Techniques: []types.TechniqueMention{
			{Technique: "MaxEnt", Discipline: types.DisciplineMOV, MentionCount: 3, ContextSample: "We used MaxEnt to model habitat."},
			{Technique: "acoustic telemetry", Discipline: types.DisciplineMOV, MentionCount: 1},
		},
		Disciplines: []types.DisciplineAssignment{
			{Discipline: types.DisciplineMOV, AssignmentType: types.AssignmentPrimary, TechniqueCount: 2},
			{Discipline: types.DisciplineDATA, AssignmentType: types.AssignmentCrossCutting, TechniqueCount: 1},
		},
		Species: []types.SpeciesMention{{Species: "Galeocerdo cuvier", MentionCount: 4}},
		Authors: []types.Authorship{
			{Surname: "Heithaus", Position: 1, IsLead: true},
			{Surname: "Frid", Position: 2},
			{Surname: "Wirsing", Position: 3},
		},
		Geography: &types.PaperGeography{
			Institution:     "Florida International University",
			AuthorCountry:   "United States",
			AuthorRegion:    types.RegionNorth,
			StudyCountry:    "Australia",
			StudyOceanBasin: "Indian Ocean",
			StudyLatitude:   float(-25.8),
			StudyLongitude:  float(113.7),
		},
	}
}

func friePaper() types.PaperResult {
	return types.PaperResult{
		PaperID: "Frid.2012.Shark predation risk.pdf",
		Year:    2012,
		Status:  types.ExtractionSuccess,
		Authors: []types.Authorship{
			{Surname: "Frid", Position: 1, IsLead: true},
			{Surname: "Heithaus", Position: 2},
		},
		Geography: &types.PaperGeography{AuthorCountry: "Canada", AuthorRegion: types.RegionNorth},
	}
}

func TestWriteBatchPopulatesTables(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.WriteBatch(ctx, "run-1", []types.PaperResult{heithausPaper(), friePaper()}))

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["papers"])
	assert.Equal(t, 2, counts["technique_mentions"])
	assert.Equal(t, 2, counts["discipline_assignments"])
	assert.Equal(t, 3, counts["researchers"])
	assert.Equal(t, 5, counts["authorship"])
	assert.Equal(t, 3, counts["collaborations"])
	assert.Equal(t, 1, counts["institutions"])
	assert.Equal(t, 2, counts["paper_geography"])
	assert.Equal(t, 2, counts["extraction_log"])

	researchers, err := s.researchers(ctx)
	require.NoError(t, err)
	bySurname := map[string]ResearcherRow{}
	for _, r := range researchers {
		bySurname[r.Surname] = r
	}
	assert.Equal(t, 2008, bySurname["Heithaus"].FirstPaperYear)
	assert.Equal(t, 2012, bySurname["Heithaus"].LastPaperYear)
	assert.Equal(t, "United States", bySurname["Heithaus"].Country)
	assert.Equal(t, "Canada", bySurname["Frid"].Country, "lead author of the second paper")
	assert.Empty(t, bySurname["Wirsing"].Country)

	collabs, err := s.collaborations(ctx)
	require.NoError(t, err)
	for _, c := range collabs {
		assert.Less(t, c.ResearcherID1, c.ResearcherID2)
		if c.ResearcherID1 == bySurname["Heithaus"].ResearcherID || c.ResearcherID2 == bySurname["Heithaus"].ResearcherID {
			if c.ResearcherID1 == bySurname["Frid"].ResearcherID || c.ResearcherID2 == bySurname["Frid"].ResearcherID {
				assert.Equal(t, 2, c.Count)
				assert.Equal(t, 2008, c.FirstYear)
				assert.Equal(t, 2012, c.LastYear)
			}
		}
	}

	geo, err := s.geography(ctx)
	require.NoError(t, err)
	require.Len(t, geo, 2)
	assert.True(t, geo[1].IsParachuteResearch, "Heithaus sorts second")
	assert.True(t, geo[1].HasStudyLocation)
	require.NotNil(t, geo[1].StudyLatitude)
	assert.InDelta(t, -25.8, *geo[1].StudyLatitude, 1e-9)
	assert.False(t, geo[0].IsParachuteResearch)
	assert.False(t, geo[0].HasStudyLocation)
}

func TestWriteBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	batch := []types.PaperResult{heithausPaper(), friePaper()}

	require.NoError(t, s.WriteBatch(ctx, "run-1", batch))
	first, err := s.Checksum(ctx)
	require.NoError(t, err)

	require.NoError(t, s.WriteBatch(ctx, "run-2", []types.PaperResult{heithausPaper(), friePaper()}))
	second, err := s.Checksum(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	collabs, err := s.collaborations(ctx)
	require.NoError(t, err)
	total := 0
	for _, c := range collabs {
		total += c.Count
	}
	assert.Equal(t, 4, total, "re-extraction does not inflate counts")
}

func TestChecksumIgnoresInsertionOrder(t *testing.T) {
	ctx := context.Background()
	a := openStore(t)
	b := openStore(t)

	require.NoError(t, a.WriteBatch(ctx, "r", []types.PaperResult{heithausPaper(), friePaper()}))
	require.NoError(t, b.WriteBatch(ctx, "r", []types.PaperResult{friePaper()}))
	require.NoError(t, b.WriteBatch(ctx, "r", []types.PaperResult{heithausPaper()}))

	sumA, err := a.Checksum(ctx)
	require.NoError(t, err)
	sumB, err := b.Checksum(ctx)
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB)
}

func TestWriteBatchSupersedesPaperRows(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.WriteBatch(ctx, "run-1", []types.PaperResult{heithausPaper()}))

	revised := heithausPaper()
	revised.Techniques = revised.Techniques[:1]
	revised.Disciplines = []types.DisciplineAssignment{{Discipline: types.DisciplineMOV, AssignmentType: types.AssignmentPrimary, TechniqueCount: 1}}
	revised.Species = nil
	require.NoError(t, s.WriteBatch(ctx, "run-2", []types.PaperResult{revised}))

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["technique_mentions"])
	assert.Equal(t, 1, counts["discipline_assignments"])
	assert.Zero(t, counts["species_mentions"])
	assert.Equal(t, 3, counts["authorship"])
}

func TestWriteBatchFailureOnlyLogs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.WriteBatch(ctx, "run-1", []types.PaperResult{heithausPaper()}))

	failed := types.PaperResult{
		PaperID:   heithausPaper().PaperID,
		Status:    types.ExtractionFailedTimeout,
		ErrorKind: types.ErrTextExtractTimeout,
		Error:     "pdftotext timed out",
	}
	require.NoError(t, s.WriteBatch(ctx, "run-2", []types.PaperResult{failed}))

	statuses, err := s.ExtractionStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ExtractionFailedTimeout, statuses[failed.PaperID])

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["technique_mentions"], "previous rows survive a failed retry")
}

func TestCrossCuttingRequiresDATA(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	bad := friePaper()
	bad.Disciplines = []types.DisciplineAssignment{{Discipline: types.DisciplineMOV, AssignmentType: types.AssignmentCrossCutting, TechniqueCount: 1}}
	assert.Error(t, s.WriteBatch(ctx, "r", []types.PaperResult{bad}))

	dup := friePaper()
	dup.Disciplines = []types.DisciplineAssignment{
		{Discipline: types.DisciplineDATA, AssignmentType: types.AssignmentPrimary, TechniqueCount: 1},
		{Discipline: types.DisciplineDATA, AssignmentType: types.AssignmentCrossCutting, TechniqueCount: 1},
	}
	assert.Error(t, s.WriteBatch(ctx, "r", []types.PaperResult{dup}), "one row per discipline")

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts["papers"], "failed batches roll back")
}

func TestMarkExtracting(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	done := heithausPaper()
	require.NoError(t, s.WriteBatch(ctx, "run-1", []types.PaperResult{done}))

	require.NoError(t, s.MarkExtracting(ctx, []string{done.PaperID, "new.pdf"}, "run-2", false))
	statuses, err := s.ExtractionStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ExtractionSuccess, statuses[done.PaperID])
	assert.Equal(t, types.ExtractionRunning, statuses["new.pdf"])

	require.NoError(t, s.MarkExtracting(ctx, []string{done.PaperID}, "run-3", true))
	statuses, err = s.ExtractionStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ExtractionRunning, statuses[done.PaperID])

	counts, err := s.ExtractionCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[types.ExtractionRunning])
}

func TestOCRLog(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, ok, err := s.OCREntry(ctx, "/pdfs/2010/a.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RecordOCR(ctx, types.OCRLogEntry{Path: "/pdfs/2010/a.pdf", Status: types.OCRHasText, CharsSampled: 2400}))
	require.NoError(t, s.RecordOCR(ctx, types.OCRLogEntry{
		Path: "/pdfs/2011/b.pdf", Status: types.OCRFailed, ErrorKind: types.ErrOCRTimeout, Error: "timed out",
	}))
	require.NoError(t, s.RecordOCR(ctx, types.OCRLogEntry{Path: "/pdfs/2010/a.pdf", Status: types.OCRRan, BackupPath: "/backup/2010/a.pdf"}))

	e, ok, err := s.OCREntry(ctx, "/pdfs/2010/a.pdf")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.OCRRan, e.Status)
	assert.Equal(t, "/backup/2010/a.pdf", e.BackupPath)
	assert.False(t, e.Timestamp.IsZero())

	all, err := s.OCRStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]types.OCRStatus{
		"/pdfs/2010/a.pdf": types.OCRRan,
		"/pdfs/2011/b.pdf": types.OCRFailed,
	}, all)
}

func TestRecordOA(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	yes := true
	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordOA(ctx, types.OpenAccessStatus{
		DOI: "10.1371/journal.pone.0000001", Status: types.OAGold, IsOA: true,
		OAURL: "https://journals.plos.org/x.pdf", License: "cc-by", JournalInDOAJ: &yes,
		Source: "unpaywall", CheckedAt: checked,
	}))
	require.NoError(t, s.RecordOA(ctx, types.OpenAccessStatus{
		DOI: "10.1371/journal.pone.0000001", Status: types.OAGold, IsOA: true,
		OAURL: "https://journals.plos.org/y.pdf", Source: "openalex", CheckedAt: checked,
	}))

	st, ok, err := s.OpenAccess(ctx, "10.1371/journal.pone.0000001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "openalex", st.Source, "latest check wins")
	assert.Equal(t, "https://journals.plos.org/y.pdf", st.OAURL)
	assert.Nil(t, st.JournalInDOAJ)
	assert.True(t, st.CheckedAt.Equal(checked))

	assert.Error(t, s.RecordOA(ctx, types.OpenAccessStatus{Status: types.OAClosed}))
}

func TestExportParquet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.WriteBatch(ctx, "run-1", []types.PaperResult{heithausPaper(), friePaper()}))
	require.NoError(t, s.RecordOA(ctx, types.OpenAccessStatus{DOI: "10.1/x", Status: types.OAClosed, Source: "unpaywall"}))

	dir := filepath.Join(t.TempDir(), "export")
	counts, err := s.ExportParquet(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["papers"])
	assert.Equal(t, 3, counts["collaborations"])
	assert.Equal(t, 1, counts["open_access_status"])

	f, err := os.Open(filepath.Join(dir, "technique_mentions.parquet"))
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	pf, err := parquet.OpenFile(f, info.Size())
	require.NoError(t, err)
	assert.Equal(t, int64(2), pf.NumRows())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 11, "one file per table and no temp files")
}

func TestExportJSONAndYAML(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.WriteBatch(ctx, "run-1", []types.PaperResult{heithausPaper()}))

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(ctx, &buf))
	var fromJSON []PaperSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	require.Len(t, fromJSON, 1)
	p := fromJSON[0]
	assert.Equal(t, "10.1016/j.tree.2008.01.003", p.DOI)
	assert.Equal(t, []string{"Heithaus", "Frid", "Wirsing"}, p.Authors)
	assert.Equal(t, []string{"MaxEnt", "acoustic telemetry"}, p.Techniques)
	assert.Equal(t, []DisciplineSummary{
		{Code: types.DisciplineDATA, Type: types.AssignmentCrossCutting, Count: 1},
		{Code: types.DisciplineMOV, Type: types.AssignmentPrimary, Count: 2},
	}, p.Disciplines)
	require.NotNil(t, p.Geography)
	assert.Equal(t, "Australia", p.Geography.StudyCountry)

	buf.Reset()
	require.NoError(t, s.ExportYAML(ctx, &buf))
	var fromYAML []PaperSummary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, fromJSON[0].Authors, fromYAML[0].Authors)
}
