// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Discipline is one of the closed set of research disciplines a technique
// belongs to.
type Discipline string

const (
	DisciplineBEH  Discipline = "BEH"
	DisciplineBIO  Discipline = "BIO"
	DisciplineCON  Discipline = "CON"
	DisciplineDATA Discipline = "DATA"
	DisciplineFISH Discipline = "FISH"
	DisciplineGEN  Discipline = "GEN"
	DisciplineMOV  Discipline = "MOV"
	DisciplineTRO  Discipline = "TRO"
)

// Disciplines lists every valid discipline code in canonical order.
var Disciplines = []Discipline{
	DisciplineBEH, DisciplineBIO, DisciplineCON, DisciplineDATA,
	DisciplineFISH, DisciplineGEN, DisciplineMOV, DisciplineTRO,
}

// Valid reports whether d is a known discipline code.
func (d Discipline) Valid() bool {
	for _, v := range Disciplines {
		if d == v {
			return true
		}
	}
	return false
}

// AssignmentType distinguishes a discipline's own techniques from the
// data-science overlay.
type AssignmentType string

const (
	AssignmentPrimary      AssignmentType = "primary"
	AssignmentCrossCutting AssignmentType = "cross_cutting"
)

// TechniqueMention records that a paper mentions a taxonomy technique.
type TechniqueMention struct {
	PaperID       string     `json:"paper_id" yaml:"paper_id" parquet:"paper_id"`
	Technique     string     `json:"technique_name" yaml:"technique_name" parquet:"technique_name"`
	Discipline    Discipline `json:"primary_discipline" yaml:"primary_discipline" parquet:"primary_discipline"`
	MentionCount  int        `json:"mention_count" yaml:"mention_count" parquet:"mention_count"`
	ContextSample string     `json:"context_sample" yaml:"context_sample" parquet:"context_sample"`
}

// DisciplineAssignment links a paper to a discipline. A paper has at most
// one row per discipline; cross-cutting rows only occur for DATA.
type DisciplineAssignment struct {
	PaperID        string         `json:"paper_id" yaml:"paper_id" parquet:"paper_id"`
	Year           int            `json:"year" yaml:"year" parquet:"year"`
	Discipline     Discipline     `json:"discipline_code" yaml:"discipline_code" parquet:"discipline_code"`
	AssignmentType AssignmentType `json:"assignment_type" yaml:"assignment_type" parquet:"assignment_type"`
	TechniqueCount int            `json:"technique_count" yaml:"technique_count" parquet:"technique_count"`
}

// SpeciesMention records how often a paper names a species.
type SpeciesMention struct {
	PaperID      string `json:"paper_id" yaml:"paper_id" parquet:"paper_id"`
	Species      string `json:"species" yaml:"species" parquet:"species"`
	MentionCount int    `json:"mention_count" yaml:"mention_count" parquet:"mention_count"`
}

// Authorship places a surname at a position in a paper's author list.
type Authorship struct {
	Surname  string `json:"surname" yaml:"surname"`
	Position int    `json:"author_position" yaml:"author_position"`
	IsLead   bool   `json:"is_lead_author" yaml:"is_lead_author"`
}

// Region classifies a country by the Global North / Global South split.
type Region string

const (
	RegionNorth Region = "Global North"
	RegionSouth Region = "Global South"
)

// PaperGeography holds author and study location signals for a paper.
type PaperGeography struct {
	PaperID             string   `json:"paper_id" yaml:"paper_id" parquet:"paper_id"`
	Institution         string   `json:"first_author_institution,omitempty" yaml:"first_author_institution,omitempty" parquet:"first_author_institution,optional"`
	AuthorCountry       string   `json:"first_author_country,omitempty" yaml:"first_author_country,omitempty" parquet:"first_author_country,optional"`
	AuthorRegion        Region   `json:"first_author_region,omitempty" yaml:"first_author_region,omitempty" parquet:"first_author_region,optional"`
	StudyCountry        string   `json:"study_country,omitempty" yaml:"study_country,omitempty" parquet:"study_country,optional"`
	StudyOceanBasin     string   `json:"study_ocean_basin,omitempty" yaml:"study_ocean_basin,omitempty" parquet:"study_ocean_basin,optional"`
	StudyLatitude       *float64 `json:"study_latitude,omitempty" yaml:"study_latitude,omitempty" parquet:"study_latitude,optional"`
	StudyLongitude      *float64 `json:"study_longitude,omitempty" yaml:"study_longitude,omitempty" parquet:"study_longitude,optional"`
	StudyLocationText   string   `json:"study_location_text,omitempty" yaml:"study_location_text,omitempty" parquet:"study_location_text,optional"`
	HasAuthorCountry    bool     `json:"has_author_country" yaml:"has_author_country" parquet:"has_author_country"`
	HasStudyLocation    bool     `json:"has_study_location" yaml:"has_study_location" parquet:"has_study_location"`
	IsParachuteResearch bool     `json:"is_parachute_research" yaml:"is_parachute_research" parquet:"is_parachute_research"`
}

// Finalize derives the boolean flags from the location fields. Parachute
// research requires both countries to be known and different.
func (g *PaperGeography) Finalize() {
	g.HasAuthorCountry = g.AuthorCountry != ""
	g.HasStudyLocation = g.StudyCountry != "" || g.StudyOceanBasin != "" ||
		(g.StudyLatitude != nil && g.StudyLongitude != nil)
	g.IsParachuteResearch = g.AuthorCountry != "" && g.StudyCountry != "" &&
		g.AuthorCountry != g.StudyCountry
}

// ExtractionStatus is the terminal or transient state of a paper's
// extraction.
type ExtractionStatus string

const (
	ExtractionUnseen        ExtractionStatus = "unseen"
	ExtractionRunning       ExtractionStatus = "extracting"
	ExtractionSuccess       ExtractionStatus = "success"
	ExtractionFailedText    ExtractionStatus = "failed_text"
	ExtractionFailedTimeout ExtractionStatus = "failed_timeout"
)

// PaperResult is everything the extraction engine learned about one PDF.
// It is written to the relational model in a single transaction.
type PaperResult struct {
	PaperID     string                 `json:"paper_id" yaml:"paper_id"`
	PDFPath     string                 `json:"pdf_path" yaml:"pdf_path"`
	DOI         string                 `json:"doi,omitempty" yaml:"doi,omitempty"`
	Year        int                    `json:"year" yaml:"year"`
	Status      ExtractionStatus       `json:"status" yaml:"status"`
	ErrorKind   ErrorKind              `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error       string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Techniques  []TechniqueMention     `json:"techniques" yaml:"techniques"`
	Disciplines []DisciplineAssignment `json:"disciplines" yaml:"disciplines"`
	Species     []SpeciesMention       `json:"species" yaml:"species"`
	Authors     []Authorship           `json:"authors" yaml:"authors"`
	Geography   *PaperGeography        `json:"geography,omitempty" yaml:"geography,omitempty"`
}

// OAStatus is the open-access classification of a work.
type OAStatus string

const (
	OAGold    OAStatus = "gold"
	OAGreen   OAStatus = "green"
	OAHybrid  OAStatus = "hybrid"
	OABronze  OAStatus = "bronze"
	OAClosed  OAStatus = "closed"
	OAUnknown OAStatus = "unknown"
)

// ParseOAStatus maps a resolver's status string onto the closed set.
func ParseOAStatus(s string) OAStatus {
	switch OAStatus(s) {
	case OAGold, OAGreen, OAHybrid, OABronze, OAClosed:
		return OAStatus(s)
	case "diamond":
		return OAGold
	default:
		return OAUnknown
	}
}

// OpenAccessStatus is attached to a paper by DOI.
type OpenAccessStatus struct {
	DOI           string    `json:"doi" yaml:"doi" parquet:"doi"`
	Status        OAStatus  `json:"status" yaml:"status" parquet:"status"`
	IsOA          bool      `json:"is_oa" yaml:"is_oa" parquet:"is_oa"`
	OAURL         string    `json:"oa_url,omitempty" yaml:"oa_url,omitempty" parquet:"oa_url,optional"`
	License       string    `json:"license,omitempty" yaml:"license,omitempty" parquet:"license,optional"`
	Version       string    `json:"version,omitempty" yaml:"version,omitempty" parquet:"version,optional"`
	HostType      string    `json:"host_type,omitempty" yaml:"host_type,omitempty" parquet:"host_type,optional"`
	JournalIsOA   *bool     `json:"journal_is_oa,omitempty" yaml:"journal_is_oa,omitempty" parquet:"journal_is_oa,optional"`
	JournalInDOAJ *bool     `json:"journal_is_in_doaj,omitempty" yaml:"journal_is_in_doaj,omitempty" parquet:"journal_is_in_doaj,optional"`
	Source        string    `json:"source" yaml:"source" parquet:"source"`
	CheckedAt     time.Time `json:"checked_at" yaml:"checked_at" parquet:"checked_at"`
}

// OCRStatus is the outcome recorded for a PDF by the OCR gate.
type OCRStatus string

const (
	OCRHasText     OCRStatus = "has_text"
	OCRRan         OCRStatus = "ocr_ran"
	OCRAlreadyDone OCRStatus = "already_done"
	OCRFailed      OCRStatus = "failed"
)

// OCRLogEntry is one row of the OCR log.
type OCRLogEntry struct {
	Path         string    `json:"path" yaml:"path"`
	Status       OCRStatus `json:"status" yaml:"status"`
	CharsSampled int       `json:"chars_sampled" yaml:"chars_sampled"`
	BackupPath   string    `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
}
