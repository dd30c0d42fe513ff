// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/chondro/internal/pdftext"
	"github.com/pdiddy/chondro/pkg/types"
)

const (
	methodsPages    = 10
	methodsMaxLines = 500
	affiliationSpan = 4
	maxHeadingLen   = 50
	maxLocationText = 200
	maxInstitution  = 200
)

var (
	methodsHeadings = []string{
		"materials and methods", "methods", "methodology", "study area", "study site",
		"sampling", "field work", "data collection", "study location", "study region",
		"study period", "site description",
	}
	methodsEnd = []string{"results", "discussion", "conclusions"}

	affiliationWords = []string{
		"university", "universidad", "universidade", "université", "institute", "instituto",
		"department", "school of", "centre", "center", "laboratory", "laboratorio",
		"college", "ministry", "foundation", "research station", "noaa", "csiro",
	}

	// Words that also appear in shark and ray paper titles. They name an
	// affiliation only on a line that opens with an affiliation marker.
	weakAffiliationWords = []string{"fisheries", "museum", "agency", "aquarium"}

	locationWords = []string{
		"study area", "study site", "located", "collected", "conducted", "sampled", "captured",
		"tagged", "caught", "surveyed", "coast", "island", "bay", "reef", "gulf", "waters", "region",
	}

	headingNumber     = regexp.MustCompile(`^[\dIVXivx]+(\.\d+)*[.)]?\s+`)
	coordPair         = regexp.MustCompile(`(\d+[.,]\d+)\s*°?\s*([NS])?[\s,;/]*(\d+[.,]\d+)\s*°?\s*([EW])?`)
	affiliationMarker = regexp.MustCompile(`^\s*(?:\d{1,2}|[a-z]|[*†‡§¶])[\s,.)]`)
	leadingMarks      = regexp.MustCompile(`^(?:[\d*†‡§¶,]+\s*|[a-z]\s+)`)
)

// Geography reads the author and study location signals for one paper.
// Author signals come from the first page, study signals from the Methods
// section within the first ten pages.
func (t *Tables) Geography(paperID, text string) types.PaperGeography {
	g := types.PaperGeography{PaperID: paperID}

	if block, m, ok := t.affiliation(pdftext.FirstPage(text)); ok {
		g.AuthorCountry = m.Name
		g.AuthorRegion = t.Region(m.Name)
		g.Institution = institution(block, m.Start)
	}

	methods := methodsBlock(pdftext.FirstPages(text, methodsPages))
	if methods != "" {
		if m, ok := t.FindCountry(methods); ok {
			g.StudyCountry = m.Name
		}
		if m, ok := t.FindOcean(methods); ok {
			g.StudyOceanBasin = m.Name
		}
		if lat, lon, ok := Coordinates(methods); ok {
			g.StudyLatitude, g.StudyLongitude = &lat, &lon
		}
		g.StudyLocationText = t.locationSentence(methods)
	}

	g.Finalize()
	return g
}

// affiliation finds the first author's affiliation on a title page: the
// first affiliation line, plus its continuation lines, that also names a
// country. A blank line or the next affiliation marker ends the block.
func (t *Tables) affiliation(page string) (string, placeMatch, bool) {
	lines := strings.Split(page, "\n")
	for i, line := range lines {
		if !isAffiliationLine(line) {
			continue
		}
		end := i + 1
		for end < len(lines) && end-i < affiliationSpan &&
			strings.TrimSpace(lines[end]) != "" && !affiliationMarker.MatchString(lines[end]) {
			end++
		}
		block := strings.Join(lines[i:end], "\n")
		if m, ok := t.FindCountry(block); ok {
			return block, m, true
		}
	}
	return "", placeMatch{}, false
}

// isAffiliationLine reports whether line names an institution. Weak
// words such as "fisheries" count only after an affiliation marker, so
// a title line is not read as an address.
func isAffiliationLine(line string) bool {
	lower := strings.ToLower(line)
	if hasAny(lower, affiliationWords) {
		return true
	}
	return affiliationMarker.MatchString(line) && hasAny(lower, weakAffiliationWords)
}

func hasAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// institution returns the line above a country match. When the match is
// on the block's first line, the text before it on that line is used.
func institution(block string, at int) string {
	lineStart := strings.LastIndex(block[:at], "\n") + 1
	s := block[:at]
	if lineStart > 0 {
		prevStart := strings.LastIndex(block[:lineStart-1], "\n") + 1
		s = block[prevStart : lineStart-1]
	}
	s = cleanInstitution(s)
	if r := []rune(s); len(r) > maxInstitution {
		s = string(r[:maxInstitution])
	}
	return s
}

func cleanInstitution(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = leadingMarks.ReplaceAllString(s, "")
	return strings.Trim(s, " ,;:-")
}

// methodsBlock collects the lines after the first Methods-like heading
// until a Results, Discussion, or Conclusions heading, or the line cap.
func methodsBlock(text string) string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if isHeading(line, methodsHeadings) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	var block []string
	for _, line := range lines[start:] {
		if len(block) == methodsMaxLines || isHeading(line, methodsEnd) {
			break
		}
		block = append(block, line)
	}
	return strings.Join(block, "\n")
}

// isHeading reports whether a short line, stripped of section numbering,
// starts with one of words.
func isHeading(line string, words []string) bool {
	s := strings.TrimSpace(strings.ReplaceAll(line, pdftext.PageBreak, ""))
	if s == "" || len(s) > maxHeadingLen {
		return false
	}
	s = strings.ToLower(headingNumber.ReplaceAllString(s, ""))
	for _, w := range words {
		if strings.HasPrefix(s, w) {
			return true
		}
	}
	return false
}

// Coordinates returns the first latitude/longitude pair in text that lies
// within range. Decimal commas are read as points; S and W are negative.
func Coordinates(text string) (lat, lon float64, ok bool) {
	for _, m := range coordPair.FindAllStringSubmatch(text, -1) {
		la, err1 := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		lo, err2 := strconv.ParseFloat(strings.Replace(m[3], ",", ".", 1), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if m[2] == "S" {
			la = -la
		}
		if m[4] == "W" {
			lo = -lo
		}
		if la < -90 || la > 90 || lo < -180 || lo > 180 {
			continue
		}
		return la, lo, true
	}
	return 0, 0, false
}

// locationSentence returns the first sentence that has a location word
// and names a country or ocean, cut to 200 characters.
func (t *Tables) locationSentence(block string) string {
	for _, s := range sentences(block) {
		if !hasAny(strings.ToLower(s), locationWords) {
			continue
		}
		_, country := t.FindCountry(s)
		_, ocean := t.FindOcean(s)
		if !country && !ocean {
			continue
		}
		if r := []rune(s); len(r) > maxLocationText {
			s = strings.TrimSpace(string(r[:maxLocationText]))
		}
		return s
	}
	return ""
}

// sentences splits text on '.', '!', or '?' followed by whitespace, with
// whitespace collapsed. Decimal points are left alone.
func sentences(text string) []string {
	flat := strings.Join(strings.Fields(text), " ")
	var out []string
	start := 0
	for i := 0; i < len(flat); i++ {
		switch flat[i] {
		case '.', '!', '?':
			if i+1 == len(flat) || flat[i+1] == ' ' {
				if s := strings.TrimSpace(flat[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(flat[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
