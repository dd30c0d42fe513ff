// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package naming builds and parses canonical PDF filenames of the form
// Surname[.etal].Year.Title.pdf and lays them out in year folders.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdiddy/chondro/pkg/types"
)

// ErrUnparsable is returned by Parse when a filename has no author or no
// year token.
var ErrUnparsable = errors.New("filename does not parse as Author.Year.Title")

// UnknownYear is the folder used for records without a publication year.
const UnknownYear = "unknown_year"

const (
	maxTitleLen = 60
	etal        = "etal"
)

var (
	yearToken   = regexp.MustCompile(`^(19|20)\d{2}$`)
	decimalYear = regexp.MustCompile(`^((?:19|20)\d{2})\.0$`)
	unsafeChars = strings.NewReplacer("<", "", ">", "", ":", "", "\"", "", "/", "", "\\", "", "|", "", "?", "", "*", "")
	authorSplit = regexp.MustCompile(`[._\s&,;+]+`)
	versionedRe = regexp.MustCompile(`(?i)_v\d+$`)
	stopAuthors = map[string]bool{"etal": true, "et": true, "al": true, "and": true, "the": true}
)

// Parsed holds the fields recovered from a canonical filename.
type Parsed struct {
	// Author is the primary author surname, the first non-numeric token.
	Author string

	// Authors lists every surname before the year token; Authors[0] is
	// the lead author.
	Authors []string

	// EtAl is set when the filename carries an "etal" marker.
	EtAl bool

	Year  int
	Title string
}

// Parse splits a PDF filename on "." and recovers author, year, and
// title. The first non-numeric token is the author, the first 19xx/20xx
// token is the year, and every token after the year forms the title.
func Parse(filename string) (Parsed, error) {
	base := TrimExt(filepath.Base(filename))
	tokens := strings.Split(base, ".")

	yearIdx := -1
	for i, tok := range tokens {
		if yearToken.MatchString(strings.TrimSpace(tok)) {
			yearIdx = i
			break
		}
	}
	if yearIdx < 0 {
		return Parsed{}, ErrUnparsable
	}

	var p Parsed
	p.Year, _ = strconv.Atoi(strings.TrimSpace(tokens[yearIdx]))
	for _, tok := range tokens[:yearIdx] {
		if strings.EqualFold(strings.TrimSpace(tok), etal) {
			p.EtAl = true
		}
	}
	p.Authors = AuthorsFromTokens(tokens[:yearIdx])
	if len(p.Authors) == 0 {
		return Parsed{}, ErrUnparsable
	}
	p.Author = p.Authors[0]
	p.Title = strings.TrimSpace(strings.Join(tokens[yearIdx+1:], "."))
	return p, nil
}

// AuthorsFromTokens turns the filename tokens before the year into
// surnames. Connectives, digit-only tokens, and tokens of one rune or
// less are dropped.
func AuthorsFromTokens(tokens []string) []string {
	var authors []string
	for _, tok := range tokens {
		for _, part := range authorSplit.Split(tok, -1) {
			part = strings.TrimSpace(part)
			if len([]rune(part)) <= 1 || isDigits(part) {
				continue
			}
			if stopAuthors[strings.ToLower(part)] {
				continue
			}
			authors = append(authors, part)
		}
	}
	return authors
}

// TrimExt removes a trailing ".pdf" in any letter case.
func TrimExt(name string) string {
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".pdf") {
		return name[:len(name)-4]
	}
	return name
}

// Canonical builds the canonical filename for a bibliographic record.
func Canonical(rec types.Record) string {
	surname, multi := FirstAuthor(rec.Authors)
	parts := []string{surname}
	if multi {
		parts = append(parts, etal)
	}
	if rec.HasYear() {
		parts = append(parts, strconv.Itoa(rec.Year))
	} else {
		parts = append(parts, UnknownYear)
	}
	if title := SanitizeTitle(rec.Title); title != "" {
		parts = append(parts, title)
	}
	return strings.Join(parts, ".") + ".pdf"
}

// YearFolder returns the year directory name for a record year.
func YearFolder(year int) string {
	if year <= 0 {
		return UnknownYear
	}
	return strconv.Itoa(year)
}

// Path returns root/<year>/<canonical>.pdf for rec.
func Path(root string, rec types.Record) string {
	return filepath.Join(root, YearFolder(rec.Year), Canonical(rec))
}

// DecimalYear reports whether dir is a forbidden "YYYY.0" folder name and
// returns the year it should be merged into.
func DecimalYear(dir string) (string, bool) {
	m := decimalYear.FindStringSubmatch(dir)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SanitizeTitle makes a title ASCII-safe: filesystem-reserved characters
// and dots are removed, non-ASCII runes are dropped, whitespace collapses,
// and the result is cut to 60 characters on a word boundary.
func SanitizeTitle(title string) string {
	s := unsafeChars.Replace(title)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '.':
			return ' '
		case r > unicode.MaxASCII, unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxTitleLen {
		return s
	}
	cut := s[:maxTitleLen]
	if s[maxTitleLen] != ' ' {
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(cut, " ,;-")
}

// FirstAuthor extracts the lead surname from a raw author string and
// reports whether more than one author is listed. It understands
// "Surname, I.; Other, J." and "First Surname and Other" layouts.
func FirstAuthor(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Unknown", false
	}

	var first string
	multi := false
	switch {
	case strings.Contains(raw, ";"):
		parts := splitNonEmpty(raw, ";")
		first, multi = parts[0], len(parts) > 1
	case strings.Contains(raw, "&") || strings.Contains(strings.ToLower(raw), " and "):
		idx := strings.IndexAny(raw, "&")
		if i := strings.Index(strings.ToLower(raw), " and "); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
		first, multi = raw[:idx], true
		if strings.Count(first, ",") >= 2 {
			// "Heithaus, M. R., Frid, A., & Worm, B."
			first = first[:strings.IndexByte(first, ',')+1]
		}
	default:
		first = raw
		if strings.Count(raw, ",") >= 2 {
			multi = true
			first = raw[:strings.IndexByte(raw, ',')+1]
		}
	}

	var surname string
	if i := strings.IndexByte(first, ','); i >= 0 {
		surname = first[:i]
	} else {
		fields := strings.Fields(first)
		if len(fields) > 0 {
			surname = fields[len(fields)-1]
		}
	}
	surname = sanitizeSurname(surname)
	if surname == "" {
		return "Unknown", multi
	}
	return surname, multi
}

func sanitizeSurname(s string) string {
	// "van der Berg" becomes "vanderBerg".
	joined := strings.Join(strings.Fields(s), "")
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		if unicode.IsLetter(r) || r == '-' || r == '\'' {
			return r
		}
		return -1
	}, joined)
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// Versioned reports whether a filename title ends in a "_vN" suffix.
func Versioned(filename string) bool {
	return versionedRe.MatchString(TrimExt(filepath.Base(filename)))
}

// DupName returns path for n == 0 and path with _dupN before the
// extension otherwise.
func DupName(path string, n int) string {
	if n == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_dup%d%s", strings.TrimSuffix(path, ext), n, ext)
}
