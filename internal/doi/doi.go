// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package doi normalizes Digital Object Identifiers and finds them in
// free text such as upstream PDF hints.
package doi

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalid is returned when no DOI can be recovered from the input.
var ErrInvalid = errors.New("no recoverable DOI")

// pattern matches a bare DOI: "10.1111/abc.123".
var pattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// searchPattern finds a DOI embedded in longer text or a URL path.
var searchPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s"<>{}|\\^` + "`" + `\[\]]+`)

// resolverPrefixes are stripped before validation, longest first.
var resolverPrefixes = []string{
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"https://doi.org/",
	"http://doi.org/",
	"dx.doi.org/",
	"doi.org/",
	"doi:",
}

const trailingPunct = ".,;:)]}'\""

// maxUnescape bounds repeated percent-decoding of multiply escaped input.
const maxUnescape = 8

// Normalize lowercases a DOI and strips resolver URL prefixes, "doi:"
// labels, percent-encoding, surrounding whitespace, and trailing
// punctuation. Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, error) {
	s, ok := unescape(strings.TrimSpace(raw))
	if !ok {
		return "", ErrInvalid
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrInvalid
	}
	for {
		stripped := false
		for _, p := range resolverPrefixes {
			if strings.HasPrefix(s, p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
			}
		}
		if !stripped {
			break
		}
	}
	s = strings.TrimRight(s, trailingPunct+" \t")
	if !pattern.MatchString(s) {
		return "", ErrInvalid
	}
	return s, nil
}

// unescape percent-decodes s until it stops changing. ok is false when
// decoding has not settled after maxUnescape rounds.
func unescape(s string) (string, bool) {
	for range maxUnescape {
		unescaped, err := url.PathUnescape(s)
		if err != nil || unescaped == s {
			return s, true
		}
		s = unescaped
	}
	return s, false
}

// Find returns the first DOI embedded in text, normalized. It returns
// ErrInvalid when text contains no DOI pattern.
func Find(text string) (string, error) {
	m := searchPattern.FindString(text)
	if m == "" {
		if unescaped, err := url.QueryUnescape(text); err == nil && unescaped != text {
			m = searchPattern.FindString(unescaped)
		}
	}
	if m == "" {
		return "", ErrInvalid
	}
	// PDF hints often carry the DOI followed by a file suffix.
	m = strings.TrimSuffix(strings.TrimSuffix(m, ".pdf"), "/pdf")
	return Normalize(m)
}

// Prefix returns the registrant prefix of a normalized DOI ("10.1371").
func Prefix(d string) string {
	if i := strings.IndexByte(d, '/'); i > 0 {
		return d[:i]
	}
	return ""
}
