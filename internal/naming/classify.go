// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package naming

import (
	"path/filepath"
	"regexp"
	"strings"
)

// FileType classifies a PDF before duplicate decisions are made. Only
// TypeMain files take part in duplicate removal.
type FileType string

const (
	TypeMain          FileType = "main"
	TypeSupplementary FileType = "supplementary"
	TypeReply         FileType = "reply"
	TypeCorrection    FileType = "correction"
	TypeCommentary    FileType = "commentary"
)

var (
	smMarker     = regexp.MustCompile(`[ _]sm[ _.]`)
	replyRe      = regexp.MustCompile(`\b(reply|rebuttal|response to)\b`)
	correctionRe = regexp.MustCompile(`\b(correction|corrigendum|erratum|errata)\b`)
	commentRe    = regexp.MustCompile(`\b(comment|commentary|comments on)\b`)
	smStrip      = regexp.MustCompile(`(?i)(\b|_)(sm|esm|supplementary|supplemental|supplement|materials?|appendix|online)(\b|_)`)
)

// Classify assigns a FileType from filename keywords.
func Classify(filename string) FileType {
	name := strings.ToLower(filepath.Base(filename))
	switch {
	case smMarker.MatchString(name) || strings.Contains(name, "supplement"):
		return TypeSupplementary
	case replyRe.MatchString(name):
		return TypeReply
	case correctionRe.MatchString(name):
		return TypeCorrection
	case commentRe.MatchString(name):
		return TypeCommentary
	}
	return TypeMain
}

// StripSupplementMarkers removes SM and supplementary words from a title
// so it can be compared to the title of its main paper.
func StripSupplementMarkers(title string) string {
	return strings.Join(strings.Fields(smStrip.ReplaceAllString(title, " ")), " ")
}

// abbreviations are the domain shorthand tokens that mark a hand-curated
// filename. More of them scores higher in the keep policy.
var abbreviations = map[string]bool{
	"etal": true, "ecol": true, "pred": true, "popns": true, "popn": true,
	"synth": true, "biol": true, "conserv": true, "mar": true, "sci": true,
	"evol": true, "behav": true, "physiol": true, "manag": true, "mgmt": true,
	"distrib": true, "assess": true, "spp": true, "env": true, "environ": true,
	"res": true, "rev": true, "reprod": true, "morphol": true, "genet": true,
	"dyn": true, "abund": true, "divers": true, "elasmo": true, "elasmobr": true,
	"chondr": true, "hab": true, "ident": true, "juv": true,
	"mov": true, "migr": true, "telem": true, "acoust": true, "stab": true,
	"isot": true, "troph": true, "comm": true, "struct": true, "import": true,
	"intl": true, "natl": true, "oceanogr": true, "phylogen": true, "tax": true,
}

// AbbreviationScore counts domain abbreviations in a filename.
func AbbreviationScore(filename string) int {
	name := strings.ToLower(TrimExt(filepath.Base(filename)))
	score := 0
	for _, tok := range authorSplit.Split(name, -1) {
		tok = strings.Trim(tok, "-()[]'")
		if abbreviations[tok] {
			score++
		}
	}
	return score
}
