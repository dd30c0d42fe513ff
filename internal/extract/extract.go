// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns PDF text into corpus signals: technique and
// species mentions, discipline assignments, filename authors, and author
// and study geography. Lookup tables are compiled once and shared by a
// pool of workers that feed a single batching writer.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/chondro/internal/naming"
	"github.com/pdiddy/chondro/internal/pdftext"
	"github.com/pdiddy/chondro/internal/tool"
	"github.com/pdiddy/chondro/pkg/types"
)

// DefaultMaxTextChars rejects text dumps larger than this.
const DefaultMaxTextChars = 500_000

const maxErrorLen = 200

// Extractor analyses one PDF at a time. It is safe for concurrent use.
type Extractor struct {
	Tables       *Tables
	Text         pdftext.Extractor
	MaxTextChars int
	ContextChars int
}

// PaperID is the filename without its extension.
func PaperID(path string) string {
	return naming.TrimExt(filepath.Base(path))
}

// Extract reads the text of path and analyses it. Text failures are
// reported in the result's status, never as an error; only a cancelled
// context or a missing tool is returned as one.
func (x *Extractor) Extract(ctx context.Context, path string) (types.PaperResult, error) {
	r := types.PaperResult{PaperID: PaperID(path), PDFPath: path}
	if p, err := naming.Parse(path); err == nil {
		r.Year = p.Year
	}

	text, err := x.Text.Text(ctx, path, 0, 0)
	switch {
	case ctx.Err() != nil:
		return r, ctx.Err()
	case errors.Is(err, tool.ErrToolMissing):
		return r, err
	case errors.Is(err, tool.ErrTimeout):
		return failed(r, types.ExtractionFailedTimeout, types.ErrTextExtractTimeout, err.Error()), nil
	case err != nil:
		return failed(r, types.ExtractionFailedText, types.ErrTextExtractEmpty, err.Error()), nil
	}

	limit := x.MaxTextChars
	if limit <= 0 {
		limit = DefaultMaxTextChars
	}
	if strings.TrimSpace(strings.ReplaceAll(text, pdftext.PageBreak, "")) == "" {
		return failed(r, types.ExtractionFailedText, types.ErrTextExtractEmpty, "no text extracted"), nil
	}
	if n := utf8.RuneCountInString(text); n > limit {
		return failed(r, types.ExtractionFailedText, types.ErrTextExtractEmpty,
			fmt.Sprintf("text has %d characters, limit is %d", n, limit)), nil
	}

	return x.Analyze(r, text), nil
}

// Analyze fills r from already extracted text.
func (x *Extractor) Analyze(r types.PaperResult, text string) types.PaperResult {
	t := x.Tables
	r.Status = types.ExtractionSuccess
	r.Techniques = t.MatchTechniques(r.PaperID, text, x.ContextChars)
	r.Disciplines = t.Assign(r.PaperID, r.Year, r.Techniques)
	r.Species = t.MatchSpecies(r.PaperID, text)
	r.Authors = Authors(r.PDFPath)
	geo := t.Geography(r.PaperID, text)
	r.Geography = &geo
	return r
}

func failed(r types.PaperResult, status types.ExtractionStatus, kind types.ErrorKind, msg string) types.PaperResult {
	r.Status = status
	r.ErrorKind = kind
	msg = strings.Join(strings.Fields(msg), " ")
	if rs := []rune(msg); len(rs) > maxErrorLen {
		msg = string(rs[:maxErrorLen])
	}
	r.Error = msg
	return r
}
