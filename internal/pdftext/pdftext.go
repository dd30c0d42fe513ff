// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftext extracts plain text from PDFs with pluggable backends:
// the pdftotext subprocess (default) and a pure-Go reader. Pages are
// separated by form feeds in both backends.
package pdftext

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/chondro/internal/tool"
)

// Backend names accepted by New.
const (
	BackendPDFToText = "pdftotext"
	BackendNative    = "native"
)

// PageBreak separates pages in extracted text.
const PageBreak = "\f"

// Extractor returns the text of pages first through last (1-based). A
// last of zero means the final page. Implementations honor ctx and
// return an error wrapping tool.ErrTimeout when the budget runs out.
type Extractor interface {
	Text(ctx context.Context, path string, first, last int) (string, error)
}

// New returns the extractor for backend with a per-call timeout.
func New(backend string, runner *tool.Runner, timeout time.Duration) (Extractor, error) {
	switch backend {
	case "", BackendPDFToText:
		return &Poppler{Runner: runner, Timeout: timeout}, nil
	case BackendNative:
		return &Native{Timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown text backend %q", backend)
	}
}

// Poppler runs `pdftotext <pdf> -`.
type Poppler struct {
	Runner  *tool.Runner
	Timeout time.Duration
}

// Text implements Extractor.
func (p *Poppler) Text(ctx context.Context, path string, first, last int) (string, error) {
	args := []string{"-enc", "UTF-8"}
	if first > 0 {
		args = append(args, "-f", strconv.Itoa(first))
	}
	if last > 0 {
		args = append(args, "-l", strconv.Itoa(last))
	}
	args = append(args, path, "-")

	res, err := p.Runner.Run(ctx, p.Timeout, tool.PDFToText, args...)
	if err != nil {
		return "", err
	}
	return string(res.Stdout), nil
}

// Native reads the PDF in-process with github.com/ledongthuc/pdf.
type Native struct {
	Timeout time.Duration
}

// Text implements Extractor. The reader is not context-aware, so it runs
// in its own goroutine and is abandoned on timeout.
func (n *Native) Text(ctx context.Context, path string, first, last int) (string, error) {
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("reading %s: %v", path, r)}
			}
		}()
		text, err := nativeText(path, first, last)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("native text after %v: %w", n.Timeout, tool.ErrTimeout)
		}
		return "", ctx.Err()
	}
}

func nativeText(path string, first, last int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if first <= 0 {
		first = 1
	}
	if last <= 0 || last > r.NumPage() {
		last = r.NumPage()
	}

	var b strings.Builder
	for i := first; i <= last; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			b.WriteString(PageBreak)
			continue
		}
		text, err := page.GetPlainText(nil)
		if err == nil {
			b.WriteString(text)
		}
		b.WriteString(PageBreak)
	}
	return b.String(), nil
}

// Pages splits extracted text on form feeds.
func Pages(text string) []string {
	return strings.Split(text, PageBreak)
}

// FirstPage returns the text before the first form feed.
func FirstPage(text string) string {
	if i := strings.Index(text, PageBreak); i >= 0 {
		return text[:i]
	}
	return text
}

// FirstPages returns the text of the first n pages.
func FirstPages(text string, n int) string {
	pages := Pages(text)
	if len(pages) > n {
		pages = pages[:n]
	}
	return strings.Join(pages, PageBreak)
}

// Info is the subset of pdfinfo output the pipeline uses.
type Info struct {
	Pages  int
	Title  string
	Author string
}

// ReadInfo runs pdfinfo on path. When pdfinfo is not installed it falls
// back to the native reader for the page count.
func ReadInfo(ctx context.Context, runner *tool.Runner, path string, timeout time.Duration) (Info, error) {
	if !runner.Available(tool.PDFInfo) {
		return nativeInfo(path)
	}
	res, err := runner.Run(ctx, timeout, tool.PDFInfo, path)
	if err != nil {
		return Info{}, err
	}
	return ParseInfo(res.Stdout), nil
}

// ParseInfo reads "Key:   value" lines from pdfinfo output.
func ParseInfo(out []byte) Info {
	var info Info
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Pages":
			info.Pages, _ = strconv.Atoi(value)
		case "Title":
			info.Title = value
		case "Author":
			info.Author = value
		}
	}
	return info
}

func nativeInfo(path string) (info Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Info{Pages: r.NumPage()}, nil
}
