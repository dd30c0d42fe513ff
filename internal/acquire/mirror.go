// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/chondro/pkg/types"
)

// mirrorSelectors locate the embedded PDF on a mirror landing page, in
// order of preference, with the attribute holding the URL.
var mirrorSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[name="citation_pdf_url"]`, "content"},
	{"embed[src]", "src"},
	{"iframe#pdf", "src"},
	{"iframe[src]", "src"},
	{`a[href$=".pdf"]`, "href"},
}

// Mirror resolves a DOI through a mirror landing page. It runs only when
// every earlier adapter missed.
type Mirror struct {
	base
	fetch   *Fetcher
	baseURL string
}

// NewMirror returns the mirror adapter for landing pages under baseURL.
func NewMirror(fetch *Fetcher, baseURL string, delay time.Duration) *Mirror {
	return &Mirror{
		base:    base{name: NameMirror, delay: delay, needsDOI: true, lastResort: true},
		fetch:   fetch,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// TryFetch implements Adapter.
func (m *Mirror) TryFetch(ctx context.Context, rec types.Record) Result {
	landing := m.baseURL + "/" + rec.DOI
	body, res := m.fetch.get(ctx, landing, "text/html,application/pdf")
	if res.Outcome != OK {
		return res
	}
	if IsPDF(body) {
		res.Data = body
		return res
	}

	link, err := PDFLink(body, res.SourceURL)
	if err != nil {
		return miss(err.Error())
	}
	if link == "" {
		return miss("no_pdf_link")
	}
	return m.fetch.GetPDF(ctx, link)
}

// PDFLink finds the embedded PDF URL in an HTML page and resolves it
// against pageURL. It returns "" when the page has no candidate.
func PDFLink(page []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parsing landing page: %w", err)
	}
	pageBase, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing page url: %w", err)
	}

	for _, s := range mirrorSelectors {
		raw, ok := doc.Find(s.selector).First().Attr(s.attr)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" || strings.HasPrefix(raw, "about:") {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		abs := pageBase.ResolveReference(ref)
		abs.Fragment = ""
		return abs.String(), nil
	}
	return "", nil
}
