// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"net/url"
	"time"

	"github.com/pdiddy/chondro/pkg/types"
)

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works/"

// openAlexWork captures the fields we need from an OpenAlex work record.
type openAlexWork struct {
	OpenAccess struct {
		IsOA     bool   `json:"is_oa"`
		OAStatus string `json:"oa_status"`
		OAURL    string `json:"oa_url"`
	} `json:"open_access"`
	BestOALocation  *openAlexLocation `json:"best_oa_location"`
	PrimaryLocation *openAlexLocation `json:"primary_location"`
}

// openAlexLocation represents a location in the OpenAlex response.
type openAlexLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
	License    string `json:"license"`
	Version    string `json:"version"`
	Source     *struct {
		Type     string `json:"type"`
		IsOA     *bool  `json:"is_oa"`
		IsInDOAJ *bool  `json:"is_in_doaj"`
	} `json:"source"`
}

// OpenAlex looks a DOI up in OpenAlex and fetches best_oa_location.pdf_url.
type OpenAlex struct {
	base
	fetch    *Fetcher
	recorder OARecorder
	now      func() time.Time
}

// NewOpenAlex returns the OpenAlex adapter. recorder may be nil.
func NewOpenAlex(fetch *Fetcher, recorder OARecorder, delay time.Duration) *OpenAlex {
	return &OpenAlex{
		base:     base{name: NameOpenAlex, delay: delay, needsDOI: true},
		fetch:    fetch,
		recorder: recorder,
		now:      time.Now,
	}
}

// TryFetch implements Adapter.
func (o *OpenAlex) TryFetch(ctx context.Context, rec types.Record) Result {
	apiURL := openAlexAPIBase + "https://doi.org/" + rec.DOI
	if o.fetch.Mailto != "" {
		apiURL += "?mailto=" + url.QueryEscape(o.fetch.Mailto)
	}

	var w openAlexWork
	if res := o.fetch.getJSON(ctx, apiURL, &w); res.Outcome != OK {
		return res
	}

	st := types.OpenAccessStatus{
		DOI:       rec.DOI,
		Status:    types.ParseOAStatus(w.OpenAccess.OAStatus),
		IsOA:      w.OpenAccess.IsOA,
		OAURL:     w.OpenAccess.OAURL,
		Source:    NameOpenAlex,
		CheckedAt: o.now().UTC(),
	}
	if p := w.PrimaryLocation; p != nil && p.Source != nil {
		st.JournalIsOA = p.Source.IsOA
		st.JournalInDOAJ = p.Source.IsInDOAJ
	}
	pdfURL := ""
	if loc := w.BestOALocation; loc != nil {
		pdfURL = loc.PDFURL
		st.License = loc.License
		st.Version = loc.Version
		if loc.Source != nil {
			st.HostType = loc.Source.Type
		}
		if pdfURL != "" {
			st.OAURL = pdfURL
		}
	}
	recordOA(ctx, o.recorder, st)

	if !w.OpenAccess.IsOA {
		return miss(string(types.OAClosed))
	}
	if pdfURL == "" {
		return miss("no_pdf_url")
	}
	return o.fetch.GetPDF(ctx, pdfURL)
}
