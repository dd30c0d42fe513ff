// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/pdiddy/chondro/pkg/types"
)

// unpaywallAPIBase is the Unpaywall v2 endpoint. Declared as a var so
// tests can substitute an httptest server.
var unpaywallAPIBase = "https://api.unpaywall.org/v2/"

type unpaywallResponse struct {
	IsOA           bool               `json:"is_oa"`
	OAStatus       string             `json:"oa_status"`
	JournalIsOA    *bool              `json:"journal_is_oa"`
	JournalInDOAJ  *bool              `json:"journal_is_in_doaj"`
	BestOALocation *unpaywallLocation `json:"best_oa_location"`
}

type unpaywallLocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
	License   string `json:"license"`
	Version   string `json:"version"`
	HostType  string `json:"host_type"`
}

// Unpaywall resolves a DOI to its best open-access PDF and records the
// work's open-access status as a side effect.
type Unpaywall struct {
	base
	fetch    *Fetcher
	recorder OARecorder
	now      func() time.Time
}

// NewUnpaywall returns the Unpaywall adapter. recorder may be nil.
func NewUnpaywall(fetch *Fetcher, recorder OARecorder, delay time.Duration) *Unpaywall {
	return &Unpaywall{
		base:     base{name: NameUnpaywall, delay: delay, needsDOI: true},
		fetch:    fetch,
		recorder: recorder,
		now:      time.Now,
	}
}

// TryFetch implements Adapter.
func (u *Unpaywall) TryFetch(ctx context.Context, rec types.Record) Result {
	if u.fetch.Mailto == "" {
		return miss("no_contact_email")
	}
	apiURL := unpaywallAPIBase + rec.DOI + "?email=" + url.QueryEscape(u.fetch.Mailto)

	var resp unpaywallResponse
	if res := u.fetch.getJSON(ctx, apiURL, &resp); res.Outcome != OK {
		return res
	}

	st := types.OpenAccessStatus{
		DOI:           rec.DOI,
		Status:        types.ParseOAStatus(resp.OAStatus),
		IsOA:          resp.IsOA,
		JournalIsOA:   resp.JournalIsOA,
		JournalInDOAJ: resp.JournalInDOAJ,
		Source:        NameUnpaywall,
		CheckedAt:     u.now().UTC(),
	}
	pdfURL := ""
	if loc := resp.BestOALocation; loc != nil {
		pdfURL = loc.URLForPDF
		if pdfURL == "" {
			pdfURL = loc.URL
		}
		st.OAURL = pdfURL
		st.License = loc.License
		st.Version = loc.Version
		st.HostType = loc.HostType
	}
	recordOA(ctx, u.recorder, st)

	if !resp.IsOA || st.Status == types.OAClosed {
		return miss(string(types.OAClosed))
	}
	if pdfURL == "" {
		return miss("no_oa_location")
	}
	return u.fetch.GetPDF(ctx, pdfURL)
}

func recordOA(ctx context.Context, r OARecorder, st types.OpenAccessStatus) {
	if r == nil {
		return
	}
	if err := r.RecordOA(ctx, st); err != nil {
		slog.Warn("recording open-access status", "doi", st.DOI, "source", st.Source, "error", err)
	}
}
