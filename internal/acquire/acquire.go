// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire fetches PDF bytes for bibliographic records through an
// ordered chain of source adapters. Each adapter reports a tagged Result;
// the chain walks adapters in priority order and stops at the first
// verified PDF.
package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/chondro/internal/httputil"
	"github.com/pdiddy/chondro/pkg/types"
)

// Outcome classifies one adapter attempt.
type Outcome int

const (
	// OK means Data holds the fetched document.
	OK Outcome = iota
	// Miss means the source does not have the document.
	Miss
	// Blocked means the source refused access (auth, paywall, rate limit).
	Blocked
	// Transient means a network or server error that may clear on retry.
	Transient
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Miss:
		return "miss"
	case Blocked:
		return "blocked"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the tagged value returned by an adapter.
type Result struct {
	Outcome     Outcome
	Data        []byte
	ContentType string
	SourceURL   string
	Detail      string

	// Adapter names the adapter that produced the result. Set by Chain.
	Adapter string
}

func miss(detail string) Result      { return Result{Outcome: Miss, Detail: detail} }
func transient(detail string) Result { return Result{Outcome: Transient, Detail: detail} }

// Adapter is one PDF source.
type Adapter interface {
	Name() string
	PolitenessDelay() time.Duration
	RequiresDOI() bool
	LastResort() bool
	TryFetch(ctx context.Context, rec types.Record) Result
}

// OARecorder persists open-access status discovered by resolver adapters.
type OARecorder interface {
	RecordOA(ctx context.Context, st types.OpenAccessStatus) error
}

// base carries the static adapter properties.
type base struct {
	name       string
	delay      time.Duration
	needsDOI   bool
	lastResort bool
}

func (b base) Name() string                   { return b.name }
func (b base) PolitenessDelay() time.Duration { return b.delay }
func (b base) RequiresDOI() bool              { return b.needsDOI }
func (b base) LastResort() bool               { return b.lastResort }

// MaxPDFBytes caps a single download.
var MaxPDFBytes int64 = 100 << 20

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

// classifyStatus maps a non-200 HTTP status onto an outcome.
func classifyStatus(code int) Result {
	detail := fmt.Sprintf("http_%d", code)
	switch {
	case code == http.StatusOK:
		return Result{Outcome: OK}
	case code == http.StatusNotFound || code == http.StatusGone:
		return miss(detail)
	case code == http.StatusUnauthorized || code == http.StatusForbidden ||
		code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		return Result{Outcome: Blocked, Detail: detail}
	case code >= 500:
		return transient(detail)
	default:
		return miss(detail)
	}
}

// Fetcher performs the HTTP requests shared by the network adapters.
type Fetcher struct {
	Client     *http.Client
	UserAgent  string
	Mailto     string
	MaxRetries int
}

// get issues a GET with retries on 429/503 and reads at most MaxPDFBytes
// of the body. A non-OK Result is returned for any failure.
func (f *Fetcher) get(ctx context.Context, rawURL, accept string) ([]byte, Result) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, miss(fmt.Sprintf("bad_url: %v", err))
	}
	httputil.SetHeaders(req, f.UserAgent, f.Mailto)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := httputil.DoWithRetry(ctx, f.Client, req, f.MaxRetries)
	if err != nil {
		return nil, transient(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		r := classifyStatus(resp.StatusCode)
		r.SourceURL = rawURL
		return nil, r
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPDFBytes+1))
	if err != nil {
		return nil, transient(fmt.Sprintf("reading body: %v", err))
	}
	if int64(len(data)) > MaxPDFBytes {
		return nil, miss("too_large")
	}
	return data, Result{
		Outcome:     OK,
		ContentType: resp.Header.Get("Content-Type"),
		SourceURL:   resp.Request.URL.String(),
	}
}

// GetPDF downloads rawURL and verifies the PDF magic bytes. A body that
// is not a PDF is a Miss so the next adapter is tried.
func (f *Fetcher) GetPDF(ctx context.Context, rawURL string) Result {
	data, res := f.get(ctx, rawURL, "application/pdf")
	if res.Outcome != OK {
		return res
	}
	if !IsPDF(data) {
		return Result{Outcome: Miss, Detail: string(types.ErrContentNotPDF), SourceURL: res.SourceURL}
	}
	res.Data = data
	return res
}

// getJSON fetches rawURL and decodes the body into v.
func (f *Fetcher) getJSON(ctx context.Context, rawURL string, v any) Result {
	data, res := f.get(ctx, rawURL, "application/json")
	if res.Outcome != OK {
		return res
	}
	if err := json.Unmarshal(data, v); err != nil {
		return transient(fmt.Sprintf("decoding %s: %v", rawURL, err))
	}
	return res
}
