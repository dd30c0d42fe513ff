// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"strings"
	"time"

	"github.com/pdiddy/chondro/pkg/types"
)

// Hint fetches the upstream pdf_url when it is an HTTP(S) URL.
type Hint struct {
	base
	fetch *Fetcher
}

// NewHint returns the upstream-hint adapter.
func NewHint(fetch *Fetcher, delay time.Duration) *Hint {
	return &Hint{base: base{name: NameHint, delay: delay}, fetch: fetch}
}

// TryFetch implements Adapter.
func (h *Hint) TryFetch(ctx context.Context, rec types.Record) Result {
	u := strings.TrimSpace(rec.PDFHint)
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return miss("no_hint")
	}
	return h.fetch.GetPDF(ctx, u)
}
