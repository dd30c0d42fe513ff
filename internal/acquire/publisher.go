// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"strings"
	"time"

	"github.com/pdiddy/chondro/pkg/types"
)

// DefaultPublisherTemplates maps DOI prefixes of open publishers to
// direct PDF URLs. Placeholders: {doi} is the full DOI, {suffix} the part
// after the registrant slash, {suffix_tail} the part after the last dot
// of the suffix. The longest matching prefix wins, so a journal-level
// prefix such as 10.1038/s41598 is not shadowed by 10.1038.
var DefaultPublisherTemplates = map[string]string{
	"10.1371":        "https://journals.plos.org/plosone/article/file?id={doi}&type=printable",
	"10.7717":        "https://peerj.com/articles/{suffix_tail}.pdf",
	"10.3389":        "https://www.frontiersin.org/articles/{doi}/pdf",
	"10.1038/s41598": "https://www.nature.com/articles/{suffix}.pdf",
	"10.1038/srep":   "https://www.nature.com/articles/{suffix}.pdf",
	"10.1186":        "https://link.springer.com/content/pdf/{doi}.pdf",
}

// Publisher builds a deterministic PDF URL from the DOI prefix.
type Publisher struct {
	base
	fetch     *Fetcher
	templates map[string]string
}

// NewPublisher returns the publisher adapter. Entries in extra override
// or extend DefaultPublisherTemplates.
func NewPublisher(fetch *Fetcher, extra map[string]string, delay time.Duration) *Publisher {
	templates := make(map[string]string, len(DefaultPublisherTemplates)+len(extra))
	for k, v := range DefaultPublisherTemplates {
		templates[k] = v
	}
	for k, v := range extra {
		templates[strings.ToLower(k)] = v
	}
	return &Publisher{
		base:      base{name: NamePublisher, delay: delay, needsDOI: true},
		fetch:     fetch,
		templates: templates,
	}
}

// URL returns the PDF URL for d, or "" when no template matches.
func (p *Publisher) URL(d string) string {
	best := ""
	for prefix := range p.templates {
		if strings.HasPrefix(d, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return ""
	}
	_, suffix, _ := strings.Cut(d, "/")
	tail := suffix
	if i := strings.LastIndexByte(suffix, '.'); i >= 0 {
		tail = suffix[i+1:]
	}
	return strings.NewReplacer(
		"{doi}", d,
		"{suffix}", suffix,
		"{suffix_tail}", tail,
	).Replace(p.templates[best])
}

// TryFetch implements Adapter.
func (p *Publisher) TryFetch(ctx context.Context, rec types.Record) Result {
	u := p.URL(rec.DOI)
	if u == "" {
		return miss("no_template")
	}
	return p.fetch.GetPDF(ctx, u)
}
