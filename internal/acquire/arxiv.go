// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pdiddy/chondro/internal/naming"
	"github.com/pdiddy/chondro/internal/similarity"
	"github.com/pdiddy/chondro/pkg/types"
)

// arxivAPIBase is the arXiv query endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivMinSimilarity is the title similarity an arXiv entry must reach.
const ArxivMinSimilarity = 0.9

const arxivMaxResults = 5

// Arxiv searches arXiv for a preprint by title and first author.
type Arxiv struct {
	base
	fetch *Fetcher
}

// NewArxiv returns the arXiv preprint adapter.
func NewArxiv(fetch *Fetcher, delay time.Duration) *Arxiv {
	return &Arxiv{base: base{name: NameArxiv, delay: delay}, fetch: fetch}
}

// TryFetch implements Adapter.
func (a *Arxiv) TryFetch(ctx context.Context, rec types.Record) Result {
	title := similarity.Normalize(rec.Title)
	if title == "" {
		return miss("no_title")
	}
	query := fmt.Sprintf(`ti:"%s"`, title)
	if surname, _ := naming.FirstAuthor(rec.Authors); surname != "Unknown" {
		query += " AND au:" + surname
	}
	params := url.Values{
		"search_query": {query},
		"max_results":  {fmt.Sprint(arxivMaxResults)},
	}

	body, res := a.fetch.get(ctx, arxivAPIBase+"?"+params.Encode(), "application/atom+xml")
	if res.Outcome != OK {
		return res
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return transient(fmt.Sprintf("parsing arXiv feed: %v", err))
	}

	for _, item := range feed.Items {
		if similarity.TitleRatio(item.Title, rec.Title) < ArxivMinSimilarity {
			continue
		}
		if link := arxivPDFLink(item); link != "" {
			return a.fetch.GetPDF(ctx, link)
		}
	}
	return miss("no_match")
}

// arxivPDFLink returns the PDF URL of an entry. The Atom translator drops
// rel="related" links, so the abstract URL is rewritten when no /pdf/
// link survives.
func arxivPDFLink(item *gofeed.Item) string {
	for _, l := range item.Links {
		if strings.Contains(l, "/pdf/") {
			return l
		}
	}
	for _, s := range []string{item.GUID, item.Link} {
		if strings.Contains(s, "/abs/") {
			return strings.Replace(s, "/abs/", "/pdf/", 1)
		}
	}
	return ""
}
