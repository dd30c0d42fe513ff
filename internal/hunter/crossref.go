// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package hunter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/chondro/internal/httputil"
)

// crossrefAPIBase is the CrossRef works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossrefAPIBase = "https://api.crossref.org/works"

// CrossRef queries the CrossRef REST API.
type CrossRef struct {
	Client    *http.Client
	UserAgent string
	// Mailto is sent as the mailto parameter for polite pool access.
	Mailto string
}

// Name returns the resolver identifier.
func (c *CrossRef) Name() string { return ResolverCrossRef }

// Candidates implements Resolver with query.bibliographic and query.author.
func (c *CrossRef) Candidates(ctx context.Context, title, authors string, k int) ([]Candidate, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("empty CrossRef query")
	}
	if k <= 0 {
		k = 5
	}
	params := url.Values{
		"query.bibliographic": {title},
		"rows":                {fmt.Sprint(k)},
		"select":              {"DOI,title,author,issued"},
	}
	if authors = strings.TrimSpace(authors); authors != "" {
		params.Set("query.author", authors)
	}
	if c.Mailto != "" {
		params.Set("mailto", c.Mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crossrefAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httputil.SetHeaders(req, c.UserAgent, c.Mailto)

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("CrossRef API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CrossRef API returned HTTP %d", resp.StatusCode)
	}

	var cr crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("parsing CrossRef response: %w", err)
	}

	var out []Candidate
	for _, item := range cr.Message.Items {
		cand := Candidate{DOI: item.DOI}
		if len(item.Title) > 0 {
			cand.Title = item.Title[0]
		}
		for _, a := range item.Author {
			if name := strings.TrimSpace(a.Given + " " + a.Family); name != "" {
				cand.Authors = append(cand.Authors, name)
			}
		}
		if len(item.Issued.DateParts) > 0 && len(item.Issued.DateParts[0]) > 0 {
			cand.Year = item.Issued.DateParts[0][0]
		}
		out = append(out, cand)
	}
	return out, nil
}

// CrossRef API JSON structures.
type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	DOI    string           `json:"DOI"`
	Title  []string         `json:"title"`
	Author []crossrefAuthor `json:"author"`
	Issued crossrefDate     `json:"issued"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}
