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

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlex queries the OpenAlex search API.
type OpenAlex struct {
	Client    *http.Client
	UserAgent string
	// Mailto is sent as mailto parameter for polite pool access.
	Mailto string
}

// Name returns the resolver identifier.
func (o *OpenAlex) Name() string { return ResolverOpenAlex }

// Candidates implements Resolver. OpenAlex search has no author field,
// so only the title is sent.
func (o *OpenAlex) Candidates(ctx context.Context, title, _ string, k int) ([]Candidate, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("empty OpenAlex query")
	}
	if k <= 0 {
		k = 5
	}
	if k > 200 {
		k = 200
	}
	params := url.Values{
		"search":   {title},
		"per_page": {fmt.Sprint(k)},
		"select":   {"id,doi,title,publication_year,authorships"},
	}
	if o.Mailto != "" {
		params.Set("mailto", o.Mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httputil.SetHeaders(req, o.UserAgent, "")

	resp, err := httputil.DoWithRetry(ctx, o.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	var out []Candidate
	for _, work := range oar.Results {
		c := Candidate{
			Title: work.Title,
			DOI:   strings.TrimPrefix(work.DOI, "https://doi.org/"),
			Year:  work.PublicationYear,
		}
		for _, a := range work.Authorships {
			if a.Author.DisplayName != "" {
				c.Authors = append(c.Authors, a.Author.DisplayName)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	DOI             string               `json:"doi"`
	PublicationYear int                  `json:"publication_year"`
	Authorships     []openAlexAuthorship `json:"authorships"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}
