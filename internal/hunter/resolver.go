// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package hunter

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/chondro/internal/similarity"
)

// Resolver names accepted in doi.resolver.
const (
	ResolverCrossRef = "crossref"
	ResolverOpenAlex = "openalex"
)

// Candidate is one work returned by a metadata resolver.
type Candidate struct {
	Title   string
	DOI     string
	Authors []string
	Year    int
}

// Resolver looks works up by title. Candidates are returned in the
// resolver's relevance order.
type Resolver interface {
	Name() string
	Candidates(ctx context.Context, title, authors string, k int) ([]Candidate, error)
}

// NewResolver returns the resolver called name.
func NewResolver(name string, client *http.Client, userAgent, mailto string) (Resolver, error) {
	switch strings.ToLower(name) {
	case "", ResolverCrossRef:
		return &CrossRef{Client: client, UserAgent: userAgent, Mailto: mailto}, nil
	case ResolverOpenAlex:
		return &OpenAlex{Client: client, UserAgent: userAgent, Mailto: mailto}, nil
	default:
		return nil, fmt.Errorf("unknown resolver %q", name)
	}
}

// Scored is a candidate with its title similarity to the record.
type Scored struct {
	Candidate
	Score float64
}

// Best returns the candidate whose title is most similar to title. Ties
// keep the resolver's order. ok is false when there are no candidates
// with a DOI.
func Best(title string, candidates []Candidate) (best Scored, ok bool) {
	for _, c := range candidates {
		if c.DOI == "" {
			continue
		}
		score := similarity.TitleRatio(title, c.Title)
		if !ok || score > best.Score {
			best, ok = Scored{Candidate: c, Score: score}, true
		}
	}
	return best, ok
}
