// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/chondro/internal/naming"
	"github.com/pdiddy/chondro/pkg/types"
)

// DefaultContextChars is the context kept on each side of a technique's
// first match.
const DefaultContextChars = 100

// MatchTechniques counts every taxonomy technique found in text. Each
// mention carries a context window around its first match.
func (t *Tables) MatchTechniques(paperID, text string, contextChars int) []types.TechniqueMention {
	if contextChars <= 0 {
		contextChars = DefaultContextChars
	}
	var out []types.TechniqueMention
	for i, tech := range t.Techniques {
		count, first := countMatches(t.techniques[i], text)
		if count == 0 {
			continue
		}
		out = append(out, types.TechniqueMention{
			PaperID:       paperID,
			Technique:     tech.Name,
			Discipline:    tech.Discipline,
			MentionCount:  count,
			ContextSample: contextWindow(text, first[0], first[1], contextChars),
		})
	}
	return out
}

// MatchSpecies counts every tracked species found in text.
func (t *Tables) MatchSpecies(paperID, text string) []types.SpeciesMention {
	var out []types.SpeciesMention
	for i, sp := range t.Species {
		if count, _ := countMatches(t.species[i], text); count > 0 {
			out = append(out, types.SpeciesMention{PaperID: paperID, Species: sp.Name, MentionCount: count})
		}
	}
	return out
}

// countMatches sums non-overlapping matches over all patterns of one
// entry and returns the span of the earliest.
func countMatches(patterns []*regexp.Regexp, text string) (int, []int) {
	count := 0
	var first []int
	var taken [][]int
	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if overlaps(taken, loc) {
				continue
			}
			taken = append(taken, loc)
			count++
			if first == nil || loc[0] < first[0] {
				first = loc
			}
		}
	}
	return count, first
}

func overlaps(spans [][]int, loc []int) bool {
	for _, s := range spans {
		if loc[0] < s[1] && s[0] < loc[1] {
			return true
		}
	}
	return false
}

// contextWindow returns up to n bytes either side of text[start:end],
// snapped to rune boundaries, with whitespace collapsed.
func contextWindow(text string, start, end, n int) string {
	lo := max(start-n, 0)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := min(end+n, len(text))
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.Join(strings.Fields(text[lo:hi]), " ")
}

// Assign builds discipline assignments from technique mentions. Each
// discipline with matched techniques gets a primary row. When the paper
// has no DATA techniques of its own, techniques from other disciplines
// that are data-science adjacent add a cross-cutting DATA row. A paper
// never has more than one row per discipline.
func (t *Tables) Assign(paperID string, year int, mentions []types.TechniqueMention) []types.DisciplineAssignment {
	byName := make(map[string]Technique, len(t.Techniques))
	for _, tech := range t.Techniques {
		byName[tech.Name] = tech
	}

	primary := make(map[types.Discipline]int)
	adjacent := 0
	for _, m := range mentions {
		primary[m.Discipline]++
		if tech, ok := byName[m.Technique]; ok && m.Discipline != types.DisciplineDATA && tech.DataAdjacent() {
			adjacent++
		}
	}

	var out []types.DisciplineAssignment
	for _, d := range types.Disciplines {
		if n := primary[d]; n > 0 {
			out = append(out, types.DisciplineAssignment{
				PaperID: paperID, Year: year, Discipline: d,
				AssignmentType: types.AssignmentPrimary, TechniqueCount: n,
			})
		}
	}
	if adjacent > 0 && primary[types.DisciplineDATA] == 0 {
		out = append(out, types.DisciplineAssignment{
			PaperID: paperID, Year: year, Discipline: types.DisciplineDATA,
			AssignmentType: types.AssignmentCrossCutting, TechniqueCount: adjacent,
		})
		sort.SliceStable(out, func(i, j int) bool { return out[i].Discipline < out[j].Discipline })
	}
	return out
}

// Authors turns a canonical filename into an ordered author list. The
// first surname is the lead author. Unparsable names yield nothing.
func Authors(filename string) []types.Authorship {
	p, err := naming.Parse(filename)
	if err != nil {
		return nil
	}
	out := make([]types.Authorship, 0, len(p.Authors))
	seen := make(map[string]bool)
	for _, name := range p.Authors {
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, types.Authorship{Surname: name, Position: len(out) + 1, IsLead: len(out) == 0})
	}
	return out
}
