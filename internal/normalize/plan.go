// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/chondro/internal/naming"
	"github.com/pdiddy/chondro/internal/similarity"
)

// Action is what a plan entry asks ApplyPlan to do.
type Action string

const (
	// ActionRemove deletes a duplicate; KeepPath is the surviving copy.
	ActionRemove Action = "remove"

	// ActionRelocate moves a file into its year folder; KeepPath is the
	// destination.
	ActionRelocate Action = "relocate"

	// ActionSupplement records which main paper a supplementary file
	// belongs to. It never changes the filesystem.
	ActionSupplement Action = "supplement"
)

// Default thresholds for the planner.
const (
	DefaultTitleThreshold      = 0.6
	DefaultSupplementThreshold = 0.5
)

// preferred title length band for the keep policy.
const (
	bandMin = 40
	bandMax = 80
)

// Entry is one planned change.
type Entry struct {
	Action   Action
	Path     string
	KeepPath string
	Reason   string
	Size     int64
	SHA256   string
}

// Plan is the reviewable output of a planning pass.
type Plan struct {
	ID         string
	Created    time.Time
	Entries    []Entry
	Unparsable []string
}

// Count returns the number of entries with action a.
func (p Plan) Count(a Action) int {
	n := 0
	for _, e := range p.Entries {
		if e.Action == a {
			n++
		}
	}
	return n
}

// Planner groups duplicate papers and decides which copy survives.
type Planner struct {
	// Root enables year-folder relocation when set.
	Root string

	TitleThreshold      float64
	SupplementThreshold float64
}

// PlanRoot scans root and plans over everything found.
func (pl *Planner) PlanRoot(root string) (Plan, error) {
	files, unparsable, err := Scan(root)
	if err != nil {
		return Plan{}, err
	}
	if pl.Root == "" {
		pl.Root = root
	}
	plan, err := pl.Plan(files)
	if err != nil {
		return Plan{}, err
	}
	plan.Unparsable = unparsable
	return plan, nil
}

// Plan builds a plan from scanned files. Main files in the same
// author+year bucket are duplicates when their titles are similar
// enough; main files anywhere with identical content are duplicates
// too. Supplementary, reply, correction, and commentary files are never
// removed.
func (pl *Planner) Plan(files []File) (Plan, error) {
	titleThr := pl.TitleThreshold
	if titleThr <= 0 {
		titleThr = DefaultTitleThreshold
	}
	suppThr := pl.SupplementThreshold
	if suppThr <= 0 {
		suppThr = DefaultSupplementThreshold
	}

	plan := Plan{ID: uuid.NewString(), Created: time.Now().UTC()}
	h := &hasher{}

	var mains []File
	for _, f := range files {
		if f.Type == naming.TypeMain {
			mains = append(mains, f)
		}
	}
	uf := newUnionFind(len(mains))

	buckets := make(map[string][]int)
	for i, f := range mains {
		buckets[f.bucket()] = append(buckets[f.bucket()], i)
	}
	for _, idx := range buckets {
		for a := 0; a < len(idx); a++ {
			for b := a + 1; b < len(idx); b++ {
				fa, fb := mains[idx[a]], mains[idx[b]]
				if similarity.TitleRatio(fa.Parsed.Title, fb.Parsed.Title) >= titleThr {
					uf.union(idx[a], idx[b])
				}
			}
		}
	}

	// Equal sizes are only a hint; identical content decides.
	bySize := make(map[int64][]int)
	for i, f := range mains {
		bySize[f.Size] = append(bySize[f.Size], i)
	}
	for _, idx := range bySize {
		if len(idx) < 2 {
			continue
		}
		byHash := make(map[string]int)
		for _, i := range idx {
			sum, err := h.sum(mains[i].Path)
			if err != nil {
				return Plan{}, err
			}
			if first, ok := byHash[sum]; ok {
				uf.union(first, i)
			} else {
				byHash[sum] = i
			}
		}
	}

	groups := make(map[int][]int)
	for i := range mains {
		r := uf.find(i)
		groups[r] = append(groups[r], i)
	}

	keeper := make(map[string]string) // main path -> surviving path
	removed := make(map[string]bool)
	for _, members := range groups {
		sort.Slice(members, func(a, b int) bool { return better(mains[members[a]], mains[members[b]]) })
		// Grouping is transitive, so each removal is checked against its
		// keeper directly. Members that do not match start a new group.
		for len(members) > 0 {
			keep := mains[members[0]]
			keeper[keep.Path] = keep.Path
			var rest []int
			for _, i := range members[1:] {
				f := mains[i]
				reason, dup, err := duplicateOf(h, f, keep, titleThr)
				if err != nil {
					return Plan{}, err
				}
				if !dup {
					rest = append(rest, i)
					continue
				}
				keeper[f.Path] = keep.Path
				removed[f.Path] = true

				sum, err := h.sum(f.Path)
				if err != nil {
					return Plan{}, err
				}
				plan.Entries = append(plan.Entries, Entry{
					Action: ActionRemove, Path: f.Path, KeepPath: keep.Path,
					Reason: reason, Size: f.Size, SHA256: sum,
				})
			}
			members = rest
		}
	}

	for _, f := range files {
		if f.Type != naming.TypeSupplementary {
			continue
		}
		e := Entry{Action: ActionSupplement, Path: f.Path, Size: f.Size, Reason: "no_main_paper"}
		stripped := naming.StripSupplementMarkers(f.Parsed.Title)
		best := 0.0
		for _, i := range buckets[f.bucket()] {
			m := mains[i]
			if r := similarity.TitleRatio(stripped, m.Parsed.Title); r > suppThr && r > best {
				best = r
				e.KeepPath = keeper[m.Path]
				e.Reason = fmt.Sprintf("title_similarity=%.2f", r)
			}
		}
		plan.Entries = append(plan.Entries, e)
	}

	if pl.Root != "" {
		for _, f := range files {
			if removed[f.Path] {
				continue
			}
			if e, ok := pl.relocation(f); ok {
				plan.Entries = append(plan.Entries, e)
			}
		}
	}

	sort.SliceStable(plan.Entries, func(i, j int) bool {
		if plan.Entries[i].Action != plan.Entries[j].Action {
			return plan.Entries[i].Action < plan.Entries[j].Action
		}
		return plan.Entries[i].Path < plan.Entries[j].Path
	})
	return plan, nil
}

// duplicateOf reports whether f duplicates keep: identical content, or
// a similar title in the same author+year bucket.
func duplicateOf(h *hasher, f, keep File, titleThr float64) (string, bool, error) {
	if f.Size == keep.Size {
		sum, err := h.sum(f.Path)
		if err != nil {
			return "", false, err
		}
		keepSum, err := h.sum(keep.Path)
		if err != nil {
			return "", false, err
		}
		if sum == keepSum {
			return "identical_content", true, nil
		}
	}
	if f.bucket() != keep.bucket() {
		return "", false, nil
	}
	r := similarity.TitleRatio(f.Parsed.Title, keep.Parsed.Title)
	return fmt.Sprintf("title_similarity=%.2f", r), r >= titleThr, nil
}

// relocation plans a move when f is not in the folder for its parsed
// year. Files in decimal year folders are left to Consolidate.
func (pl *Planner) relocation(f File) (Entry, bool) {
	dir := filepath.Dir(f.Path)
	if _, ok := naming.DecimalYear(filepath.Base(dir)); ok {
		return Entry{}, false
	}
	want := filepath.Join(pl.Root, naming.YearFolder(f.Parsed.Year))
	if filepath.Clean(dir) == filepath.Clean(want) {
		return Entry{}, false
	}
	return Entry{
		Action:   ActionRelocate,
		Path:     f.Path,
		KeepPath: filepath.Join(want, f.Name),
		Reason:   "year_folder",
		Size:     f.Size,
	}, true
}

// better reports whether a should be kept over b: more domain
// abbreviations, then no _vN suffix, then a title inside the 40-80 band,
// then the shorter title, then the lexically smaller path.
func better(a, b File) bool {
	if sa, sb := naming.AbbreviationScore(a.Name), naming.AbbreviationScore(b.Name); sa != sb {
		return sa > sb
	}
	if va, vb := naming.Versioned(a.Name), naming.Versioned(b.Name); va != vb {
		return !va
	}
	la, lb := len([]rune(a.Parsed.Title)), len([]rune(b.Parsed.Title))
	if ia, ib := inBand(la), inBand(lb); ia != ib {
		return ia
	}
	if la != lb {
		return la < lb
	}
	return a.Path < b.Path
}

func inBand(n int) bool {
	return n >= bandMin && n <= bandMax
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// Summary counts the plan's entries by action.
func (p Plan) Summary() string {
	return strings.Join([]string{
		fmt.Sprintf("%d remove", p.Count(ActionRemove)),
		fmt.Sprintf("%d relocate", p.Count(ActionRelocate)),
		fmt.Sprintf("%d supplement", p.Count(ActionSupplement)),
		fmt.Sprintf("%d unparsable", len(p.Unparsable)),
	}, ", ")
}
