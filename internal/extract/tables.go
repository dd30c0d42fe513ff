// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/chondro/pkg/types"
)

//go:embed data/*.yaml
var defaultData embed.FS

// Default lookup file names, shipped with the binary and written by
// WriteDefaults.
const (
	TaxonomyFile  = "taxonomy.yaml"
	CountriesFile = "countries.yaml"
	OceansFile    = "oceans.yaml"
	SpeciesFile   = "species.yaml"
)

// ErrTable is returned when a lookup file is malformed.
var ErrTable = errors.New("invalid lookup table")

// Technique is one entry of the taxonomy. The three flags are pointers so
// that a missing key can be told apart from false.
type Technique struct {
	Name                string           `yaml:"name"`
	Discipline          types.Discipline `yaml:"discipline"`
	Patterns            []string         `yaml:"patterns,omitempty"`
	StatisticalModel    *bool            `yaml:"statistical_model"`
	AnalyticalAlgorithm *bool            `yaml:"analytical_algorithm"`
	InferenceFramework  *bool            `yaml:"inference_framework"`
}

// DataAdjacent reports whether the technique counts toward the DATA
// overlay: it is a DATA technique or carries any of the three flags.
func (t Technique) DataAdjacent() bool {
	return t.Discipline == types.DisciplineDATA ||
		deref(t.StatisticalModel) || deref(t.AnalyticalAlgorithm) || deref(t.InferenceFramework)
}

func deref(b *bool) bool {
	return b != nil && *b
}

// Taxonomy is the technique table.
type Taxonomy struct {
	Techniques []Technique `yaml:"techniques"`
}

// Place is a country or ocean basin with the phrases that identify it.
type Place struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns,omitempty"`
}

// CountryTable lists countries and the Global North set.
type CountryTable struct {
	Countries   []Place  `yaml:"countries"`
	GlobalNorth []string `yaml:"global_north"`
}

// OceanTable lists ocean basins.
type OceanTable struct {
	Oceans []Place `yaml:"oceans"`
}

// SpeciesTable lists species of interest.
type SpeciesTable struct {
	Species []Place `yaml:"species"`
}

// LoadTaxonomy reads and validates a taxonomy file. Every technique needs
// a name, a known discipline, and all three flags.
func LoadTaxonomy(path string) (Taxonomy, error) {
	var t Taxonomy
	if err := readYAML(path, TaxonomyFile, &t); err != nil {
		return t, err
	}
	if len(t.Techniques) == 0 {
		return t, fmt.Errorf("%w: %s has no techniques", ErrTable, path)
	}
	seen := make(map[string]bool)
	for i, tech := range t.Techniques {
		switch {
		case strings.TrimSpace(tech.Name) == "":
			return t, fmt.Errorf("%w: technique %d has no name", ErrTable, i+1)
		case seen[tech.Name]:
			return t, fmt.Errorf("%w: technique %q listed twice", ErrTable, tech.Name)
		case !tech.Discipline.Valid():
			return t, fmt.Errorf("%w: technique %q has unknown discipline %q", ErrTable, tech.Name, tech.Discipline)
		case tech.StatisticalModel == nil, tech.AnalyticalAlgorithm == nil, tech.InferenceFramework == nil:
			return t, fmt.Errorf("%w: technique %q must set statistical_model, analytical_algorithm, and inference_framework",
				ErrTable, tech.Name)
		}
		seen[tech.Name] = true
	}
	return t, nil
}

// LoadCountries reads a country table.
func LoadCountries(path string) (CountryTable, error) {
	var c CountryTable
	if err := readYAML(path, CountriesFile, &c); err != nil {
		return c, err
	}
	if err := checkPlaces(path, c.Countries); err != nil {
		return c, err
	}
	return c, nil
}

// LoadOceans reads an ocean basin table.
func LoadOceans(path string) (OceanTable, error) {
	var o OceanTable
	if err := readYAML(path, OceansFile, &o); err != nil {
		return o, err
	}
	return o, checkPlaces(path, o.Oceans)
}

// LoadSpecies reads a species table.
func LoadSpecies(path string) (SpeciesTable, error) {
	var s SpeciesTable
	if err := readYAML(path, SpeciesFile, &s); err != nil {
		return s, err
	}
	return s, checkPlaces(path, s.Species)
}

func checkPlaces(path string, places []Place) error {
	for i, p := range places {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: %s entry %d has no name", ErrTable, path, i+1)
		}
	}
	return nil
}

// readYAML decodes path into v. An empty path reads the embedded default.
func readYAML(path, defaultName string, v any) error {
	var data []byte
	var err error
	if path == "" {
		data, err = defaultData.ReadFile("data/" + defaultName)
		path = defaultName
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrTable, path, err)
	}
	return nil
}

// WriteDefaults writes the embedded lookup tables into dir, leaving
// existing files alone. It returns the paths written.
func WriteDefaults(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	entries, err := fs.ReadDir(defaultData, "data")
	if err != nil {
		return nil, err
	}
	var written []string
	for _, e := range entries {
		dst := filepath.Join(dir, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		data, err := defaultData.ReadFile("data/" + e.Name())
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", dst, err)
		}
		written = append(written, dst)
	}
	return written, nil
}

// pattern is one compiled phrase pointing back at its entry.
type pattern struct {
	re    *regexp.Regexp
	size  int
	index int
}

// Tables is the compiled, read-only form of every lookup table. One value
// is shared by all workers.
type Tables struct {
	Techniques []Technique
	Species    []Place

	techniques [][]*regexp.Regexp
	species    [][]*regexp.Regexp

	countryNames []string
	countries    []pattern
	oceanNames   []string
	oceans       []pattern
	north        map[string]bool
}

// Compile builds Tables from loaded lookup data.
func Compile(tax Taxonomy, countries CountryTable, oceans OceanTable, species SpeciesTable) (*Tables, error) {
	t := &Tables{
		Techniques: tax.Techniques,
		Species:    species.Species,
		north:      make(map[string]bool, len(countries.GlobalNorth)),
	}

	for _, tech := range tax.Techniques {
		res, err := compileAll(tech.Name, tech.Patterns)
		if err != nil {
			return nil, fmt.Errorf("technique %q: %w", tech.Name, err)
		}
		t.techniques = append(t.techniques, res)
	}
	for _, sp := range species.Species {
		res, err := compileAll(sp.Name, sp.Patterns)
		if err != nil {
			return nil, fmt.Errorf("species %q: %w", sp.Name, err)
		}
		t.species = append(t.species, res)
	}

	var err error
	if t.countryNames, t.countries, err = compilePlaces(countries.Countries); err != nil {
		return nil, err
	}
	if t.oceanNames, t.oceans, err = compilePlaces(oceans.Oceans); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(t.countryNames))
	for _, name := range t.countryNames {
		known[name] = true
	}
	for _, name := range countries.GlobalNorth {
		if !known[name] {
			return nil, fmt.Errorf("%w: global_north lists unknown country %q", ErrTable, name)
		}
		t.north[name] = true
	}
	return t, nil
}

// Load reads the four lookup files and compiles them. Empty paths use the
// embedded defaults.
func Load(taxonomyPath, countriesPath, oceansPath, speciesPath string) (*Tables, error) {
	tax, err := LoadTaxonomy(taxonomyPath)
	if err != nil {
		return nil, err
	}
	countries, err := LoadCountries(countriesPath)
	if err != nil {
		return nil, err
	}
	oceans, err := LoadOceans(oceansPath)
	if err != nil {
		return nil, err
	}
	species, err := LoadSpecies(speciesPath)
	if err != nil {
		return nil, err
	}
	return Compile(tax, countries, oceans, species)
}

// Region classifies a country name.
func (t *Tables) Region(country string) types.Region {
	if country == "" {
		return ""
	}
	if t.north[country] {
		return types.RegionNorth
	}
	return types.RegionSouth
}

// placeMatch is a located country or ocean phrase.
type placeMatch struct {
	Name       string
	Start, End int
}

// FindCountry returns the country named in text. The longest matching
// pattern wins; equal lengths go to the earliest occurrence.
func (t *Tables) FindCountry(text string) (placeMatch, bool) {
	return findLongest(text, t.countries, t.countryNames)
}

// FindOcean returns the ocean basin named in text under the same rules as
// FindCountry.
func (t *Tables) FindOcean(text string) (placeMatch, bool) {
	return findLongest(text, t.oceans, t.oceanNames)
}

func findLongest(text string, patterns []pattern, names []string) (placeMatch, bool) {
	best := placeMatch{Start: -1}
	bestSize := 0
	for _, p := range patterns {
		if best.Start >= 0 && p.size < bestSize {
			break
		}
		loc := p.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if best.Start < 0 || loc[0] < best.Start {
			best = placeMatch{Name: names[p.index], Start: loc[0], End: loc[1]}
			bestSize = p.size
		}
	}
	return best, best.Start >= 0
}

func compilePlaces(places []Place) ([]string, []pattern, error) {
	names := make([]string, len(places))
	var out []pattern
	for i, pl := range places {
		names[i] = pl.Name
		for _, phrase := range phrases(pl.Name, pl.Patterns) {
			re, err := wordRegexp(phrase)
			if err != nil {
				return nil, nil, fmt.Errorf("%q: %w", pl.Name, err)
			}
			out = append(out, pattern{re: re, size: len([]rune(phrase)), index: i})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].size > out[b].size })
	return names, out, nil
}

func compileAll(name string, patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, phrase := range phrases(name, patterns) {
		re, err := wordRegexp(phrase)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// phrases returns the name followed by its extra patterns, deduplicated.
func phrases(name string, patterns []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range append([]string{name}, patterns...) {
		p = strings.TrimSpace(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		out = append(out, p)
	}
	return out
}

// wordRegexp compiles a literal phrase into a case-insensitive regexp
// anchored on word boundaries. Internal whitespace matches any run of
// whitespace so phrases may wrap across lines.
func wordRegexp(phrase string) (*regexp.Regexp, error) {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.Compile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)
}
