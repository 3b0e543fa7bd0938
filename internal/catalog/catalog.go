// Package catalog holds the static reference data the engine consumes
// read-only: the ordered rank ladder and the department list. The defaults
// are embedded; a deployment can point CATALOG_PATH at its own file.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalogs.yaml
var defaultCatalog []byte

// Department describes one selectable unit. Ranks, when set, narrows which
// ranks the unit may grant in a promotion; empty means the full ladder.
type Department struct {
	Code  string   `yaml:"code"`
	Title string   `yaml:"title"`
	Ranks []string `yaml:"ranks,omitempty"`
}

// Catalog is immutable after load; no locking needed.
type Catalog struct {
	Ranks       []string     `yaml:"ranks"`
	Departments []Department `yaml:"departments"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return parse(defaultCatalog)
}

// Load reads a catalog from path, falling back to the embedded defaults when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Ranks) == 0 {
		return nil, fmt.Errorf("catalog has no ranks")
	}
	if len(c.Departments) == 0 {
		return nil, fmt.Errorf("catalog has no departments")
	}
	return &c, nil
}

// DepartmentByCode looks a department up by its short code.
func (c *Catalog) DepartmentByCode(code string) (Department, bool) {
	for _, d := range c.Departments {
		if d.Code == code {
			return d, true
		}
	}
	return Department{}, false
}

// DepartmentByTitle matches a selection the actor made from the offered set.
func (c *Catalog) DepartmentByTitle(title string) (Department, bool) {
	title = strings.TrimSpace(title)
	for _, d := range c.Departments {
		if strings.EqualFold(d.Title, title) || strings.EqualFold(d.Code, title) {
			return d, true
		}
	}
	return Department{}, false
}

// DepartmentTitles returns the offered selection set in catalog order.
func (c *Catalog) DepartmentTitles() []string {
	titles := make([]string, len(c.Departments))
	for i, d := range c.Departments {
		titles[i] = d.Title
	}
	return titles
}

// RanksFor returns the ranks a department may grant, in ladder order.
func (c *Catalog) RanksFor(d Department) []string {
	if len(d.Ranks) == 0 {
		return c.Ranks
	}
	return d.Ranks
}

// RankIndex returns the position of rank in the ladder, or -1.
func (c *Catalog) RankIndex(rank string) int {
	for i, r := range c.Ranks {
		if strings.EqualFold(r, rank) {
			return i
		}
	}
	return -1
}

// IsRank reports whether rank is a catalog rank (case-insensitive).
func (c *Catalog) IsRank(rank string) bool {
	return c.RankIndex(strings.TrimSpace(rank)) >= 0
}

// LongestRankPrefix strips the longest case-insensitive rank prefix from s.
// Matching is word-wise so multi-word ranks win over their one-word prefixes.
// Returns the catalog spelling of the rank and the remainder; ok is false
// when no rank prefixes s.
func (c *Catalog) LongestRankPrefix(s string) (rank, rest string, ok bool) {
	words := strings.Fields(s)
	best := -1
	bestLen := 0
	for i, r := range c.Ranks {
		rw := strings.Fields(r)
		if len(rw) == 0 || len(rw) > len(words) {
			continue
		}
		match := true
		for j := range rw {
			if !strings.EqualFold(rw[j], words[j]) {
				match = false
				break
			}
		}
		if match && len(rw) > bestLen {
			best, bestLen = i, len(rw)
		}
	}
	if best == -1 {
		return "", strings.Join(words, " "), false
	}
	return c.Ranks[best], strings.Join(words[bestLen:], " "), true
}
