package category

import (
	"log/slog"

	"github.com/vietddude/toolfilter/internal/category/pattern"
)

// Mapping is a user supplied pattern → category rule.
type Mapping struct {
	Pattern  string `yaml:"pattern"  json:"pattern"`
	Category string `yaml:"category" json:"category"`
}

// Match describes which rule produced a category.
type Match struct {
	Category string
	Pattern  string
	Custom   bool
}

// Table resolves a name against custom mappings first and then the built-in
// defaults. It is safe for concurrent use.
type Table struct {
	custom   []Mapping
	defaults []Group
	patterns *pattern.Cache
	log      *slog.Logger
}

// NewTable builds a table over the given custom mappings and Defaults.
func NewTable(custom []Mapping, patterns *pattern.Cache, log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}
	if patterns == nil {
		patterns = pattern.NewCache(log)
	}
	return &Table{
		custom:   custom,
		defaults: Defaults,
		patterns: patterns,
		log:      log.With("component", "category"),
	}
}

// Lookup returns the first matching rule for name.
func (t *Table) Lookup(name string) (Match, bool) {
	for _, m := range t.custom {
		if t.patterns.Matches(name, m.Pattern) {
			t.log.Debug("Matched custom pattern", "tool", name, "pattern", m.Pattern, "category", m.Category)
			return Match{Category: m.Category, Pattern: m.Pattern, Custom: true}, true
		}
	}

	for _, g := range t.defaults {
		for _, p := range g.Patterns {
			if t.patterns.Matches(name, p) {
				t.log.Debug("Matched default pattern", "tool", name, "pattern", p, "category", g.Category)
				return Match{Category: g.Category, Pattern: p}, true
			}
		}
	}

	return Match{}, false
}
