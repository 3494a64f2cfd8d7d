// Package pattern compiles wildcard tool-name patterns.
//
// A pattern matches the whole name, case-insensitively. '*' matches any run of
// characters (including none) and '?' matches exactly one character. Everything
// else is literal.
package pattern

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// ErrEmptyPattern is returned for a pattern with no characters.
var ErrEmptyPattern = errors.New("empty pattern")

// Matcher is a compiled wildcard pattern.
type Matcher struct {
	raw string
	re  *regexp.Regexp
}

// Compile translates a wildcard pattern into a Matcher.
func Compile(pattern string) (*Matcher, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}

	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return &Matcher{raw: pattern, re: re}, nil
}

// Match reports whether name matches the pattern.
func (m *Matcher) Match(name string) bool {
	return m.re.MatchString(name)
}

func (m *Matcher) String() string {
	return m.raw
}

// Cache memoizes compiled matchers keyed by the raw pattern string.
// Patterns that fail to compile are remembered too, so they are logged once
// and then treated as non-matching.
type Cache struct {
	mu       sync.RWMutex
	compiled map[string]*Matcher
	invalid  map[string]struct{}
	log      *slog.Logger
}

// NewCache creates an empty matcher cache.
func NewCache(log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		compiled: make(map[string]*Matcher),
		invalid:  make(map[string]struct{}),
		log:      log.With("component", "pattern"),
	}
}

// Get returns the compiled matcher for pattern, compiling it on first use.
// ok is false for invalid patterns.
func (c *Cache) Get(pattern string) (*Matcher, bool) {
	c.mu.RLock()
	m, hit := c.compiled[pattern]
	_, bad := c.invalid[pattern]
	c.mu.RUnlock()
	if hit {
		return m, true
	}
	if bad {
		return nil, false
	}

	m, err := Compile(pattern)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if _, seen := c.invalid[pattern]; !seen {
			c.invalid[pattern] = struct{}{}
			c.log.Warn("Invalid pattern, treating as non-matching", "pattern", pattern, "error", err)
		}
		return nil, false
	}
	// Another goroutine may have compiled it meanwhile; keep the first.
	if existing, ok := c.compiled[pattern]; ok {
		return existing, true
	}
	c.compiled[pattern] = m
	return m, true
}

// Matches reports whether name matches pattern. Invalid patterns never match.
func (c *Cache) Matches(name, pattern string) bool {
	m, ok := c.Get(pattern)
	if !ok {
		return false
	}
	return m.Match(name)
}

// Size returns the number of compiled patterns held.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiled)
}
