package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Source records how a category was assigned.
type Source string

const (
	SourcePattern    Source = "pattern"
	SourceHeuristic  Source = "heuristic"
	SourceClassifier Source = "classifier"
)

// Default confidences per source.
const (
	PatternConfidence     = 1.0
	ClassifierConfidence  = 0.9
	LegacyConfidence      = 0.85
	HeuristicConfidence   = 0.5
	ProvisionalConfidence = 0.1
)

// DefaultTTL is the lifetime of a cache entry when nothing else is configured.
const DefaultTTL = 24 * time.Hour

// CacheEntry is a resolved category for a single tool.
type CacheEntry struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	CreatedAt  int64   `json:"createdAt"`  // epoch seconds
	TTLSeconds int64   `json:"ttlSeconds"` // always > 0
}

// NewCacheEntry builds an entry stamped at now. A non-positive ttl falls back to DefaultTTL.
func NewCacheEntry(category string, confidence float64, source Source, ttl time.Duration, now time.Time) CacheEntry {
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		secs = int64(DefaultTTL / time.Second)
	}
	return CacheEntry{
		Category:   category,
		Confidence: clampConfidence(confidence),
		Source:     source,
		CreatedAt:  now.Unix(),
		TTLSeconds: secs,
	}
}

// Expired reports whether the entry is stale at now.
func (e CacheEntry) Expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return true
	}
	return now.Unix()-e.CreatedAt >= e.TTLSeconds
}

// ExpiresAt returns the instant the entry stops being valid.
func (e CacheEntry) ExpiresAt() time.Time {
	return time.Unix(e.CreatedAt+e.TTLSeconds, 0)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Record is a persisted cache value. Older cache files stored a bare category
// string per tool; newer ones store a full CacheEntry. Normalize collapses both
// into a CacheEntry once at load time.
type Record struct {
	legacy string
	full   *CacheEntry
}

// LegacyRecord wraps a bare category string.
func LegacyRecord(category string) Record {
	return Record{legacy: category}
}

// FullRecord wraps a complete entry.
func FullRecord(e CacheEntry) Record {
	return Record{full: &e}
}

// IsLegacy reports whether the record uses the flat string shape.
func (r Record) IsLegacy() bool {
	return r.full == nil
}

// Normalize converts the record to a CacheEntry. Legacy records are upgraded
// with LegacyConfidence, SourceHeuristic and the given ttl, stamped at now.
func (r Record) Normalize(now time.Time, ttl time.Duration) CacheEntry {
	if r.full != nil {
		return *r.full
	}
	return NewCacheEntry(r.legacy, LegacyConfidence, SourceHeuristic, ttl, now)
}

var errEmptyRecord = errors.New("empty cache record")

// UnmarshalJSON accepts either a JSON string or a CacheEntry object.
func (r *Record) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return errEmptyRecord
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("legacy record: %w", err)
		}
		*r = LegacyRecord(s)
		return nil
	}
	var e CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("cache entry: %w", err)
	}
	*r = FullRecord(e)
	return nil
}

// MarshalJSON writes legacy records back as strings and full records as objects.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.full == nil {
		return json.Marshal(r.legacy)
	}
	return json.Marshal(r.full)
}
