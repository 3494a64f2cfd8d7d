package engine

import (
	"github.com/vietddude/toolfilter/internal/core/domain"
)

// ResolveCategory returns the category for a tool. It never blocks and never
// panics; on internal failure it returns "other".
func (e *Engine) ResolveCategory(name, source string, def domain.ToolDefinition) (cat string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Category resolution failed", "tool", name, "source", source, "panic", r)
			cat = domain.CategoryOther
		}
	}()
	return e.resolve(name, def)
}

func (e *Engine) resolve(name string, def domain.ToolDefinition) string {
	if name == "" {
		return domain.CategoryOther
	}

	if entry, ok := e.cache.Hot(name); ok {
		e.agg.RecordHotLookup(true)
		return entry.Category
	}
	e.agg.RecordHotLookup(false)

	if entry, ok := e.cache.Warm(name); ok {
		e.agg.RecordWarmLookup(true)
		e.cache.Promote(name, entry)
		return entry.Category
	}
	e.agg.RecordWarmLookup(false)

	now := e.now()
	if m, ok := e.table.Lookup(name); ok {
		e.cache.PutHot(name, domain.NewCacheEntry(m.Category, domain.PatternConfidence, domain.SourcePattern, e.ttl, now))
		return m.Category
	}

	// Provisional answer; the enricher overwrites it once the classifier replies.
	e.cache.PutHot(name, domain.NewCacheEntry(domain.CategoryOther, domain.ProvisionalConfidence, domain.SourceHeuristic, e.ttl, now))
	if e.enricher != nil {
		e.enricher.Submit(name, def)
	}
	return domain.CategoryOther
}
