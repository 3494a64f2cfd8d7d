package engine

import (
	"github.com/vietddude/toolfilter/internal/category"
	"github.com/vietddude/toolfilter/internal/core/config"
)

// AutoEnableIfNeeded switches category filtering on once toolCount exceeds
// the threshold, unless the user configured filtering.enabled explicitly.
// It applies at most once per engine and reports whether this call did it.
func (e *Engine) AutoEnableIfNeeded(toolCount int) bool {
	if e.autoEnabled.Load() {
		return false
	}
	st := e.state.Load()
	if st.cfg.ExplicitlyConfigured() || toolCount <= st.cfg.AutoEnableThreshold {
		return false
	}
	if !e.autoEnabling.CompareAndSwap(false, true) {
		return false
	}
	defer e.autoEnabling.Store(false)

	if e.autoEnabled.Load() {
		return false
	}

	cfg := st.cfg.Clone()
	cfg.Enabled = config.Bool(true)
	cfg.Mode = config.ModeCategory
	cfg.CategoryFilter.Categories = append([]string(nil), category.AutoEnableCategories...)
	e.state.Store(newState(cfg))
	e.autoEnabled.Store(true)

	e.log.Info("Auto-enabled tool filtering",
		"tools", toolCount,
		"threshold", st.cfg.AutoEnableThreshold,
		"categories", cfg.CategoryFilter.Categories,
	)
	return true
}
