package engine

import (
	"unicode/utf8"

	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/core/domain"
)

// ShouldInclude reports whether a tool from source should be exposed. It is
// fail-open: any internal failure includes the tool.
func (e *Engine) ShouldInclude(name, source string, def domain.ToolDefinition) (include bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Filtering decision failed, including tool", "tool", name, "source", source, "panic", r)
			include = true
		}
		e.agg.RecordDecision(include)
	}()

	if name == "" || !utf8.ValidString(name) {
		return true
	}

	st := e.state.Load()
	if !st.cfg.ExplicitlyConfigured() && !e.autoEnabled.Load() && e.seen.Add(name) {
		if e.AutoEnableIfNeeded(e.seen.Size()) {
			st = e.state.Load()
		}
	}

	if !st.cfg.IsEnabled() {
		return true
	}

	switch st.cfg.Mode {
	case config.ModeServerAllowlist:
		return e.serverAllowed(st, source)
	case config.ModeCategory:
		return e.categoryAllowed(st, name, def)
	case config.ModeHybrid:
		return e.serverAllowed(st, source) || e.categoryAllowed(st, name, def)
	case config.ModePromptBased, config.ModeStatic:
		return true
	default:
		if _, warned := e.warnedModes.LoadOrStore(st.cfg.Mode, struct{}{}); !warned {
			e.log.Warn("Unknown filtering mode, including all tools", "mode", st.cfg.Mode)
		}
		return true
	}
}

func (e *Engine) serverAllowed(st *state, source string) bool {
	sf := st.cfg.ServerFilter
	if sf == nil || len(sf.Servers) == 0 {
		return true
	}

	switch sf.Mode {
	case config.ServerAllowlist:
		return st.servers.Contains(source)
	case config.ServerDenylist:
		return !st.servers.Contains(source)
	default:
		if _, warned := e.warnedModes.LoadOrStore("server:"+sf.Mode, struct{}{}); !warned {
			e.log.Warn("Unknown server filter mode, including all servers", "mode", sf.Mode)
		}
		return true
	}
}

// categoryAllowed resolves without its own recover so a failure reaches
// ShouldInclude and includes the tool.
func (e *Engine) categoryAllowed(st *state, name string, def domain.ToolDefinition) bool {
	return st.categories.Contains(e.resolve(name, def))
}
