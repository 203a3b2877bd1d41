package orchestration

import (
	"regexp"

	"github.com/cortexkit/cortex/core"
)

// IntentRouter classifies user text with an ordered list of deterministic
// patterns. No network I/O; routing is stable for identical input.
type IntentRouter struct {
	triggers []trigger
	logger   core.Logger
}

type trigger struct {
	pattern *regexp.Regexp
	intent  Intent
}

// NewIntentRouter compiles the default trigger list. Order matters: the
// first matching pattern selects the intent.
func NewIntentRouter() *IntentRouter {
	return &IntentRouter{
		triggers: []trigger{
			{regexp.MustCompile(`(?i)\b(stock|price|market|news|weather)\b`), IntentRealtimeSearch},
			{regexp.MustCompile(`(?i)\b(delete|move|open|restart|run|list|read|file|exists)\b`), IntentToolAction},
			{regexp.MustCompile(`(?i)\b(remember|history|like|feel|forgot|preference)\b`), IntentMemoryQuery},
		},
		logger: &core.NoOpLogger{},
	}
}

// SetLogger sets the logger provider.
func (r *IntentRouter) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
	} else {
		r.logger = logger
	}
}

// Route returns the intent for the given text. Unmatched text converses.
func (r *IntentRouter) Route(text string) Intent {
	for _, t := range r.triggers {
		if t.pattern.MatchString(text) {
			r.logger.Debug("Intent matched", map[string]interface{}{
				"operation": "intent_routing",
				"intent":    string(t.intent),
			})
			return t.intent
		}
	}
	return IntentConverse
}
