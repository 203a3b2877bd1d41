package orchestration

import (
	"strings"

	"github.com/cortexkit/cortex/core"
)

// Forbidden action tokens. Any action id containing one of these is denied
// outright, regardless of registry membership.
var forbiddenTokens = []string{"DELETE_ALL", "FORMAT_SYSTEM"}

// DecisionArbiter is the mechanical policy enforcement layer. It rules on
// every step of a plan before the executor runs anything. Stateless and
// deterministic: rule order is fixed and the first match wins.
type DecisionArbiter struct {
	logger core.Logger
}

// NewDecisionArbiter creates the arbiter.
func NewDecisionArbiter() *DecisionArbiter {
	return &DecisionArbiter{logger: &core.NoOpLogger{}}
}

// SetLogger sets the logger provider.
func (a *DecisionArbiter) SetLogger(logger core.Logger) {
	if logger == nil {
		a.logger = &core.NoOpLogger{}
	} else {
		a.logger = logger
	}
}

// EvaluatePlan returns one decision per step, in plan order.
func (a *DecisionArbiter) EvaluatePlan(dag *PlannerDAG) []ArbiterDecision {
	decisions := make([]ArbiterDecision, 0, len(dag.Steps))
	for _, step := range dag.Steps {
		decision := a.evaluateStep(step)
		if decision.Verdict != VerdictAllow {
			a.logger.Warn("Arbiter flagged step", map[string]interface{}{
				"operation": "arbiter_evaluate",
				"step_id":   decision.StepID,
				"tool_id":   decision.ToolID,
				"verdict":   string(decision.Verdict),
				"reason":    decision.Reason,
			})
		}
		decisions = append(decisions, decision)
	}
	return decisions
}

func (a *DecisionArbiter) evaluateStep(step PlannerStep) ArbiterDecision {
	actionID := step.Intent.ActionID
	upper := strings.ToUpper(actionID)

	for _, token := range forbiddenTokens {
		if strings.Contains(upper, token) {
			return ArbiterDecision{
				StepID:     step.StepID,
				ToolID:     actionID,
				Verdict:    VerdictDeny,
				Confidence: 1.0,
				Reason:     "Critical system safety violation.",
			}
		}
	}

	lower := strings.ToLower(actionID)
	if strings.Contains(lower, "delete") || strings.Contains(lower, "remove") {
		return ArbiterDecision{
			StepID:     step.StepID,
			ToolID:     actionID,
			Verdict:    VerdictConfirm,
			Confidence: 0.8,
			Reason:     "Potentially destructive action requires manual confirmation.",
		}
	}

	return ArbiterDecision{
		StepID:     step.StepID,
		ToolID:     actionID,
		Verdict:    VerdictAllow,
		Confidence: 1.0,
	}
}
