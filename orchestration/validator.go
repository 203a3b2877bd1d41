package orchestration

import (
	"fmt"

	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/tools"
)

// PlanValidator rejects structurally or semantically unsafe DAGs before the
// arbiter or executor ever see them. Deterministic and side-effect free.
type PlanValidator struct {
	registry *tools.Registry
	maxNodes int
	maxDepth int
}

// NewPlanValidator creates a validator bound to a tool registry.
func NewPlanValidator(registry *tools.Registry, cfg *Config) *PlanValidator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &PlanValidator{
		registry: registry,
		maxNodes: cfg.MaxNodes,
		maxDepth: cfg.MaxDepth,
	}
}

// Validate returns nil for an acceptable DAG and a reasoned error otherwise.
// Cycle detection and longest-path depth use an iterative Kahn traversal so
// adversarial plans cannot exhaust the stack.
func (v *PlanValidator) Validate(dag *PlannerDAG) error {
	if dag.Empty() {
		return &core.BrainError{Op: "validator.Validate", Kind: "validator", Message: "DAG is empty", Err: core.ErrPlanEmpty}
	}
	if len(dag.Steps) > v.maxNodes {
		return v.reject(fmt.Sprintf("DAG complexity too high: %d nodes (max: %d)", len(dag.Steps), v.maxNodes))
	}

	index := make(map[string]int, len(dag.Steps))
	for i, step := range dag.Steps {
		if _, dup := index[step.StepID]; dup {
			return v.reject(fmt.Sprintf("duplicate step id %q", step.StepID))
		}
		index[step.StepID] = i
	}

	for _, step := range dag.Steps {
		if !v.registry.Contains(tools.ID(step.Intent.ActionID)) {
			return &core.BrainError{
				Op:      "validator.Validate",
				Kind:    "validator",
				ID:      step.StepID,
				Message: fmt.Sprintf("illegal action %q in step %s", step.Intent.ActionID, step.StepID),
				Err:     core.ErrUnknownTool,
			}
		}
		for _, dep := range step.Intent.DependsOn {
			if _, ok := index[dep]; !ok {
				return v.reject(fmt.Sprintf("step %s depends on non-existent step %s", step.StepID, dep))
			}
		}
	}

	roots := 0
	inDegree := make(map[string]int, len(dag.Steps))
	dependents := make(map[string][]string, len(dag.Steps))
	for _, step := range dag.Steps {
		inDegree[step.StepID] = len(step.Intent.DependsOn)
		if len(step.Intent.DependsOn) == 0 {
			roots++
		}
		for _, dep := range step.Intent.DependsOn {
			dependents[dep] = append(dependents[dep], step.StepID)
		}
	}
	if roots == 0 {
		return v.reject("no root nodes found (all steps have dependencies)")
	}

	// Kahn traversal: depth[n] is the longest root-to-n path length. Nodes
	// left unprocessed at the end sit on a cycle.
	depth := make(map[string]int, len(dag.Steps))
	var queue []string
	for _, step := range dag.Steps {
		if inDegree[step.StepID] == 0 {
			queue = append(queue, step.StepID)
			depth[step.StepID] = 1
		}
	}

	processed := 0
	maxDepth := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed++
		if depth[current] > maxDepth {
			maxDepth = depth[current]
		}
		for _, next := range dependents[current] {
			if depth[current]+1 > depth[next] {
				depth[next] = depth[current] + 1
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed != len(dag.Steps) {
		return v.reject("cycle detected in planner DAG")
	}
	if maxDepth > v.maxDepth {
		return v.reject(fmt.Sprintf("DAG too deep: %d levels (max: %d)", maxDepth, v.maxDepth))
	}
	return nil
}

func (v *PlanValidator) reject(msg string) error {
	return &core.BrainError{Op: "validator.Validate", Kind: "validator", Message: msg, Err: core.ErrPlanRejected}
}
