package orchestration

// planGraph is the executor's traversal bookkeeping over a validated plan:
// in-degrees, dependents, and a ready queue seeded with the roots. Steps
// become ready only when advance() has been called for every predecessor,
// so a denied branch simply never surfaces in the queue.
type planGraph struct {
	steps      map[string]PlannerStep
	inDegree   map[string]int
	dependents map[string][]string
	queue      []string
}

func newPlanGraph(dag *PlannerDAG) *planGraph {
	g := &planGraph{
		steps:      make(map[string]PlannerStep, len(dag.Steps)),
		inDegree:   make(map[string]int, len(dag.Steps)),
		dependents: make(map[string][]string, len(dag.Steps)),
	}

	for _, step := range dag.Steps {
		g.steps[step.StepID] = step
		g.inDegree[step.StepID] = len(step.Intent.DependsOn)
		for _, dep := range step.Intent.DependsOn {
			g.dependents[dep] = append(g.dependents[dep], step.StepID)
		}
	}

	// Seed roots in plan order so traversal is deterministic.
	for _, step := range dag.Steps {
		if g.inDegree[step.StepID] == 0 {
			g.queue = append(g.queue, step.StepID)
		}
	}

	return g
}

// next pops the next ready step. The second return is false when no step is
// ready; with a validated (acyclic) plan that means traversal is finished or
// the remaining steps sit behind a pruned branch.
func (g *planGraph) next() (PlannerStep, bool) {
	if len(g.queue) == 0 {
		return PlannerStep{}, false
	}
	id := g.queue[0]
	g.queue = g.queue[1:]
	return g.steps[id], true
}

// advance marks a step complete for scheduling purposes and enqueues any
// dependents whose predecessors have now all completed.
func (g *planGraph) advance(stepID string) {
	for _, dep := range g.dependents[stepID] {
		g.inDegree[dep]--
		if g.inDegree[dep] == 0 {
			g.queue = append(g.queue, dep)
		}
	}
}
