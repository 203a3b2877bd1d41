package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/tools"
)

// DAGExecutor runs a validated plan in dependency order, honoring arbiter
// decisions, per-step conditions and a per-step retry budget. It emits
// exactly one ExecutionResult per reached step, in execution order.
//
// Halt semantics: FAILED and AWAITING_CONFIRMATION stop the whole pipeline;
// DENY prunes only the denied branch; SKIPPED advances dependents normally.
type DAGExecutor struct {
	registry *tools.Registry
	memory   MemoryService
	rag      RagService
	client   ActionService
	ops      ActionService
	cfg      *Config

	logger    core.Logger
	telemetry core.Telemetry
}

// NewDAGExecutor wires the executor to its downstream subsystems.
func NewDAGExecutor(registry *tools.Registry, memory MemoryService, rag RagService, client ActionService, ops ActionService, cfg *Config) *DAGExecutor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &DAGExecutor{
		registry:  registry,
		memory:    memory,
		rag:       rag,
		client:    client,
		ops:       ops,
		cfg:       cfg,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger provider.
func (e *DAGExecutor) SetLogger(logger core.Logger) {
	if logger == nil {
		e.logger = &core.NoOpLogger{}
	} else {
		e.logger = logger
	}
}

// SetTelemetry sets the telemetry provider.
func (e *DAGExecutor) SetTelemetry(telemetry core.Telemetry) {
	if telemetry == nil {
		e.telemetry = &core.NoOpTelemetry{}
	} else {
		e.telemetry = telemetry
	}
}

// Execute traverses the plan and returns the results for every reached step.
// Steps past a pipeline halt emit no results. Execution is sequential within
// one invocation; ordering of results is a valid topological order.
func (e *DAGExecutor) Execute(ctx context.Context, dag *PlannerDAG, decisions []ArbiterDecision, msg UserMessage) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(dag.Steps))
	if dag.Empty() {
		return results
	}

	decisionFor := make(map[string]ArbiterDecision, len(decisions))
	for _, d := range decisions {
		decisionFor[d.StepID] = d
	}

	// completed maps step id -> success flag, for condition evaluation.
	completed := make(map[string]bool, len(dag.Steps))
	graph := newPlanGraph(dag)

	for {
		if ctx.Err() != nil {
			// Stream cancelled: abort at the next suspension point.
			return results
		}

		step, ok := graph.next()
		if !ok {
			break
		}

		decision, hasDecision := decisionFor[step.StepID]
		if !hasDecision {
			// Arbiter must rule on every step before execution.
			decision = ArbiterDecision{
				StepID:  step.StepID,
				ToolID:  step.Intent.ActionID,
				Verdict: VerdictDeny,
				Reason:  "No arbiter decision for step.",
			}
		}

		switch decision.Verdict {
		case VerdictDeny:
			results = append(results, ExecutionResult{
				StepID:         step.StepID,
				ToolID:         step.Intent.ActionID,
				Status:         StatusDenied,
				DecisionReason: decision.Reason,
			})
			completed[step.StepID] = false
			e.recordStatus(StatusDenied, step.Intent.ActionID)
			// Successors are never advanced: the denied branch is cut while
			// independent branches keep running.
			continue

		case VerdictConfirm:
			results = append(results, ExecutionResult{
				StepID:         step.StepID,
				ToolID:         step.Intent.ActionID,
				Status:         StatusAwaitingConfirmation,
				DecisionReason: decision.Reason,
			})
			e.recordStatus(StatusAwaitingConfirmation, step.Intent.ActionID)
			e.logger.Info("Pipeline halted awaiting confirmation", map[string]interface{}{
				"operation": "execute_plan",
				"step_id":   step.StepID,
				"tool_id":   step.Intent.ActionID,
			})
			return results
		}

		if cond := step.Intent.Condition; cond != "" {
			if !evaluateCondition(cond, step.StepID, dag, completed) {
				results = append(results, ExecutionResult{
					StepID:         step.StepID,
					ToolID:         step.Intent.ActionID,
					Status:         StatusSkipped,
					DecisionReason: "Condition not satisfied.",
				})
				// A skipped step counts as success for advancing dependents.
				completed[step.StepID] = true
				e.recordStatus(StatusSkipped, step.Intent.ActionID)
				graph.advance(step.StepID)
				continue
			}
		}

		raw, err := e.dispatchWithRetries(ctx, step, msg)
		if err != nil {
			results = append(results, ExecutionResult{
				StepID:         step.StepID,
				ToolID:         step.Intent.ActionID,
				Status:         StatusFailed,
				Error:          err.Error(),
				DecisionReason: decision.Reason,
			})
			e.recordStatus(StatusFailed, step.Intent.ActionID)
			e.logger.Error("Step failed, halting pipeline", map[string]interface{}{
				"operation": "execute_plan",
				"step_id":   step.StepID,
				"tool_id":   step.Intent.ActionID,
				"error":     err.Error(),
			})
			return results
		}

		results = append(results, ExecutionResult{
			StepID:         step.StepID,
			ToolID:         step.Intent.ActionID,
			Status:         StatusExecuted,
			RawOutput:      raw,
			DecisionReason: decision.Reason,
		})
		completed[step.StepID] = true
		e.recordStatus(StatusExecuted, step.Intent.ActionID)
		graph.advance(step.StepID)
	}

	return results
}

// evaluateCondition implements the minimal fail-closed condition language:
// the condition references prior steps by id substring and is true iff every
// referenced step has completed successfully. A condition referencing no
// other step is false. The executing step's own id is ignored so a phrase
// like "s2 runs after s1" cannot trip the step that carries it.
func evaluateCondition(cond, self string, dag *PlannerDAG, completed map[string]bool) bool {
	referenced := false
	for _, step := range dag.Steps {
		if step.StepID == self || !strings.Contains(cond, step.StepID) {
			continue
		}
		referenced = true
		success, done := completed[step.StepID]
		if !done || !success {
			return false
		}
	}
	return referenced
}

// dispatchWithRetries calls the destination subsystem with the step's retry
// budget. Retries are transparent: the caller sees one outcome per step.
func (e *DAGExecutor) dispatchWithRetries(ctx context.Context, step PlannerStep, msg UserMessage) (string, error) {
	attempts := e.cfg.RetryBudget + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
		started := time.Now()
		raw, err := e.dispatch(attemptCtx, step, msg)
		cancel()

		if elapsed := time.Since(started); elapsed > e.cfg.StepTimeout {
			e.logger.Warn("Step attempt exceeded soft deadline", map[string]interface{}{
				"operation":  "step_dispatch",
				"step_id":    step.StepID,
				"tool_id":    step.Intent.ActionID,
				"elapsed_ms": elapsed.Milliseconds(),
			})
		}

		if err == nil {
			if attempt > 1 {
				e.logger.Info("Step recovered after retry", map[string]interface{}{
					"operation": "step_dispatch",
					"step_id":   step.StepID,
					"attempt":   attempt,
				})
			}
			return raw, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", lastErr
		}

		logData := map[string]interface{}{
			"operation":    "step_dispatch",
			"step_id":      step.StepID,
			"tool_id":      step.Intent.ActionID,
			"attempt":      attempt,
			"max_attempts": attempts,
			"error":        err.Error(),
			"will_retry":   attempt < attempts,
		}
		if attempt == attempts {
			e.logger.Error("Step dispatch failed after all retries", logData)
		} else {
			e.logger.Debug("Step dispatch failed, retrying", logData)
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", core.ErrMaxRetriesExceeded, attempts, lastErr)
}

// dispatch routes one attempt to the subsystem named by the tool registry
// and returns the response serialized to JSON.
func (e *DAGExecutor) dispatch(ctx context.Context, step PlannerStep, msg UserMessage) (string, error) {
	spec, ok := e.registry.Lookup(tools.ID(step.Intent.ActionID))
	if !ok {
		return "", &core.BrainError{Op: "executor.dispatch", Kind: "executor", ID: step.StepID, Err: core.ErrUnknownTool}
	}

	switch spec.Destination {
	case tools.DestinationMemory:
		return e.dispatchMemory(ctx, step, msg)
	case tools.DestinationRag:
		return e.dispatchRag(ctx, step, msg)
	case tools.DestinationClient:
		return e.dispatchAction(ctx, e.client, step)
	case tools.DestinationOps:
		return e.dispatchAction(ctx, e.ops, step)
	default:
		return "", &core.BrainError{
			Op:      "executor.dispatch",
			Kind:    "executor",
			ID:      step.StepID,
			Message: fmt.Sprintf("no dispatch entry for destination %q", spec.Destination),
			Err:     core.ErrUnknownTool,
		}
	}
}

func (e *DAGExecutor) dispatchMemory(ctx context.Context, step PlannerStep, msg UserMessage) (string, error) {
	switch step.Intent.ActionID {
	case "MEMORY_PROPOSE":
		delta, err := strconv.ParseFloat(step.Intent.Params["delta"], 64)
		if err != nil {
			return "", fmt.Errorf("invalid delta parameter: %w", err)
		}
		proposal := NewMemoryProposal(
			"user",
			step.Intent.Params["dimension"],
			delta,
			hashContext(msg.Context),
			0.5,
		)
		if err := e.memory.ProposeMemory(ctx, proposal); err != nil {
			return "", err
		}
		return marshalRaw(map[string]interface{}{"success": true})
	default:
		memctx, err := e.memory.GetContext(ctx, msg.SessionID)
		if err != nil {
			return "", err
		}
		return marshalRaw(memctx)
	}
}

func (e *DAGExecutor) dispatchRag(ctx context.Context, step PlannerStep, msg UserMessage) (string, error) {
	query := step.Intent.Params["query"]
	if query == "" {
		query = msg.Text
	}
	resp, err := e.rag.SearchKnowledge(ctx, query, e.cfg.RagTopK)
	if err != nil {
		return "", err
	}
	return marshalRaw(ragEnvelope{Success: boolPtr(true), Chunks: resp.Chunks})
}

func (e *DAGExecutor) dispatchAction(ctx context.Context, svc ActionService, step PlannerStep) (string, error) {
	res, err := svc.ExecuteAction(ctx, step.Intent.ActionID, step.Intent.Params)
	if err != nil {
		return "", err
	}
	if !res.Success {
		// Tool-level failure counts against the retry budget like a
		// transport failure.
		if res.Error != "" {
			return "", fmt.Errorf("%w: %s", core.ErrRequestFailed, res.Error)
		}
		return "", core.ErrRequestFailed
	}
	return marshalRaw(res)
}

// ragEnvelope is the serialized form of a knowledge search result. The
// success flag is a pointer so that absence is distinguishable from false,
// which the analyst's insufficiency check relies on.
type ragEnvelope struct {
	Success *bool   `json:"success,omitempty"`
	Chunks  []Chunk `json:"chunks"`
}

func marshalRaw(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize subsystem response: %w", err)
	}
	return string(data), nil
}

func boolPtr(b bool) *bool { return &b }

func (e *DAGExecutor) recordStatus(status StepStatus, toolID string) {
	e.telemetry.RecordMetric("executor.steps.total", 1, map[string]string{
		"status": string(status),
		"tool":   toolID,
	})
}
