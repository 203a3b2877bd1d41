package orchestration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cortexkit/cortex/core"
)

const replanFeedback = "Initial search returned no high-confidence results."

// Orchestrator drives one message through route, plan, arbitrate, execute,
// synthesize and narrate. It always produces a response: internal failures
// degrade to deterministic narration, never to a dropped message.
type Orchestrator struct {
	router    *IntentRouter
	planner   *Planner
	arbiter   *DecisionArbiter
	executor  *DAGExecutor
	analyst   *SemanticAnalyst
	admission *MemoryAdmission
	narrator  *Narrator
	memory    MemoryService
	store     ExecutionStore
	cfg       *Config

	logger    core.Logger
	telemetry core.Telemetry
}

// OrchestratorDeps carries the pipeline collaborators.
type OrchestratorDeps struct {
	Router    *IntentRouter
	Planner   *Planner
	Arbiter   *DecisionArbiter
	Executor  *DAGExecutor
	Analyst   *SemanticAnalyst
	Admission *MemoryAdmission
	Narrator  *Narrator
	Memory    MemoryService
	Store     ExecutionStore
}

// NewOrchestrator assembles the pipeline. A nil Store defaults to no-op.
func NewOrchestrator(deps OrchestratorDeps, cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	store := deps.Store
	if store == nil {
		store = NoOpExecutionStore{}
	}
	return &Orchestrator{
		router:    deps.Router,
		planner:   deps.Planner,
		arbiter:   deps.Arbiter,
		executor:  deps.Executor,
		analyst:   deps.Analyst,
		admission: deps.Admission,
		narrator:  deps.Narrator,
		memory:    deps.Memory,
		store:     store,
		cfg:       cfg,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger provider.
func (o *Orchestrator) SetLogger(logger core.Logger) {
	if logger == nil {
		o.logger = &core.NoOpLogger{}
	} else {
		o.logger = logger
	}
}

// SetTelemetry sets the telemetry provider.
func (o *Orchestrator) SetTelemetry(telemetry core.Telemetry) {
	if telemetry == nil {
		o.telemetry = &core.NoOpTelemetry{}
	} else {
		o.telemetry = telemetry
	}
}

// ProcessMessage runs the full pipeline for one message. The returned
// response is never nil when the error is nil, and the error is non-nil only
// for context cancellation.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg UserMessage) (*BrainResponse, error) {
	requestID := uuid.New().String()
	started := time.Now()

	ctx, span := o.telemetry.StartSpan(ctx, "orchestrator.process_message")
	defer span.End()
	span.SetAttribute("request.id", requestID)
	span.SetAttribute("session.id", msg.SessionID)

	intent := o.router.Route(msg.Text)
	span.SetAttribute("intent", string(intent))
	o.logger.Info("Processing message", map[string]interface{}{
		"operation":  "process_message",
		"request_id": requestID,
		"session_id": msg.SessionID,
		"intent":     string(intent),
	})

	memctx := o.fetchMemoryContext(ctx, msg.SessionID, requestID)

	var (
		accumulated []ExecutionResult
		synthesis   string
		iterations  int
	)

	feedback := ""
	for iterations < o.cfg.MaxIterations {
		if ctx.Err() != nil {
			return nil, core.ErrContextCanceled
		}
		iterations++

		dag := o.planner.Plan(ctx, intent, msg.Text, feedback)
		if dag.Empty() {
			break
		}

		decisions := o.arbiter.EvaluatePlan(dag)
		results := o.executor.Execute(ctx, dag, decisions, msg)
		accumulated = append(accumulated, results...)

		var needMore bool
		synthesis, needMore = o.analyst.Synthesize(accumulated)

		if halted(results) || !needMore {
			break
		}
		feedback = replanFeedback
		o.logger.Info("Re-planning with feedback", map[string]interface{}{
			"operation":  "adaptive_loop",
			"request_id": requestID,
			"iteration":  iterations,
		})
	}

	// Admission runs off the request path so a slow memory service cannot
	// delay the reply.
	go func() {
		admitCtx, cancel := context.WithTimeout(context.Background(), o.cfg.StepTimeout)
		defer cancel()
		o.admission.Submit(admitCtx, msg)
	}()

	var text string
	if len(accumulated) == 0 {
		text = o.narrator.NarrateChat(ctx, msg.Text, memctx)
	} else {
		packet := ResultPacket{
			UserQuery: msg.Text,
			Results:   accumulated,
			Context: PacketContext{
				Mode:     msg.Context.Mode,
				Location: msg.Context.Location,
			},
		}
		text = o.narrator.NarrateTask(ctx, packet, synthesis, memctx)
	}

	o.recordAudit(ctx, ExecutionRecord{
		RequestID:  requestID,
		SessionID:  msg.SessionID,
		Intent:     intent,
		Query:      msg.Text,
		Results:    accumulated,
		Response:   text,
		Iterations: iterations,
		CreatedAt:  time.Now().UTC(),
	})

	o.telemetry.RecordMetric("pipeline.messages.total", 1, map[string]string{
		"intent": string(intent),
	})
	o.logger.Info("Message processed", map[string]interface{}{
		"operation":   "process_message",
		"request_id":  requestID,
		"iterations":  iterations,
		"steps":       len(accumulated),
		"duration_ms": time.Since(started).Milliseconds(),
	})

	return &BrainResponse{Text: text, IsPartial: false}, nil
}

// halted reports whether the executor stopped the pipeline mid-plan.
func halted(results []ExecutionResult) bool {
	for _, res := range results {
		if res.Status == StatusFailed || res.Status == StatusAwaitingConfirmation {
			return true
		}
	}
	return false
}

func (o *Orchestrator) fetchMemoryContext(ctx context.Context, sessionID, requestID string) *MemoryContext {
	memctx, err := o.memory.GetContext(ctx, sessionID)
	if err != nil {
		o.logger.Warn("Memory context unavailable", map[string]interface{}{
			"operation":  "memory_context",
			"request_id": requestID,
			"error":      err.Error(),
		})
		return nil
	}
	return memctx
}

func (o *Orchestrator) recordAudit(ctx context.Context, record ExecutionRecord) {
	if err := o.store.Record(ctx, record); err != nil {
		o.logger.Warn("Failed to persist execution record", map[string]interface{}{
			"operation":  "audit_record",
			"request_id": record.RequestID,
			"error":      err.Error(),
		})
	}
}
