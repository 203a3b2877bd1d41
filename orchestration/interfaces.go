// Package orchestration implements the plan/arbitrate/execute/narrate
// pipeline that turns a user message into a narrated response.
package orchestration

import (
	"context"
	"time"
)

// Intent is the coarse classification of a user utterance.
type Intent string

const (
	IntentConverse       Intent = "CONVERSE"
	IntentRealtimeSearch Intent = "REALTIME_SEARCH"
	IntentToolAction     Intent = "TOOL_ACTION"
	IntentMemoryQuery    Intent = "MEMORY_QUERY"
)

// Verdict is the arbiter's ruling on a single plan step.
type Verdict string

const (
	VerdictAllow   Verdict = "ALLOW"
	VerdictDeny    Verdict = "DENY"
	VerdictConfirm Verdict = "CONFIRM"
)

// StepStatus is the terminal state of a plan step.
type StepStatus string

const (
	StatusExecuted             StepStatus = "EXECUTED"
	StatusFailed               StepStatus = "FAILED"
	StatusDenied               StepStatus = "DENIED"
	StatusAwaitingConfirmation StepStatus = "AWAITING_CONFIRMATION"
	StatusSkipped              StepStatus = "SKIPPED"
)

// MessageContext carries the situational metadata attached to a user message.
type MessageContext struct {
	Mode      string            `json:"mode"`
	Location  string            `json:"location"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// UserMessage is the immutable input to one pipeline invocation.
type UserMessage struct {
	SessionID string         `json:"session_id"`
	Text      string         `json:"text"`
	Context   MessageContext `json:"context"`
}

// BrainResponse is the narrated reply emitted on the stream, one per message.
type BrainResponse struct {
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
}

// ActionIntent is the executable payload of a plan step.
type ActionIntent struct {
	ActionID  string            `json:"action_id"`
	Params    map[string]string `json:"params,omitempty"`
	DependsOn []string          `json:"depends_on,omitempty"`
	Condition string            `json:"condition,omitempty"`
}

// PlannerStep is one node of a cognitive DAG.
type PlannerStep struct {
	StepID      string       `json:"step_id"`
	Description string       `json:"description"`
	Intent      ActionIntent `json:"intent"`
}

// PlannerDAG is a bounded plan of tool invocations.
type PlannerDAG struct {
	Goal  string        `json:"goal"`
	Steps []PlannerStep `json:"steps"`
}

// Empty reports whether the plan carries no steps (the conversational path).
func (d *PlannerDAG) Empty() bool {
	return d == nil || len(d.Steps) == 0
}

// ArbiterDecision is the policy ruling for one step, produced before execution.
type ArbiterDecision struct {
	StepID     string  `json:"step_id"`
	ToolID     string  `json:"tool_id"`
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ExecutionResult is the uniform envelope emitted for every reached step.
// RawOutput holds the subsystem response serialized to JSON; no live tool
// objects cross this boundary.
type ExecutionResult struct {
	StepID         string     `json:"step_id"`
	ToolID         string     `json:"tool_id"`
	Status         StepStatus `json:"status"`
	RawOutput      string     `json:"raw_output,omitempty"`
	Error          string     `json:"error,omitempty"`
	DecisionReason string     `json:"decision_reason,omitempty"`
}

// ResultPacket is the sole input to the narrator (the one-way valve).
type ResultPacket struct {
	UserQuery string            `json:"user_query"`
	Results   []ExecutionResult `json:"results"`
	Context   PacketContext     `json:"context"`
}

// PacketContext is the narrow slice of message context the narrator may see.
type PacketContext struct {
	Mode     string `json:"mode"`
	Location string `json:"location"`
}

// MemoryProposal is a candidate long-term memory update.
// Confidence is clamped to [0,1] at creation.
type MemoryProposal struct {
	EntityID    string  `json:"entity_id"`
	Dimension   string  `json:"dimension"`
	Delta       float64 `json:"delta"`
	ContextHash string  `json:"context_hash"`
	Confidence  float64 `json:"confidence"`
}

// MemoryContext is the identity and preference snapshot for a session.
type MemoryContext struct {
	MemorySummaries []string           `json:"memory_summaries"`
	Preferences     map[string]float64 `json:"preferences"`
}

// Chunk is one retrieved knowledge fragment.
type Chunk struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// SearchResponse is the knowledge service reply.
type SearchResponse struct {
	Chunks []Chunk `json:"chunks"`
}

// ActionResult is the client-executor / ops reply for a single action.
type ActionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MemoryService is the long-term memory collaborator.
type MemoryService interface {
	// GetContext retrieves identity summaries and preferences for a session.
	GetContext(ctx context.Context, sessionID string) (*MemoryContext, error)

	// ProposeMemory submits a memory update proposal. Fire-and-forget from
	// the pipeline's point of view; failures are logged, never surfaced.
	ProposeMemory(ctx context.Context, proposal MemoryProposal) error
}

// RagService is the retrieval-augmented knowledge collaborator.
type RagService interface {
	SearchKnowledge(ctx context.Context, query string, topK int) (*SearchResponse, error)
}

// ActionService executes a single whitelisted action on a remote subsystem.
// Both the client-side executor and the operating-system service satisfy it.
type ActionService interface {
	ExecuteAction(ctx context.Context, actionID string, params map[string]string) (*ActionResult, error)
}

// Pipeline processes one user message into one response.
type Pipeline interface {
	ProcessMessage(ctx context.Context, msg UserMessage) (*BrainResponse, error)
}

// Config carries the pipeline tuning constants.
type Config struct {
	MaxNodes      int           `json:"max_nodes"`
	MaxDepth      int           `json:"max_depth"`
	RetryBudget   int           `json:"retry_budget"`
	MaxIterations int           `json:"max_iterations"`
	StepTimeout   time.Duration `json:"step_timeout"`

	PlannerTimeout      time.Duration `json:"planner_timeout"`
	NarratorChatTimeout time.Duration `json:"narrator_chat_timeout"`
	NarratorTaskTimeout time.Duration `json:"narrator_task_timeout"`

	RagTopK     int `json:"rag_top_k"`
	HistorySize int `json:"history_size"`
}

// DefaultConfig returns the pipeline tuning constants.
func DefaultConfig() *Config {
	return &Config{
		MaxNodes:            6,
		MaxDepth:            4,
		RetryBudget:         2,
		MaxIterations:       3,
		StepTimeout:         5 * time.Second,
		PlannerTimeout:      20 * time.Second,
		NarratorChatTimeout: 5 * time.Second,
		NarratorTaskTimeout: 10 * time.Second,
		RagTopK:             3,
		HistorySize:         100,
	}
}

// Common error codes used in structured errors and logs.
const (
	ErrCodePlannerFailure   = "PLANNER_FAILURE"
	ErrCodeValidatorReject  = "VALIDATOR_REJECT"
	ErrCodeStepFailure      = "STEP_FAILURE"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodeConfirmRequired  = "CONFIRM_REQUIRED"
	ErrCodeNarratorFailure  = "NARRATOR_FAILURE"
	ErrCodeSubsystemFailure = "SUBSYSTEM_FAILURE"
)
