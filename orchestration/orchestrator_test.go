package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexkit/cortex/tools"
)

type pipelineFixture struct {
	plannerAI  *scriptedAI
	narratorAI *scriptedAI
	memory     *mockMemory
	rag        *mockRag
	client     *mockAction
	ops        *mockAction
	store      *InMemoryExecutionStore
	pipeline   *Orchestrator
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		plannerAI:  &scriptedAI{},
		narratorAI: &scriptedAI{},
		memory:     &mockMemory{},
		rag:        &mockRag{},
		client:     &mockAction{},
		ops:        &mockAction{},
		store:      NewInMemoryExecutionStore(10),
	}

	cfg := DefaultConfig()
	registry := tools.NewRegistry()
	validator := NewPlanValidator(registry, cfg)

	f.pipeline = NewOrchestrator(OrchestratorDeps{
		Router:    NewIntentRouter(),
		Planner:   NewPlanner(f.plannerAI, registry, validator, cfg, "planner-model"),
		Arbiter:   NewDecisionArbiter(),
		Executor:  NewDAGExecutor(registry, f.memory, f.rag, f.client, f.ops, cfg),
		Analyst:   NewSemanticAnalyst(registry),
		Admission: NewMemoryAdmission(f.memory),
		Narrator:  NewNarrator(f.narratorAI, cfg, "narrator-model"),
		Memory:    f.memory,
		Store:     f.store,
	}, cfg)

	return f
}

func TestPipelineConversationalPath(t *testing.T) {
	f := newPipelineFixture()
	f.narratorAI.script = []scriptedReply{{content: "Hello! How can I help?"}}

	resp, err := f.pipeline.ProcessMessage(context.Background(), UserMessage{
		SessionID: "sess-1",
		Text:      "good morning",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "Hello! How can I help?", resp.Text)
	assert.False(t, resp.IsPartial)
	assert.Empty(t, f.plannerAI.prompts, "conversational path must not plan")
}

func TestPipelineSearchPath(t *testing.T) {
	f := newPipelineFixture()
	// Planner model offline: deterministic fallback plan takes over.
	f.plannerAI.script = []scriptedReply{{err: errors.New("model offline")}}
	f.narratorAI.script = []scriptedReply{{content: "ACME closed at 120 today."}}
	f.rag.response = &SearchResponse{Chunks: []Chunk{
		{Text: "ACME closed at 120", Source: "market-feed", Score: 0.92},
	}}

	resp, err := f.pipeline.ProcessMessage(context.Background(), UserMessage{
		SessionID: "sess-1",
		Text:      "what is the ACME stock price?",
	})
	require.NoError(t, err)
	assert.Equal(t, "ACME closed at 120 today.", resp.Text)

	records, err := f.store.Recent(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, IntentRealtimeSearch, records[0].Intent)
	assert.Equal(t, 1, records[0].Iterations)
	assert.Len(t, records[0].Results, 2)
}

func TestPipelineReplansOnInsufficientResults(t *testing.T) {
	f := newPipelineFixture()
	f.plannerAI.script = []scriptedReply{{err: errors.New("model offline")}}
	f.narratorAI.script = []scriptedReply{{content: "I couldn't find anything."}}
	// Knowledge search keeps coming back empty.
	f.rag.response = &SearchResponse{}

	resp, err := f.pipeline.ProcessMessage(context.Background(), UserMessage{
		SessionID: "sess-1",
		Text:      "latest news on ACME",
	})
	require.NoError(t, err)
	assert.Equal(t, "I couldn't find anything.", resp.Text)

	records, err := f.store.Recent(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Iterations, "adaptive loop is bounded")
	// Each iteration ran the two-step fallback plan.
	assert.Len(t, records[0].Results, 6)
}

func TestPipelineConfirmationHalt(t *testing.T) {
	f := newPipelineFixture()
	f.plannerAI.script = []scriptedReply{{content: `{"goal": "delete file", "steps": [{"step_id": "s1", "description": "delete", "intent": {"action_id": "FS_DELETE", "params": {"path": "old.txt"}}}]}`}}
	// Narrator offline: reply degrades to the execution log.
	f.narratorAI.script = []scriptedReply{{err: errors.New("model offline")}}

	resp, err := f.pipeline.ProcessMessage(context.Background(), UserMessage{
		SessionID: "sess-1",
		Text:      "delete the file old.txt",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "FS_DELETE [AWAITING_CONFIRMATION]")
	assert.Zero(t, f.client.callCount(), "confirmation halts before execution")

	records, err := f.store.Recent(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Iterations, "halt suppresses re-planning")
}

func TestPipelineAdmissionFiresAsync(t *testing.T) {
	f := newPipelineFixture()
	f.narratorAI.script = []scriptedReply{{content: "Noted!"}}

	_, err := f.pipeline.ProcessMessage(context.Background(), UserMessage{
		SessionID: "sess-1",
		Text:      "I like jazz",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		for _, p := range f.memory.recordedProposals() {
			if p.Dimension == "preference_affinity" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestPipelineToleratesMemoryOutage(t *testing.T) {
	f := newPipelineFixture()
	f.memory.err = errors.New("memory service down")
	f.narratorAI.script = []scriptedReply{{content: "Hi there."}}

	resp, err := f.pipeline.ProcessMessage(context.Background(), UserMessage{
		SessionID: "sess-1",
		Text:      "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", resp.Text)
}

func TestPipelineAlwaysAnswers(t *testing.T) {
	f := newPipelineFixture()
	// Every model call fails; every subsystem fails.
	f.plannerAI.script = []scriptedReply{{err: errors.New("down")}}
	f.narratorAI.script = []scriptedReply{{err: errors.New("down")}}
	f.memory.err = errors.New("down")
	f.rag.err = errors.New("down")

	resp, err := f.pipeline.ProcessMessage(context.Background(), UserMessage{
		SessionID: "sess-1",
		Text:      "what's the weather?",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Text)
}

func TestPipelineCancelledContext(t *testing.T) {
	f := newPipelineFixture()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.ProcessMessage(ctx, UserMessage{SessionID: "s", Text: "list files"})
	assert.Error(t, err)
}
