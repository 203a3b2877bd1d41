package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cortexkit/cortex/tools"
)

func newTestAnalyst() *SemanticAnalyst {
	return NewSemanticAnalyst(tools.NewRegistry())
}

func memoryResult(raw string) ExecutionResult {
	return ExecutionResult{StepID: "s1", ToolID: "MEMORY_GET", Status: StatusExecuted, RawOutput: raw}
}

func ragResult(raw string) ExecutionResult {
	return ExecutionResult{StepID: "s2", ToolID: "RAG_SEARCH", Status: StatusExecuted, RawOutput: raw}
}

func TestAnalystEmptyResults(t *testing.T) {
	a := newTestAnalyst()

	summary, needMore := a.Synthesize(nil)
	assert.Equal(t, "No significant context found.", summary)
	assert.False(t, needMore)
}

func TestAnalystPartitionsByDestination(t *testing.T) {
	a := newTestAnalyst()

	results := []ExecutionResult{
		memoryResult(`{"memory_summaries":["Works from home"],"preferences":{"tone":0.3}}`),
		ragResult(`{"success":true,"chunks":[{"text":"ACME closed at 120","source":"market-feed","score":0.92}]}`),
		{StepID: "s3", ToolID: "APP_OPEN", Status: StatusExecuted, RawOutput: `{"success":true,"output":"browser opened"}`},
	}

	summary, needMore := a.Synthesize(results)
	assert.False(t, needMore)

	assert.Contains(t, summary, "### IDENTITY & PREFERENCES")
	assert.Contains(t, summary, "- Works from home")
	assert.Contains(t, summary, "- Preference tone: 0.30")

	assert.Contains(t, summary, "### EXTERNAL ENRICHMENT (RAG)")
	assert.Contains(t, summary, "- ACME closed at 120 (Source: market-feed, Reliability: 0.92)")

	assert.Contains(t, summary, "### SYSTEM EXECUTION")
	assert.Contains(t, summary, "- Action: browser opened")
}

func TestAnalystOmitsEmptySections(t *testing.T) {
	a := newTestAnalyst()

	summary, _ := a.Synthesize([]ExecutionResult{
		memoryResult(`{"memory_summaries":["Night owl"],"preferences":{}}`),
	})

	assert.Contains(t, summary, "### IDENTITY & PREFERENCES")
	assert.NotContains(t, summary, "### EXTERNAL ENRICHMENT (RAG)")
	assert.NotContains(t, summary, "### SYSTEM EXECUTION")
}

func TestAnalystDeterministicOutput(t *testing.T) {
	a := newTestAnalyst()

	results := []ExecutionResult{
		memoryResult(`{"memory_summaries":["A","B"],"preferences":{"verbosity":0.7,"tone":0.2,"humor":0.9}}`),
	}

	first, _ := a.Synthesize(results)
	for i := 0; i < 10; i++ {
		again, _ := a.Synthesize(results)
		assert.Equal(t, first, again)
	}
	// Preferences appear in sorted key order.
	assert.Regexp(t, `(?s)humor.*tone.*verbosity`, first)
}

func TestAnalystInsufficiencyOnEmptyChunks(t *testing.T) {
	a := newTestAnalyst()

	_, needMore := a.Synthesize([]ExecutionResult{
		ragResult(`{"success":true,"chunks":[]}`),
	})
	assert.True(t, needMore)
}

func TestAnalystInsufficiencyIsGlobal(t *testing.T) {
	a := newTestAnalyst()

	// One search found a fact; another succeeded with nothing. The
	// enrichment partition is non-empty overall, so no replan.
	summary, needMore := a.Synthesize([]ExecutionResult{
		ragResult(`{"success":true,"chunks":[{"text":"ACME closed at 120","source":"market-feed","score":0.92}]}`),
		{StepID: "s3", ToolID: "RAG_SEARCH", Status: StatusExecuted, RawOutput: `{"success":true,"chunks":[]}`},
	})
	assert.False(t, needMore)
	assert.Contains(t, summary, "- ACME closed at 120 (Source: market-feed, Reliability: 0.92)")
}

func TestAnalystNoReplanWithoutLiteralSuccess(t *testing.T) {
	a := newTestAnalyst()

	// Only a success flag that is literally true can trigger a replan;
	// absent, false, or unreadable payloads never do.
	tests := []struct {
		name string
		raw  string
	}{
		{"absent flag", `{"chunks":[]}`},
		{"false flag", `{"success":false,"chunks":[]}`},
		{"garbage payload", `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, needMore := a.Synthesize([]ExecutionResult{ragResult(tt.raw)})
			assert.False(t, needMore)
		})
	}
}

func TestAnalystChunksKeptRegardlessOfSuccessFlag(t *testing.T) {
	a := newTestAnalyst()

	summary, needMore := a.Synthesize([]ExecutionResult{
		ragResult(`{"success":false,"chunks":[{"text":"stale fact","source":"cache","score":0.4}]}`),
	})
	assert.False(t, needMore)
	assert.Contains(t, summary, "- stale fact (Source: cache, Reliability: 0.40)")
}

func TestAnalystFailureAndDenialLines(t *testing.T) {
	a := newTestAnalyst()

	summary, _ := a.Synthesize([]ExecutionResult{
		{StepID: "s1", ToolID: "APP_OPEN", Status: StatusFailed, Error: "connection refused"},
		{StepID: "s2", ToolID: "FS_DELETE", Status: StatusDenied, DecisionReason: "Critical system safety violation."},
	})

	assert.Contains(t, summary, "### SYSTEM EXECUTION")
	assert.Contains(t, summary, "- Action FAILED: connection refused")
	assert.Contains(t, summary, "- Action DENIED: Critical system safety violation.")
}

func TestAnalystIgnoresSkippedSteps(t *testing.T) {
	a := newTestAnalyst()

	summary, needMore := a.Synthesize([]ExecutionResult{
		{StepID: "s1", ToolID: "MEMORY_GET", Status: StatusSkipped},
	})
	assert.Equal(t, "No significant context found.", summary)
	assert.False(t, needMore)
}

func TestAnalystUnknownToolIgnored(t *testing.T) {
	a := newTestAnalyst()

	summary, needMore := a.Synthesize([]ExecutionResult{
		{StepID: "s1", ToolID: "MYSTERY_TOOL", Status: StatusExecuted, RawOutput: `{}`},
	})
	assert.Equal(t, "No significant context found.", summary)
	assert.False(t, needMore)
}
