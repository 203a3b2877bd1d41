package orchestration

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/tools"
)

// Partition headers of the synthesized context document. The narrator prompt
// depends on these exact strings, so they are fixed.
const (
	headerIdentity   = "### IDENTITY & PREFERENCES"
	headerEnrichment = "### EXTERNAL ENRICHMENT (RAG)"
	headerExecution  = "### SYSTEM EXECUTION"

	emptySynthesis = "No significant context found."
)

// SemanticAnalyst condenses raw execution results into a partitioned context
// document and decides whether another planning iteration is warranted.
// Pure function of its inputs: identical results produce identical output.
type SemanticAnalyst struct {
	registry *tools.Registry
	logger   core.Logger
}

// NewSemanticAnalyst creates the analyst.
func NewSemanticAnalyst(registry *tools.Registry) *SemanticAnalyst {
	return &SemanticAnalyst{
		registry: registry,
		logger:   &core.NoOpLogger{},
	}
}

// SetLogger sets the logger provider.
func (s *SemanticAnalyst) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
	} else {
		s.logger = logger
	}
}

// Synthesize builds the partitioned summary and reports whether the results
// are insufficient. Insufficiency is a global property of the whole result
// set: a knowledge search was attempted, the enrichment partition ended up
// empty, and at least one search reported success as literally true. A
// search whose success flag is false or absent cannot trigger a replan.
func (s *SemanticAnalyst) Synthesize(results []ExecutionResult) (string, bool) {
	var identity, enrichment, execution []string
	ragAttempted := false
	ragSucceeded := false

	for _, res := range results {
		switch res.Status {
		case StatusExecuted:
			// handled below
		case StatusFailed:
			execution = append(execution, fmt.Sprintf("- Action FAILED: %s", res.Error))
			continue
		case StatusDenied:
			execution = append(execution, fmt.Sprintf("- Action DENIED: %s", res.DecisionReason))
			continue
		default:
			continue
		}

		spec, ok := s.registry.Lookup(tools.ID(res.ToolID))
		if !ok {
			continue
		}

		switch spec.Destination {
		case tools.DestinationMemory:
			identity = append(identity, s.memoryLines(res)...)
		case tools.DestinationRag:
			ragAttempted = true
			facts, succeeded := s.ragLines(res)
			enrichment = append(enrichment, facts...)
			if succeeded {
				ragSucceeded = true
			}
		case tools.DestinationClient, tools.DestinationOps:
			execution = append(execution, s.actionLine(res))
		}
	}

	needMore := ragAttempted && len(enrichment) == 0 && ragSucceeded

	var b strings.Builder
	writeSection := func(header string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(header)
		b.WriteString("\n")
		for _, line := range lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	writeSection(headerIdentity, identity)
	writeSection(headerEnrichment, enrichment)
	writeSection(headerExecution, execution)

	if b.Len() == 0 {
		return emptySynthesis, needMore
	}
	return strings.TrimRight(b.String(), "\n"), needMore
}

func (s *SemanticAnalyst) memoryLines(res ExecutionResult) []string {
	var payload MemoryContext
	if err := json.Unmarshal([]byte(res.RawOutput), &payload); err != nil {
		s.logger.Warn("Unreadable memory payload", map[string]interface{}{
			"operation": "synthesize",
			"tool_id":   res.ToolID,
			"error":     err.Error(),
		})
		return nil
	}

	var lines []string
	for _, summary := range payload.MemorySummaries {
		lines = append(lines, "- "+summary)
	}

	// Preferences in sorted key order so synthesis is byte-deterministic.
	keys := make([]string, 0, len(payload.Preferences))
	for k := range payload.Preferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- Preference %s: %.2f", k, payload.Preferences[k]))
	}
	return lines
}

// ragLines decodes a knowledge search envelope into fact lines. Chunks are
// included regardless of the success flag; the returned bool reports only
// whether success was literally true, for the global insufficiency check.
func (s *SemanticAnalyst) ragLines(res ExecutionResult) ([]string, bool) {
	var payload ragEnvelope
	if err := json.Unmarshal([]byte(res.RawOutput), &payload); err != nil {
		s.logger.Warn("Unreadable knowledge payload", map[string]interface{}{
			"operation": "synthesize",
			"tool_id":   res.ToolID,
			"error":     err.Error(),
		})
		return nil, false
	}

	lines := make([]string, 0, len(payload.Chunks))
	for _, chunk := range payload.Chunks {
		lines = append(lines, fmt.Sprintf("- %s (Source: %s, Reliability: %.2f)", chunk.Text, chunk.Source, chunk.Score))
	}
	return lines, payload.Success != nil && *payload.Success
}

func (s *SemanticAnalyst) actionLine(res ExecutionResult) string {
	var payload ActionResult
	if err := json.Unmarshal([]byte(res.RawOutput), &payload); err == nil && payload.Output != "" {
		return fmt.Sprintf("- Action: %s", payload.Output)
	}
	return fmt.Sprintf("- Action: %s", res.RawOutput)
}
