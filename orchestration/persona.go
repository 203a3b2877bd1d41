package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexkit/cortex/core"
)

const narratorSystemPrompt = `You are a calm, concise personal assistant. Speak in the first person. Never mention tools, plans, or internal systems by name.`

const fallbackGreeting = "I'm here. What can I do for you?"

// Narrator is the persona layer: the only component that produces text shown
// to the user. It sees nothing but the result packet and the synthesized
// context, so raw subsystem payloads never leak into a reply unfiltered.
type Narrator struct {
	ai    core.AIClient
	cfg   *Config
	model string

	logger core.Logger
}

// NewNarrator creates the persona layer.
func NewNarrator(ai core.AIClient, cfg *Config, model string) *Narrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Narrator{
		ai:     ai,
		cfg:    cfg,
		model:  model,
		logger: &core.NoOpLogger{},
	}
}

// SetLogger sets the logger provider.
func (n *Narrator) SetLogger(logger core.Logger) {
	if logger == nil {
		n.logger = &core.NoOpLogger{}
	} else {
		n.logger = logger
	}
}

// NarrateChat answers a conversational message that produced no plan.
// A short, low-latency call; on failure the user still gets a reply.
func (n *Narrator) NarrateChat(ctx context.Context, query string, memctx *MemoryContext) string {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.NarratorChatTimeout)
	defer cancel()

	prompt := fmt.Sprintf("%sRespond briefly to: '%s'", n.personaPreamble(memctx), query)
	resp, err := n.ai.GenerateResponse(ctx, prompt, &core.AIOptions{
		Model:        n.model,
		Temperature:  0.5,
		MaxTokens:    50,
		SystemPrompt: narratorSystemPrompt,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		n.logNarrationFailure("narrate_chat", err)
		return fallbackGreeting
	}
	return strings.TrimSpace(resp.Content)
}

// NarrateTask narrates a result packet. On model failure it degrades to the
// raw execution log so the user always learns what happened.
func (n *Narrator) NarrateTask(ctx context.Context, packet ResultPacket, synthesis string, memctx *MemoryContext) string {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.NarratorTaskTimeout)
	defer cancel()

	executionLog := formatExecutionLog(packet.Results)

	var b strings.Builder
	b.WriteString(n.personaPreamble(memctx))
	fmt.Fprintf(&b, "The user asked: '%s'\n\n", packet.UserQuery)
	if synthesis != "" {
		b.WriteString("Gathered context:\n")
		b.WriteString(synthesis)
		b.WriteString("\n\n")
	}
	b.WriteString("Actions taken:\n")
	b.WriteString(executionLog)
	b.WriteString("\nSummarize the outcome for the user in one or two sentences.")

	resp, err := n.ai.GenerateResponse(ctx, b.String(), &core.AIOptions{
		Model:        n.model,
		Temperature:  0.1,
		MaxTokens:    100,
		SystemPrompt: narratorSystemPrompt,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		n.logNarrationFailure("narrate_task", err)
		return executionLog
	}
	return strings.TrimSpace(resp.Content)
}

// personaPreamble embeds identity summaries and tone/verbosity preferences
// into the prompt. Unset preferences default to 0.5.
func (n *Narrator) personaPreamble(memctx *MemoryContext) string {
	tone, verbosity := 0.5, 0.5
	var summaries []string
	if memctx != nil {
		if v, ok := memctx.Preferences["tone"]; ok {
			tone = v
		}
		if v, ok := memctx.Preferences["verbosity"]; ok {
			verbosity = v
		}
		summaries = memctx.MemorySummaries
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Persona tuning: tone=%.2f verbosity=%.2f (0 is terse/formal, 1 is warm/expansive).\n", tone, verbosity)
	if len(summaries) > 0 {
		b.WriteString("What you know about the user:\n")
		for _, s := range summaries {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

// formatExecutionLog renders one line per result. Absent fields are omitted
// so the log stays readable for short packets.
func formatExecutionLog(results []ExecutionResult) string {
	if len(results) == 0 {
		return "- No actions were taken.\n"
	}
	var b strings.Builder
	for _, res := range results {
		fmt.Fprintf(&b, "- Action: %s [%s]", res.ToolID, res.Status)
		if res.DecisionReason != "" {
			fmt.Fprintf(&b, " | Note: %s", res.DecisionReason)
		}
		if res.RawOutput != "" {
			fmt.Fprintf(&b, " | Result: %s", res.RawOutput)
		}
		if res.Error != "" {
			fmt.Fprintf(&b, " | Error: %s", res.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (n *Narrator) logNarrationFailure(op string, err error) {
	data := map[string]interface{}{
		"operation": op,
		"code":      ErrCodeNarratorFailure,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	n.logger.Warn("Narration fell back to deterministic output", data)
}
