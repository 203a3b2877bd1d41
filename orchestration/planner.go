package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/tools"
)

const plannerSystemPrompt = `You are a planning engine. You decompose a user request into a JSON plan of tool invocations. Respond with a single JSON object and nothing else.`

const plannerPromptTemplate = `Available tools:
%s

User intent: %s
User request: %s
%s
Produce a JSON object of the form:
{"goal": "<one line goal>", "steps": [{"step_id": "s1", "description": "...", "intent": {"action_id": "<TOOL_ID>", "params": {}, "depends_on": []}}]}

Rules:
- Use only the tool ids listed above.
- At most %d steps.
- depends_on may reference only earlier step_ids.
- If no tool is needed, return {"goal": "Conversational", "steps": []}.`

// bareKeyPattern repairs the most common small-model JSON defect: object
// keys emitted without quotes.
var bareKeyPattern = regexp.MustCompile(`([,{]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// Planner turns an intent-classified message into a validated PlannerDAG.
// Generation is LLM-backed; every failure path degrades to a deterministic
// fallback plan so the pipeline never stalls on a bad model response.
type Planner struct {
	ai        core.AIClient
	registry  *tools.Registry
	validator *PlanValidator
	cfg       *Config
	model     string

	logger    core.Logger
	telemetry core.Telemetry
}

// NewPlanner creates a planner bound to an AI client and tool registry.
func NewPlanner(ai core.AIClient, registry *tools.Registry, validator *PlanValidator, cfg *Config, model string) *Planner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Planner{
		ai:        ai,
		registry:  registry,
		validator: validator,
		cfg:       cfg,
		model:     model,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger provider.
func (p *Planner) SetLogger(logger core.Logger) {
	if logger == nil {
		p.logger = &core.NoOpLogger{}
	} else {
		p.logger = logger
	}
}

// SetTelemetry sets the telemetry provider.
func (p *Planner) SetTelemetry(telemetry core.Telemetry) {
	if telemetry == nil {
		p.telemetry = &core.NoOpTelemetry{}
	} else {
		p.telemetry = telemetry
	}
}

// Plan produces a validated DAG for the message. feedback is non-empty on
// adaptive re-planning iterations and is appended to the prompt verbatim.
// The returned DAG always passes the validator.
func (p *Planner) Plan(ctx context.Context, intent Intent, text, feedback string) *PlannerDAG {
	if intent == IntentConverse {
		return &PlannerDAG{Goal: "Conversational"}
	}

	dag, err := p.generate(ctx, intent, text, feedback)
	if err != nil {
		p.telemetry.RecordMetric("planner.fallbacks.total", 1, map[string]string{
			"intent": string(intent),
		})
		p.logger.Warn("Plan generation failed, using fallback", map[string]interface{}{
			"operation": "plan_generation",
			"intent":    string(intent),
			"error":     err.Error(),
		})
		return p.fallback(intent, text)
	}

	if err := p.validator.Validate(dag); err != nil {
		p.telemetry.RecordMetric("planner.fallbacks.total", 1, map[string]string{
			"intent": string(intent),
		})
		p.logger.Warn("Generated plan rejected by validator, using fallback", map[string]interface{}{
			"operation": "plan_validation",
			"intent":    string(intent),
			"error":     err.Error(),
		})
		return p.fallback(intent, text)
	}

	return dag
}

func (p *Planner) generate(ctx context.Context, intent Intent, text, feedback string) (*PlannerDAG, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PlannerTimeout)
	defer cancel()

	feedbackPara := ""
	if feedback != "" {
		feedbackPara = fmt.Sprintf("\nPrevious attempt feedback: %s\n", feedback)
	}
	prompt := fmt.Sprintf(plannerPromptTemplate,
		p.registry.Summary(), intent, text, feedbackPara, p.cfg.MaxNodes)

	resp, err := p.ai.GenerateResponse(ctx, prompt, &core.AIOptions{
		Model:        p.model,
		Temperature:  0.2,
		MaxTokens:    512,
		SystemPrompt: plannerSystemPrompt,
		Stop:         []string{"\n\n", "```"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRequestFailed, err)
	}

	dag, err := parsePlan(resp.Content)
	if err != nil {
		return nil, err
	}
	return dag, nil
}

// parsePlan extracts the first balanced JSON object from the model output
// and decodes it, repairing unquoted keys on a second attempt.
func parsePlan(content string) (*PlannerDAG, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}

	var dag PlannerDAG
	if err := json.Unmarshal([]byte(raw), &dag); err == nil {
		return &dag, nil
	}

	repaired := bareKeyPattern.ReplaceAllString(raw, `$1"$2":`)
	if err := json.Unmarshal([]byte(repaired), &dag); err != nil {
		return nil, fmt.Errorf("unparseable plan output: %w", err)
	}
	return &dag, nil
}

// extractJSONObject returns the substring from the first '{' to its matching
// brace, ignoring braces inside string literals.
func extractJSONObject(content string) (string, error) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in model output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in model output")
}

// fallback returns the deterministic minimal plan for an intent. Every
// fallback plan is trivially valid against the default registry.
func (p *Planner) fallback(intent Intent, text string) *PlannerDAG {
	lower := strings.ToLower(text)

	switch intent {
	case IntentToolAction:
		if strings.Contains(lower, "list") || strings.Contains(lower, "files") {
			return &PlannerDAG{
				Goal: "List filesystem entries",
				Steps: []PlannerStep{{
					StepID:      "s1",
					Description: "List files in the requested directory",
					Intent:      ActionIntent{ActionID: "FS_LIST", Params: map[string]string{"path": "."}},
				}},
			}
		}
		return p.memoryOnlyPlan()

	case IntentRealtimeSearch:
		return &PlannerDAG{
			Goal: "Enrich request with identity context and external knowledge",
			Steps: []PlannerStep{
				{
					StepID:      "s1",
					Description: "Fetch identity and preference context",
					Intent:      ActionIntent{ActionID: "MEMORY_GET"},
				},
				{
					StepID:      "s2",
					Description: "Search external knowledge",
					Intent: ActionIntent{
						ActionID:  "RAG_SEARCH",
						Params:    map[string]string{"query": text},
						DependsOn: []string{"s1"},
					},
				},
			},
		}

	default:
		return p.memoryOnlyPlan()
	}
}

func (p *Planner) memoryOnlyPlan() *PlannerDAG {
	return &PlannerDAG{
		Goal: "Fetch identity context",
		Steps: []PlannerStep{{
			StepID:      "s1",
			Description: "Fetch identity and preference context",
			Intent:      ActionIntent{ActionID: "MEMORY_GET"},
		}},
	}
}
