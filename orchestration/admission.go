package orchestration

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/cortexkit/cortex/core"
)

// NewMemoryProposal builds a proposal with confidence clamped to [0,1].
func NewMemoryProposal(entityID, dimension string, delta float64, contextHash string, confidence float64) MemoryProposal {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return MemoryProposal{
		EntityID:    entityID,
		Dimension:   dimension,
		Delta:       delta,
		ContextHash: contextHash,
		Confidence:  confidence,
	}
}

// hashContext fingerprints the situational context of a message so the
// memory service can de-duplicate proposals from the same situation.
// FNV-64a over mode, location and sorted metadata pairs.
func hashContext(mc MessageContext) string {
	h := fnv.New64a()
	h.Write([]byte(mc.Mode))
	h.Write([]byte{0})
	h.Write([]byte(mc.Location))

	keys := make([]string, 0, len(mc.Metadata))
	for k := range mc.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(mc.Metadata[k]))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// admissionTrigger maps a phrase in user text to a dimension adjustment.
type admissionTrigger struct {
	phrases    []string
	dimension  string
	delta      float64
	confidence float64
}

var admissionTriggers = []admissionTrigger{
	{phrases: []string{"i like", "i prefer"}, dimension: "preference_affinity", delta: 0.2, confidence: 0.8},
	{phrases: []string{"stop", "too much"}, dimension: "stress_buffer", delta: -0.3, confidence: 0.9},
	{phrases: []string{"at night"}, dimension: "night_mode_sensitivity", delta: 0.5, confidence: 0.7},
}

// MemoryAdmission scans a processed message for durable-signal phrases and
// submits memory proposals. Submission is fire-and-forget: failures are
// logged and never affect the response to the user.
type MemoryAdmission struct {
	memory MemoryService
	logger core.Logger
}

// NewMemoryAdmission creates the admission controller.
func NewMemoryAdmission(memory MemoryService) *MemoryAdmission {
	return &MemoryAdmission{
		memory: memory,
		logger: &core.NoOpLogger{},
	}
}

// SetLogger sets the logger provider.
func (m *MemoryAdmission) SetLogger(logger core.Logger) {
	if logger == nil {
		m.logger = &core.NoOpLogger{}
	} else {
		m.logger = logger
	}
}

// Evaluate returns the proposals triggered by the message, without
// submitting them. Deterministic for identical input.
func (m *MemoryAdmission) Evaluate(msg UserMessage) []MemoryProposal {
	lower := strings.ToLower(msg.Text)
	contextHash := hashContext(msg.Context)

	var proposals []MemoryProposal
	for _, trig := range admissionTriggers {
		for _, phrase := range trig.phrases {
			if strings.Contains(lower, phrase) {
				proposals = append(proposals, NewMemoryProposal(
					"user", trig.dimension, trig.delta, contextHash, trig.confidence))
				break
			}
		}
	}
	return proposals
}

// Submit evaluates the message and pushes any proposals to the memory
// service. Errors are swallowed after logging.
func (m *MemoryAdmission) Submit(ctx context.Context, msg UserMessage) {
	for _, proposal := range m.Evaluate(msg) {
		if err := m.memory.ProposeMemory(ctx, proposal); err != nil {
			m.logger.Warn("Memory proposal submission failed", map[string]interface{}{
				"operation": "memory_admission",
				"dimension": proposal.Dimension,
				"error":     err.Error(),
			})
			continue
		}
		m.logger.Debug("Memory proposal submitted", map[string]interface{}{
			"operation": "memory_admission",
			"dimension": proposal.Dimension,
			"delta":     proposal.Delta,
		})
	}
}
