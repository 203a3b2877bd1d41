package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionPreferenceTrigger(t *testing.T) {
	m := NewMemoryAdmission(&mockMemory{})

	proposals := m.Evaluate(UserMessage{Text: "I like jazz in the evening"})
	require.Len(t, proposals, 1)
	assert.Equal(t, "preference_affinity", proposals[0].Dimension)
	assert.Equal(t, 0.2, proposals[0].Delta)
	assert.Equal(t, 0.8, proposals[0].Confidence)
	assert.Equal(t, "user", proposals[0].EntityID)
}

func TestAdmissionStressTrigger(t *testing.T) {
	m := NewMemoryAdmission(&mockMemory{})

	proposals := m.Evaluate(UserMessage{Text: "Stop, that's too much information"})
	require.Len(t, proposals, 1)
	assert.Equal(t, "stress_buffer", proposals[0].Dimension)
	assert.Equal(t, -0.3, proposals[0].Delta)
	assert.Equal(t, 0.9, proposals[0].Confidence)
}

func TestAdmissionNightTrigger(t *testing.T) {
	m := NewMemoryAdmission(&mockMemory{})

	proposals := m.Evaluate(UserMessage{Text: "dim the lights at night"})
	require.Len(t, proposals, 1)
	assert.Equal(t, "night_mode_sensitivity", proposals[0].Dimension)
	assert.Equal(t, 0.5, proposals[0].Delta)
}

func TestAdmissionMultipleTriggers(t *testing.T) {
	m := NewMemoryAdmission(&mockMemory{})

	proposals := m.Evaluate(UserMessage{Text: "I prefer quiet music at night"})
	require.Len(t, proposals, 2)
	assert.Equal(t, "preference_affinity", proposals[0].Dimension)
	assert.Equal(t, "night_mode_sensitivity", proposals[1].Dimension)
}

func TestAdmissionOneProposalPerDimension(t *testing.T) {
	m := NewMemoryAdmission(&mockMemory{})

	// Both phrases of the same trigger match; only one proposal fires.
	proposals := m.Evaluate(UserMessage{Text: "I like it and I prefer it"})
	require.Len(t, proposals, 1)
}

func TestAdmissionNoTrigger(t *testing.T) {
	m := NewMemoryAdmission(&mockMemory{})

	assert.Empty(t, m.Evaluate(UserMessage{Text: "what time is it?"}))
}

func TestAdmissionSubmitPushesProposals(t *testing.T) {
	mem := &mockMemory{}
	m := NewMemoryAdmission(mem)

	m.Submit(context.Background(), UserMessage{Text: "I like sushi"})

	recorded := mem.recordedProposals()
	require.Len(t, recorded, 1)
	assert.Equal(t, "preference_affinity", recorded[0].Dimension)
}

func TestProposalConfidenceClamped(t *testing.T) {
	high := NewMemoryProposal("user", "d", 0.1, "h", 1.7)
	assert.Equal(t, 1.0, high.Confidence)

	low := NewMemoryProposal("user", "d", 0.1, "h", -0.4)
	assert.Equal(t, 0.0, low.Confidence)
}

func TestContextHashDeterministic(t *testing.T) {
	mc := MessageContext{
		Mode:      "home",
		Location:  "office",
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Metadata:  map[string]string{"b": "2", "a": "1"},
	}

	first := hashContext(mc)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, hashContext(mc))
	}
	assert.Len(t, first, 16)
}

func TestContextHashIgnoresTimestamp(t *testing.T) {
	a := MessageContext{Mode: "home", Location: "office", Timestamp: time.Now()}
	b := MessageContext{Mode: "home", Location: "office", Timestamp: time.Now().Add(time.Hour)}

	assert.Equal(t, hashContext(a), hashContext(b))
}

func TestContextHashDistinguishesContent(t *testing.T) {
	a := hashContext(MessageContext{Mode: "home", Location: "office"})
	b := hashContext(MessageContext{Mode: "away", Location: "office"})
	c := hashContext(MessageContext{Mode: "home", Location: "car"})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
