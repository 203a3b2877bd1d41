package orchestration

import (
	"context"
	"errors"
	"sync"

	"github.com/cortexkit/cortex/core"
)

// scriptedAI returns queued responses in order, then repeats the last one.
// A nil response with a non-nil error simulates a model failure.
type scriptedAI struct {
	mu      sync.Mutex
	script  []scriptedReply
	prompts []string
}

type scriptedReply struct {
	content string
	err     error
}

func (s *scriptedAI) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)

	if len(s.script) == 0 {
		return nil, errors.New("no scripted reply")
	}
	reply := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &core.AIResponse{Content: reply.content, Model: options.Model}, nil
}

type mockMemory struct {
	mu        sync.Mutex
	context   *MemoryContext
	err       error
	proposals []MemoryProposal
}

func (m *mockMemory) GetContext(ctx context.Context, sessionID string) (*MemoryContext, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.context != nil {
		return m.context, nil
	}
	return &MemoryContext{}, nil
}

func (m *mockMemory) ProposeMemory(ctx context.Context, proposal MemoryProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals = append(m.proposals, proposal)
	return nil
}

func (m *mockMemory) recordedProposals() []MemoryProposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryProposal, len(m.proposals))
	copy(out, m.proposals)
	return out
}

type mockRag struct {
	response *SearchResponse
	err      error
	queries  []string
}

func (m *mockRag) SearchKnowledge(ctx context.Context, query string, topK int) (*SearchResponse, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	if m.response != nil {
		return m.response, nil
	}
	return &SearchResponse{}, nil
}

// mockAction delegates to fn when set, otherwise succeeds with a fixed
// output. calls counts every invocation including failed attempts.
type mockAction struct {
	mu    sync.Mutex
	fn    func(call int, actionID string, params map[string]string) (*ActionResult, error)
	calls int
}

func (m *mockAction) ExecuteAction(ctx context.Context, actionID string, params map[string]string) (*ActionResult, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	fn := m.fn
	m.mu.Unlock()

	if fn != nil {
		return fn(call, actionID, params)
	}
	return &ActionResult{Success: true, Output: "ok"}, nil
}

func (m *mockAction) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
