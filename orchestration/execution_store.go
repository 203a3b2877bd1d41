package orchestration

import (
	"context"
	"sync"
	"time"
)

// ExecutionRecord is the audit entry persisted for every processed message.
type ExecutionRecord struct {
	RequestID  string            `json:"request_id"`
	SessionID  string            `json:"session_id"`
	Intent     Intent            `json:"intent"`
	Query      string            `json:"query"`
	Results    []ExecutionResult `json:"results,omitempty"`
	Response   string            `json:"response"`
	Iterations int               `json:"iterations"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ExecutionStore persists pipeline audit records. Implementations must be
// safe for concurrent use; Record failures are advisory and never block a
// response.
type ExecutionStore interface {
	Record(ctx context.Context, record ExecutionRecord) error
	Recent(ctx context.Context, sessionID string, limit int) ([]ExecutionRecord, error)
}

// NoOpExecutionStore discards records. Default when no store is configured.
type NoOpExecutionStore struct{}

func (NoOpExecutionStore) Record(ctx context.Context, record ExecutionRecord) error {
	return nil
}

func (NoOpExecutionStore) Recent(ctx context.Context, sessionID string, limit int) ([]ExecutionRecord, error) {
	return nil, nil
}

// InMemoryExecutionStore keeps a bounded per-session ring of records.
// Suitable for single-instance deployments and tests.
type InMemoryExecutionStore struct {
	mu       sync.RWMutex
	sessions map[string][]ExecutionRecord
	size     int
}

// NewInMemoryExecutionStore creates a store keeping at most size records per
// session (newest first).
func NewInMemoryExecutionStore(size int) *InMemoryExecutionStore {
	if size <= 0 {
		size = DefaultConfig().HistorySize
	}
	return &InMemoryExecutionStore{
		sessions: make(map[string][]ExecutionRecord),
		size:     size,
	}
}

func (s *InMemoryExecutionStore) Record(ctx context.Context, record ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append([]ExecutionRecord{record}, s.sessions[record.SessionID]...)
	if len(history) > s.size {
		history = history[:s.size]
	}
	s.sessions[record.SessionID] = history
	return nil
}

func (s *InMemoryExecutionStore) Recent(ctx context.Context, sessionID string, limit int) ([]ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]ExecutionRecord, limit)
	copy(out, history[:limit])
	return out, nil
}
