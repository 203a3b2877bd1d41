package orchestration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(session, request string) ExecutionRecord {
	return ExecutionRecord{
		RequestID: request,
		SessionID: session,
		Intent:    IntentConverse,
		Query:     "q",
		Response:  "r",
		CreatedAt: time.Now().UTC(),
	}
}

func TestInMemoryStoreNewestFirst(t *testing.T) {
	store := NewInMemoryExecutionStore(10)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, record("sess", "r1")))
	require.NoError(t, store.Record(ctx, record("sess", "r2")))
	require.NoError(t, store.Record(ctx, record("sess", "r3")))

	records, err := store.Recent(ctx, "sess", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "r3", records[0].RequestID)
	assert.Equal(t, "r1", records[2].RequestID)
}

func TestInMemoryStoreTrimsToSize(t *testing.T) {
	store := NewInMemoryExecutionStore(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Record(ctx, record("sess", fmt.Sprintf("r%d", i))))
	}

	records, err := store.Recent(ctx, "sess", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "r5", records[0].RequestID)
	assert.Equal(t, "r3", records[2].RequestID)
}

func TestInMemoryStoreLimit(t *testing.T) {
	store := NewInMemoryExecutionStore(10)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, store.Record(ctx, record("sess", fmt.Sprintf("r%d", i))))
	}

	records, err := store.Recent(ctx, "sess", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r4", records[0].RequestID)
}

func TestInMemoryStoreSessionIsolation(t *testing.T) {
	store := NewInMemoryExecutionStore(10)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, record("a", "ra")))
	require.NoError(t, store.Record(ctx, record("b", "rb")))

	records, err := store.Recent(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ra", records[0].RequestID)
}

func TestInMemoryStoreUnknownSession(t *testing.T) {
	store := NewInMemoryExecutionStore(10)

	records, err := store.Recent(context.Background(), "ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNoOpStore(t *testing.T) {
	store := NoOpExecutionStore{}
	ctx := context.Background()

	assert.NoError(t, store.Record(ctx, record("sess", "r1")))
	records, err := store.Recent(ctx, "sess", 10)
	assert.NoError(t, err)
	assert.Empty(t, records)
}
