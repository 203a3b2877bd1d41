package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	spec, ok := r.Lookup("RAG_SEARCH")
	require.True(t, ok)
	assert.Equal(t, DestinationRag, spec.Destination)
	assert.Contains(t, spec.RequiredParams, "query")

	_, ok = r.Lookup("DELETE_ALL_DISKS")
	assert.False(t, ok)
}

func TestRegistryDestinations(t *testing.T) {
	r := NewRegistry()

	cases := map[ID]Destination{
		"MEMORY_GET":          DestinationMemory,
		"RAG_SEARCH":          DestinationRag,
		"FS_LIST":             DestinationClient,
		"FS_DELETE":           DestinationClient,
		"SYS_RESTART_SERVICE": DestinationOps,
	}
	for id, want := range cases {
		spec, ok := r.Lookup(id)
		require.True(t, ok, "tool %s should be registered", id)
		assert.Equal(t, want, spec.Destination, "tool %s", id)
	}
}

func TestRegistryIDsSorted(t *testing.T) {
	r := NewRegistry()
	ids := r.IDs()
	require.Equal(t, r.Len(), len(ids))
	for i := 1; i < len(ids); i++ {
		assert.Less(t, string(ids[i-1]), string(ids[i]))
	}
}

func TestRegistrySummaryListsEveryTool(t *testing.T) {
	r := NewRegistry()
	summary := r.Summary()
	for _, id := range r.IDs() {
		assert.True(t, strings.Contains(summary, string(id)), "summary missing %s", id)
	}
}

func TestNewRegistryWithCopies(t *testing.T) {
	src := map[ID]Spec{"X": {Destination: DestinationOps}}
	r := NewRegistryWith(src)
	delete(src, "X")
	assert.True(t, r.Contains("X"))
}
