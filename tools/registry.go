// Package tools holds the static whitelist of actions the planner may use.
// The registry is the single source of truth for allowed actions: a plan
// referencing a tool outside it is rejected by the validator before any
// arbiter or executor involvement.
package tools

import (
	"fmt"
	"sort"
	"strings"
)

// ID identifies a tool in the registry.
type ID string

// Destination tags which downstream subsystem serves a tool.
type Destination string

const (
	DestinationMemory Destination = "memory"
	DestinationRag    Destination = "rag"
	DestinationClient Destination = "client"
	DestinationOps    Destination = "ops"
)

// Spec describes a registered tool.
type Spec struct {
	Destination    Destination
	RequiredParams []string
	Description    string
}

// Registry maps tool ids to their specs. Read-only after construction.
type Registry struct {
	specs map[ID]Spec
}

// NewRegistry returns the default tool whitelist.
func NewRegistry() *Registry {
	return &Registry{specs: map[ID]Spec{
		"MEMORY_GET": {
			Destination: DestinationMemory,
			Description: "Retrieve identity summaries and preferences for the session",
		},
		"MEMORY_PROPOSE": {
			Destination:    DestinationMemory,
			RequiredParams: []string{"dimension", "delta"},
			Description:    "Propose a long-term memory update",
		},
		"RAG_SEARCH": {
			Destination:    DestinationRag,
			RequiredParams: []string{"query"},
			Description:    "Search the knowledge base for external facts",
		},
		"FS_LIST": {
			Destination:    DestinationClient,
			RequiredParams: []string{"path"},
			Description:    "List files in a directory on the client device",
		},
		"FS_READ": {
			Destination:    DestinationClient,
			RequiredParams: []string{"path"},
			Description:    "Read a file on the client device",
		},
		"FS_DELETE": {
			Destination:    DestinationClient,
			RequiredParams: []string{"path"},
			Description:    "Delete a file on the client device",
		},
		"APP_OPEN": {
			Destination:    DestinationClient,
			RequiredParams: []string{"name"},
			Description:    "Open an application on the client device",
		},
		"SYS_RESTART_SERVICE": {
			Destination:    DestinationOps,
			RequiredParams: []string{"service"},
			Description:    "Restart a managed system service",
		},
		"SYS_RUN_DIAGNOSTIC": {
			Destination: DestinationOps,
			Description: "Run a system diagnostic",
		},
	}}
}

// NewRegistryWith builds a registry from explicit specs, for tests and
// deployments with a reduced tool surface.
func NewRegistryWith(specs map[ID]Spec) *Registry {
	copied := make(map[ID]Spec, len(specs))
	for id, spec := range specs {
		copied[id] = spec
	}
	return &Registry{specs: copied}
}

// Lookup returns the spec for a tool id.
func (r *Registry) Lookup(id ID) (Spec, bool) {
	spec, ok := r.specs[id]
	return spec, ok
}

// Contains reports whether a tool id is registered.
func (r *Registry) Contains(id ID) bool {
	_, ok := r.specs[id]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.specs)
}

// IDs returns all registered tool ids in sorted order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Summary renders a one-line-per-tool listing for the planner prompt.
func (r *Registry) Summary() string {
	var sb strings.Builder
	for _, id := range r.IDs() {
		spec := r.specs[id]
		if len(spec.RequiredParams) > 0 {
			fmt.Fprintf(&sb, "- %s (params: %s): %s\n", id, strings.Join(spec.RequiredParams, ", "), spec.Description)
		} else {
			fmt.Fprintf(&sb, "- %s: %s\n", id, spec.Description)
		}
	}
	return sb.String()
}
