// Package tool holds the static descriptors the authorization engine
// dispatches on. The engine never inspects tool names directly; it asks
// the descriptor what capability class a tool falls into.
package tool

import (
	"sync"
)

// Kind classifies how a tool's input is matched against permission rules.
type Kind int

const (
	// KindOpaque tools are matched on their name and rendered argument only.
	KindOpaque Kind = iota
	// KindShell tools carry a command string subject to decomposition.
	KindShell
	// KindSinglePath tools take exactly one path argument, eligible for
	// glob-pattern rules.
	KindSinglePath
)

// Descriptor describes a tool's permission-relevant shape.
type Descriptor struct {
	Name string
	Kind Kind

	// Restricted tools are subject to the ask flow. Unrestricted tools
	// still go through deny rules but never prompt.
	Restricted bool

	// Mutating marks tools that modify files, auto-allowed in accept-edits
	// mode.
	Mutating bool

	// ReadOnly marks tools that cannot change anything, allowed in plan
	// mode.
	ReadOnly bool

	// ArgKey is the input field carrying the argument of interest: the
	// command string for KindShell, the path for KindSinglePath.
	ArgKey string
}

// Argument extracts the permission-relevant argument from raw tool input.
// Returns false when the input does not carry the expected field.
func (d Descriptor) Argument(input map[string]any) (string, bool) {
	if d.ArgKey == "" {
		return "", false
	}
	v, ok := input[d.ArgKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Registry maps tool names to descriptors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// DefaultRegistry returns a registry seeded with the built-in tool set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range builtins {
		r.Register(d)
	}
	return r
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
}

// Get retrieves a descriptor by tool name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// builtins is the default tool set of the agent. Unknown tools coming
// from external tool servers default to restricted + opaque; see
// Registry.Describe.
var builtins = []Descriptor{
	{Name: "Bash", Kind: KindShell, Restricted: true, ArgKey: "command"},
	{Name: "Read", Kind: KindSinglePath, ReadOnly: true, ArgKey: "file_path"},
	{Name: "Glob", Kind: KindOpaque, ReadOnly: true, ArgKey: "pattern"},
	{Name: "Grep", Kind: KindOpaque, ReadOnly: true, ArgKey: "pattern"},
	{Name: "Write", Kind: KindSinglePath, Restricted: true, Mutating: true, ArgKey: "file_path"},
	{Name: "Edit", Kind: KindSinglePath, Restricted: true, Mutating: true, ArgKey: "file_path"},
	{Name: "WebFetch", Kind: KindOpaque, Restricted: true, ArgKey: "url"},
	{Name: "Task", Kind: KindOpaque, Restricted: true, ArgKey: "prompt"},
}

// Describe returns the descriptor for a tool, falling back to a
// conservative restricted opaque descriptor for unknown tools so that
// nothing escapes checking by being unregistered.
func (r *Registry) Describe(name string) Descriptor {
	if d, ok := r.Get(name); ok {
		return d
	}
	return Descriptor{Name: name, Kind: KindOpaque, Restricted: true}
}
