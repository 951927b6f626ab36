package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/benvon/crm-tools/internal/security"
)

// Registry holds tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds t. Names follow the identifier rules and must be unique.
func (r *Registry) Register(t Tool) error {
	if _, err := security.ValidateIdentifier("name", t.Name); err != nil {
		return fmt.Errorf("register tool: %w", err)
	}
	if t.Handler == nil {
		return fmt.Errorf("register tool %s: handler is required", t.Name)
	}
	if t.InputSchema == nil {
		t.InputSchema = object(nil, map[string]any{})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("register tool %s: %w", t.Name, ErrDuplicateTool)
	}
	r.tools[t.Name] = &t
	return nil
}

// MustRegister is Register for static catalogues.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Default returns a registry with the full CRM catalogue.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(clientTools()...)
	r.MustRegister(invoiceTools()...)
	r.MustRegister(projectTools()...)
	r.MustRegister(taskTools()...)
	r.MustRegister(ticketTools()...)
	r.MustRegister(timesheetTools()...)
	r.MustRegister(subscriptionTools()...)
	r.MustRegister(wikiTools()...)
	r.MustRegister(staffTools()...)
	r.MustRegister(reportTools()...)
	r.MustRegister(queryTools()...)
	return r
}
