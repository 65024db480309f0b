//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package tool

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the closed set of tools available to a workflow.
// Registration happens at startup; the orchestrator never needs to
// change when a tool is added.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewDefaultRegistry creates a registry with the built-in analysis
// tools: correlation, aggregation, filtering, distribution and value
// counts.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Tool{
		&CorrelationTool{},
		&AggregationTool{},
		&FilterTool{},
		&DistributionTool{},
		&ValueCountsTool{},
	} {
		// Built-ins have unique, non-empty names.
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a tool. The name must be unique and non-empty.
func (r *Registry) Register(t Tool) error {
	decl := t.Declaration()
	if decl == nil || decl.Name == "" {
		return fmt.Errorf("tool declaration must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[decl.Name]; exists {
		return fmt.Errorf("tool %s already registered", decl.Name)
	}
	r.tools[decl.Name] = t
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the declarations of all registered tools, sorted
// by name for stable prompt construction.
func (r *Registry) Declarations() []*Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]*Declaration, 0, len(r.tools))
	for _, t := range r.tools {
		decls = append(decls, t.Declaration())
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}
