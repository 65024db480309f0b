//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// previewFunc renders a short human-readable description of what a tool
// invocation would do, given its decoded arguments. Previews are shown
// to a reviewer before a pending tool call is approved.
type previewFunc func(args map[string]any) string

var (
	previewMu       sync.RWMutex
	previewRegistry = make(map[string]previewFunc)
)

// RegisterPreview registers a preview generator for the named tool.
// Later registrations for the same name replace earlier ones.
func RegisterPreview(name string, fn func(args map[string]any) string) {
	previewMu.Lock()
	defer previewMu.Unlock()
	previewRegistry[name] = fn
}

// Preview returns a one-line description of the given tool invocation.
// Tools without a registered generator fall back to a generic rendering
// of the argument list.
func Preview(name string, args json.RawMessage) string {
	decoded := map[string]any{}
	if len(args) > 0 {
		// Best effort: an undecodable payload still gets a preview.
		_ = json.Unmarshal(args, &decoded)
	}

	previewMu.RLock()
	fn, ok := previewRegistry[name]
	previewMu.RUnlock()
	if ok {
		return fn(decoded)
	}
	return genericPreview(name, decoded)
}

func genericPreview(name string, args map[string]any) string {
	if len(args) == 0 {
		return fmt.Sprintf("run %s", name)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return fmt.Sprintf("run %s with %s", name, strings.Join(parts, ", "))
}
