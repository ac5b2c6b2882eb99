/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/suparena/docstore/document"
)

// GeneratorFunc builds one synthetic record; seq is its position in the batch.
type GeneratorFunc func(seq int) *document.Document

var (
	// generatorRegistry holds the mapping from a record kind (like "user", "article") to its generator.
	generatorRegistry = make(map[string]GeneratorFunc)
	generatorMu       sync.RWMutex
)

// RegisterGenerator registers a generator for a given record kind.
// If a generator is already registered for the kind, it panics to prevent accidental overrides.
func RegisterGenerator(kind string, fn GeneratorFunc) {
	generatorMu.Lock()
	defer generatorMu.Unlock()

	if _, exists := generatorRegistry[kind]; exists {
		panic(fmt.Sprintf("generator registry: kind %q already registered", kind))
	}
	generatorRegistry[kind] = fn
}

// GetGenerator returns the registered generator for the given kind.
// If no generator is registered, it returns an error.
func GetGenerator(kind string) (GeneratorFunc, error) {
	generatorMu.RLock()
	defer generatorMu.RUnlock()

	fn, ok := generatorRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("generator registry: no generator registered for kind %q", kind)
	}
	return fn, nil
}

// GeneratorKinds lists the registered kinds in sorted order.
func GeneratorKinds() []string {
	generatorMu.RLock()
	defer generatorMu.RUnlock()

	kinds := make([]string, 0, len(generatorRegistry))
	for k := range generatorRegistry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
