package bots

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"robotarena/server/internal/arena"
)

var (
	// ErrUnknownBot is returned when a battle names a behavior that is not registered.
	ErrUnknownBot = errors.New("unknown bot")
	// ErrDuplicateBot is returned when a behavior name is registered twice.
	ErrDuplicateBot = errors.New("bot already registered")
	// ErrUnknownParam is returned when a parameter is not understood by the behavior.
	ErrUnknownParam = errors.New("unknown bot parameter")
)

// Params carries the numeric tuning knobs of a behavior.
type Params map[string]float64

// Get returns the value stored under key or fallback when absent.
func (p Params) Get(key string, fallback float64) float64 {
	if value, ok := p[key]; ok {
		return value
	}
	return fallback
}

// Definition describes a behavior that can be instantiated by name.
type Definition struct {
	Name        string
	Description string
	// Defaults lists every accepted parameter with its default value.
	Defaults Params
	Build    func(params Params) arena.Behavior
}

// Registry maps bot names to behavior definitions.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// Default returns a registry holding every sample behavior.
func Default() *Registry {
	registry := NewRegistry()
	for _, definition := range []Definition{spinDefinition, staticDefinition, trackerDefinition, velocityDefinition, crazyDefinition} {
		if err := registry.Register(definition); err != nil {
			panic(err)
		}
	}
	return registry
}

// Register adds a definition to the registry. Names are matched case-insensitively.
func (r *Registry) Register(definition Definition) error {
	if r == nil {
		return errors.New("registry is nil")
	}
	key := normaliseName(definition.Name)
	if key == "" {
		return errors.New("bot name must not be empty")
	}
	if definition.Build == nil {
		return fmt.Errorf("bot %s has no constructor", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBot, key)
	}
	r.definitions[key] = definition
	return nil
}

// New instantiates the named behavior, overriding its defaults with params.
func (r *Registry) New(name string, params map[string]float64) (arena.Behavior, error) {
	if r == nil {
		return nil, errors.New("registry is nil")
	}
	key := normaliseName(name)
	r.mu.RLock()
	definition, ok := r.definitions[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBot, name)
	}
	//1.- Start from the defaults so every behavior sees its complete parameter set.
	merged := make(Params, len(definition.Defaults))
	for param, value := range definition.Defaults {
		merged[param] = value
	}
	//2.- Reject typos instead of silently running with the default value.
	for param, value := range params {
		if _, known := definition.Defaults[param]; !known {
			return nil, fmt.Errorf("%w: %s does not accept %q", ErrUnknownParam, key, param)
		}
		merged[param] = value
	}
	return definition.Build(merged), nil
}

// Names lists the registered bots alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the definition registered under name.
func (r *Registry) Describe(name string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	definition, ok := r.definitions[normaliseName(name)]
	return definition, ok
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
