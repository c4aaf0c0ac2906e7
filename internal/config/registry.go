package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/werewolf/pkg/provider/llm"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by [Factories.Create] for a name no
// factory was registered under.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// Factories maps provider names of one kind to their constructors. It is
// safe for concurrent use.
type Factories[P any] struct {
	kind   string
	mu     sync.RWMutex
	byName map[string]Factory[P]
}

func newFactories[P any](kind string) *Factories[P] {
	return &Factories[P]{kind: kind, byName: map[string]Factory[P]{}}
}

// Register installs fn under name, replacing any earlier factory.
func (f *Factories[P]) Register(name string, fn Factory[P]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byName[name] = fn
}

// Create runs the factory named by e.Name.
func (f *Factories[P]) Create(e ProviderEntry) (P, error) {
	f.mu.RLock()
	fn, ok := f.byName[e.Name]
	f.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return fn(e)
}

// Names returns the registered names, sorted.
func (f *Factories[P]) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.byName))
}

// Registry holds the provider factories the process knows about.
type Registry struct {
	LLM *Factories[llm.Provider]
	TTS *Factories[tts.Provider]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		LLM: newFactories[llm.Provider]("llm"),
		TTS: newFactories[tts.Provider]("tts"),
	}
}

// OptString returns the string option key, or "".
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptInt returns the numeric option key truncated to an int, or 0.
func (e ProviderEntry) OptInt(key string) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// OptDuration parses the option key as a Go duration. Unset or malformed
// values yield 0.
func (e ProviderEntry) OptDuration(key string) time.Duration {
	d, err := time.ParseDuration(e.OptString(key))
	if err != nil {
		return 0
	}
	return d
}

// OptStringMap returns the string-valued entries of the mapping option key.
func (e ProviderEntry) OptStringMap(key string) map[string]string {
	raw, ok := e.Options[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
