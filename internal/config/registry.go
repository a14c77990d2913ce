package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxtrace/voxtrace/pkg/provider/live"
	"github.com/voxtrace/voxtrace/pkg/provider/synth"
	"github.com/voxtrace/voxtrace/pkg/provider/tracegen"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	live     map[string]func(ProviderEntry) (live.Provider, error)
	synth    map[string]func(ProviderEntry) (synth.Provider, error)
	tracegen map[string]func(ProviderEntry) (tracegen.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:     make(map[string]func(ProviderEntry) (live.Provider, error)),
		synth:    make(map[string]func(ProviderEntry) (synth.Provider, error)),
		tracegen: make(map[string]func(ProviderEntry) (tracegen.Provider, error)),
	}
}

// RegisterLive registers a live session provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterSynth registers a synthesis provider factory under name.
func (r *Registry) RegisterSynth(name string, factory func(ProviderEntry) (synth.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth[name] = factory
}

// RegisterTraceGen registers a trace generator factory under name.
func (r *Registry) RegisterTraceGen(name string, factory func(ProviderEntry) (tracegen.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracegen[name] = factory
}

// CreateLive instantiates a live provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSynth instantiates a synthesis provider using the factory registered
// under entry.Name.
func (r *Registry) CreateSynth(entry ProviderEntry) (synth.Provider, error) {
	r.mu.RLock()
	factory, ok := r.synth[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synth/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTraceGen instantiates a trace generator using the factory registered
// under entry.Name.
func (r *Registry) CreateTraceGen(entry ProviderEntry) (tracegen.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tracegen[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tracegen/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
