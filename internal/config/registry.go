package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/carescribe/carescribe/internal/extract"
	"github.com/carescribe/carescribe/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	stt       map[string]func(ProviderEntry) (stt.Transcriber, error)
	extractor map[string]func(ProviderEntry) (extract.Extractor, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:       make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		extractor: make(map[string]func(ProviderEntry) (extract.Extractor, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterExtractor registers an extractor factory under name.
func (r *Registry) RegisterExtractor(name string, factory func(ProviderEntry) (extract.Extractor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractor[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateExtractor instantiates an extractor using the factory registered
// under entry.Name.
func (r *Registry) CreateExtractor(entry ProviderEntry) (extract.Extractor, error) {
	r.mu.RLock()
	factory, ok := r.extractor[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: extractor/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
