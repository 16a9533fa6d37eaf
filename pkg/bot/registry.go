package bot

import (
	"fmt"
	"sync"

	"github.com/xhad/multibot/internal/models"
)

// Registry holds the configured personas in display order and tracks which
// one is active platform-wide.
type Registry struct {
	personas []models.Persona
	byKey    map[string]int

	mu     sync.RWMutex
	active string
}

// NewRegistry validates personas and returns a registry whose active persona
// is the first one.
func NewRegistry(personas []models.Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("no personas configured")
	}

	r := &Registry{
		personas: make([]models.Persona, len(personas)),
		byKey:    make(map[string]int, len(personas)),
	}
	copy(r.personas, personas)

	for i, p := range r.personas {
		if p.Key == "" {
			return nil, fmt.Errorf("persona %d has no key", i)
		}
		if p.IndexName == "" {
			return nil, fmt.Errorf("persona %s has no index name", p.Key)
		}
		if _, dup := r.byKey[p.Key]; dup {
			return nil, fmt.Errorf("duplicate persona key %s", p.Key)
		}
		r.byKey[p.Key] = i
	}
	r.active = r.personas[0].Key
	return r, nil
}

// List returns the personas in configuration order.
func (r *Registry) List() []models.Persona {
	out := make([]models.Persona, len(r.personas))
	copy(out, r.personas)
	return out
}

// Keys returns the persona keys in configuration order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.personas))
	for i, p := range r.personas {
		keys[i] = p.Key
	}
	return keys
}

// Get returns the persona for key or ErrPersonaNotFound.
func (r *Registry) Get(key string) (models.Persona, error) {
	i, ok := r.byKey[key]
	if !ok {
		return models.Persona{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, key)
	}
	return r.personas[i], nil
}

// SelectPersona makes key the active persona.
func (r *Registry) SelectPersona(key string) error {
	if _, ok := r.byKey[key]; !ok {
		return fmt.Errorf("%w: %s", ErrPersonaNotFound, key)
	}
	r.mu.Lock()
	r.active = key
	r.mu.Unlock()
	return nil
}

// ActivePersona returns the currently selected persona.
func (r *Registry) ActivePersona() models.Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personas[r.byKey[r.active]]
}
