package source

import (
	"errors"
	"iter"
	"slices"
)

var (
	// ErrAlreadyExists is returned by [Registry.Register] for a taken id.
	ErrAlreadyExists = errors.New("source: already exists")

	// ErrNotFound is returned for ids that are not registered.
	ErrNotFound = errors.New("source: not found")
)

// Registry maps source ids to sources and remembers insertion order, so every
// enumeration yields ids in the same order.
//
// Registry is not safe for concurrent use; it belongs to the single control
// loop.
type Registry struct {
	byID  map[string]*Source
	order []string
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Source)}
}

// Register adds src under src.ID.
func (r *Registry) Register(src *Source) error {
	if _, ok := r.byID[src.ID]; ok {
		return ErrAlreadyExists
	}
	r.byID[src.ID] = src
	r.order = append(r.order, src.ID)
	return nil
}

// Lookup returns the source registered under id.
func (r *Registry) Lookup(id string) (*Source, error) {
	src, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return src, nil
}

// Remove unregisters id and hands the source back to the caller, who becomes
// responsible for releasing its handles.
func (r *Registry) Remove(id string) (*Source, error) {
	src, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.byID, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return src, nil
}

// IDs returns a snapshot of the registered ids in insertion order.
func (r *Registry) IDs() []string { return slices.Clone(r.order) }

// All yields every source in insertion order. It iterates over a snapshot,
// so the registry may be modified during iteration.
func (r *Registry) All() iter.Seq[*Source] {
	ids := r.IDs()
	return func(yield func(*Source) bool) {
		for _, id := range ids {
			src, ok := r.byID[id]
			if !ok {
				continue
			}
			if !yield(src) {
				return
			}
		}
	}
}

// Len returns the number of registered sources.
func (r *Registry) Len() int { return len(r.byID) }

// Clear removes every source without touching their handles.
func (r *Registry) Clear() {
	clear(r.byID)
	r.order = nil
}
