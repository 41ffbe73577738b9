package sources

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync/atomic"

	"github.com/BaSui01/catalogfed/types"
)

// Registry holds the current source list. The list is never mutated in
// place: Replace builds a new snapshot and swaps it in, so a federation run
// keeps using the snapshot it started with.
type Registry struct {
	current atomic.Pointer[[]types.Source]
}

// NewRegistry creates a registry holding sources.
func NewRegistry(sources ...types.Source) (*Registry, error) {
	r := &Registry{}
	if _, err := r.Replace(sources); err != nil {
		return nil, err
	}
	return r, nil
}

// Sources returns the current snapshot. Callers must not modify it.
func (r *Registry) Sources() []types.Source {
	return *r.current.Load()
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.Sources())
}

// IDs returns the ids of the current sources in registration order.
func (r *Registry) IDs() []string {
	list := r.Sources()
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID()
	}
	return ids
}

// Lookup finds a source by id.
func (r *Registry) Lookup(id string) (types.Source, bool) {
	for _, s := range r.Sources() {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Replace swaps in a new source list and returns the previous one so the
// caller can close it once in-flight queries are done. Nil entries and
// duplicate ids are rejected and leave the registry unchanged.
func (r *Registry) Replace(sources []types.Source) ([]types.Source, error) {
	seen := make(map[string]struct{}, len(sources))
	for i, s := range sources {
		if s == nil {
			return nil, types.NewError(types.ErrInvalidConfiguration, fmt.Sprintf("source %d is nil", i))
		}
		if _, dup := seen[s.ID()]; dup {
			return nil, types.NewError(types.ErrInvalidConfiguration, fmt.Sprintf("duplicate source id %q", s.ID()))
		}
		seen[s.ID()] = struct{}{}
	}
	next := slices.Clip(slices.Clone(sources))
	if next == nil {
		next = []types.Source{}
	}
	old := r.current.Swap(&next)
	if old == nil {
		return nil, nil
	}
	return *old, nil
}

// Close closes every current source that holds resources.
func (r *Registry) Close() error {
	return CloseAll(r.Sources())
}

// CloseAll closes the sources implementing io.Closer.
func CloseAll(sources []types.Source) error {
	var errs []error
	for _, s := range sources {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close source %s: %w", s.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
