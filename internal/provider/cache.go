package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// ErrModelNotFound is matched by every *ModelNotFoundError.
var ErrModelNotFound = errors.New("model not found")

// ModelNotFoundError reports an unknown provider/model pair.
type ModelNotFoundError struct {
	Provider   string
	Model      string
	Suggestion string
}

func (e *ModelNotFoundError) Error() string {
	msg := fmt.Sprintf("model not found: %s/%s", e.Provider, e.Model)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %s?)", e.Suggestion)
	}
	return msg
}

func (e *ModelNotFoundError) Is(target error) bool {
	return target == ErrModelNotFound
}

// ModelCache lists the catalog of every registered provider once and serves
// it from memory until invalidated. Failed listings are not cached.
type ModelCache struct {
	registry *Registry

	mu      sync.Mutex
	catalog types.ModelCatalog
}

// NewModelCache creates a cache over registry.
func NewModelCache(registry *Registry) *ModelCache {
	return &ModelCache{registry: registry}
}

// Catalog returns the cached catalog, populating it on first use.
func (c *ModelCache) Catalog(ctx context.Context) (types.ModelCatalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.catalog != nil {
		return c.catalog, nil
	}

	catalog := make(types.ModelCatalog)
	for _, p := range c.registry.List() {
		models, err := p.Models(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s models: %w", p.Kind(), err)
		}
		catalog[string(p.Kind())] = models
	}
	c.catalog = catalog
	return catalog, nil
}

// Invalidate drops the cached catalog.
func (c *ModelCache) Invalidate() {
	c.mu.Lock()
	c.catalog = nil
	c.mu.Unlock()
}

// Resolve looks up providerName/modelID in the catalog.
func (c *ModelCache) Resolve(ctx context.Context, providerName, modelID string) (Model, error) {
	catalog, err := c.Catalog(ctx)
	if err != nil {
		return Model{}, err
	}

	p, ok := c.registry.Get(providerName)
	if ok {
		if d, found := catalog.Find(providerName, modelID); found {
			return Model{Provider: p, Descriptor: d}, nil
		}
	}

	return Model{}, &ModelNotFoundError{
		Provider:   providerName,
		Model:      modelID,
		Suggestion: suggest(catalog, providerName+"/"+modelID),
	}
}

// suggest returns the closest "provider/model" name, if any is close enough.
func suggest(catalog types.ModelCatalog, want string) string {
	best, bestDist := "", -1
	for _, p := range Kinds {
		for _, m := range catalog[string(p)] {
			name := string(p) + "/" + m.ID
			d := levenshtein.ComputeDistance(want, name)
			if bestDist < 0 || d < bestDist {
				best, bestDist = name, d
			}
		}
	}
	if bestDist < 0 || bestDist > len(want)/2 {
		return ""
	}
	return best
}
