// Package registry resolves secret type definitions from the catalog.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/org/secretbroker/internal/storage"
	"github.com/org/secretbroker/pkg/models"
)

// Registry is a read-through view of the secret type definitions seeded
// into the catalog at bootstrap. Definitions are immutable, and read volume
// is low, so there is no caching layer.
type Registry struct {
	catalog storage.Catalog
}

// New creates a Registry over the given catalog.
func New(catalog storage.Catalog) *Registry {
	return &Registry{catalog: catalog}
}

// GetType resolves one type definition; storage.ErrNotFound when the type
// is not registered.
func (r *Registry) GetType(ctx context.Context, typeID string) (*models.SecretType, error) {
	raw, err := r.catalog.Get(ctx, storage.TypeKey(typeID))
	if err != nil {
		return nil, err
	}

	var def models.SecretType
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("unmarshaling secret type %s: %w", typeID, err)
	}
	def.ID = typeID
	return &def, nil
}

// ListTypes returns all registered type definitions, sorted by id.
func (r *Registry) ListTypes(ctx context.Context) ([]models.SecretType, error) {
	entries, err := r.catalog.List(ctx, storage.TypePrefix)
	if err != nil {
		return nil, err
	}

	types := make([]models.SecretType, 0, len(entries))
	for _, entry := range entries {
		id := strings.TrimPrefix(entry.Key, storage.TypePrefix)
		if id == "" {
			continue
		}

		var def models.SecretType
		if err := json.Unmarshal(entry.Value, &def); err != nil {
			return nil, fmt.Errorf("unmarshaling secret type %s: %w", id, err)
		}
		def.ID = id
		types = append(types, def)
	}

	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types, nil
}
