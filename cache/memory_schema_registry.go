package cache

import (
	"context"
	"strconv"
	"sync"

	"github.com/ohmage/oauth2/domain"
)

// MemorySchemaRegistry implements domain.SchemaRegistry over a fixed set
// of registered schemas.
type MemorySchemaRegistry struct {
	mu        sync.RWMutex
	wildcards map[string]struct{} // every version of the schema exists
	versions  map[string]struct{} // exactly this version exists
}

// NewMemorySchemaRegistry creates an empty registry.
func NewMemorySchemaRegistry() *MemorySchemaRegistry {
	return &MemorySchemaRegistry{
		wildcards: make(map[string]struct{}),
		versions:  make(map[string]struct{}),
	}
}

// Register makes the given schema known. A nil version registers the
// schema for all versions.
func (r *MemorySchemaRegistry) Register(schemaType domain.ScopeType, schemaID string, version *int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if version == nil {
		r.wildcards[schemaKey(schemaType, schemaID, nil)] = struct{}{}
		return
	}
	r.versions[schemaKey(schemaType, schemaID, version)] = struct{}{}
}

// SchemaExists implements domain.SchemaRegistry. A scope without a
// version (all versions) matches any registration of the schema; a
// versioned scope matches a wildcard registration or that exact version.
func (r *MemorySchemaRegistry) SchemaExists(_ context.Context, scope domain.Scope) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.wildcards[schemaKey(scope.Type, scope.SchemaID, nil)]; ok {
		return true, nil
	}
	if scope.SchemaVersion != nil {
		_, ok := r.versions[schemaKey(scope.Type, scope.SchemaID, scope.SchemaVersion)]
		return ok, nil
	}

	// No version requested: any known version of the schema will do.
	prefix := schemaKey(scope.Type, scope.SchemaID, nil) + "/"
	for key := range r.versions {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return true, nil
		}
	}
	return false, nil
}

func schemaKey(schemaType domain.ScopeType, schemaID string, version *int64) string {
	key := string(schemaType) + "/" + schemaID
	if version != nil {
		key += "/" + strconv.FormatInt(*version, 10)
	}
	return key
}
