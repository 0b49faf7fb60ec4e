// Package strategy maps database and storage type tokens to adapters.
package strategy

import (
	"context"
	"sort"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
)

// DatabaseAdapter dumps and restores one database engine.
type DatabaseAdapter interface {
	Dump(ctx context.Context, cfg models.DatabaseConfig) (*models.Artifact, error)
	Restore(ctx context.Context, cfg models.DatabaseConfig, backupFile string) error
}

// StorageAdapter stores and retrieves artifacts on one backend.
type StorageAdapter interface {
	Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error)
	Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error)
}

// DatabaseFactory creates a database adapter.
type DatabaseFactory func() DatabaseAdapter

// StorageFactory creates a storage adapter.
type StorageFactory func() StorageAdapter

// Registry resolves type tokens to adapters. Lookups are exact and
// case-sensitive; every alias of an entry resolves to the same factory.
// A Registry is populated once at startup and only read afterwards.
type Registry struct {
	databases     map[string]DatabaseFactory
	storages      map[string]StorageFactory
	databaseNames []string
	storageNames  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		databases: map[string]DatabaseFactory{},
		storages:  map[string]StorageFactory{},
	}
}

// RegisterDatabase binds a factory to a canonical name and its aliases.
func (r *Registry) RegisterDatabase(f DatabaseFactory, name string, aliases ...string) {
	r.databaseNames = append(r.databaseNames, name)
	for _, token := range append([]string{name}, aliases...) {
		r.databases[token] = f
	}
}

// RegisterStorage binds a factory to a canonical name and its aliases.
func (r *Registry) RegisterStorage(f StorageFactory, name string, aliases ...string) {
	r.storageNames = append(r.storageNames, name)
	for _, token := range append([]string{name}, aliases...) {
		r.storages[token] = f
	}
}

// Database returns a new adapter for the given database type token.
func (r *Registry) Database(token string) (DatabaseAdapter, error) {
	f, ok := r.databases[token]
	if !ok {
		return nil, apperr.UnsupportedStrategy("database", token, r.DatabaseTypes())
	}
	return f(), nil
}

// Storage returns a new adapter for the given storage type token.
func (r *Registry) Storage(token string) (StorageAdapter, error) {
	f, ok := r.storages[token]
	if !ok {
		return nil, apperr.UnsupportedStrategy("storage", token, r.StorageTypes())
	}
	return f(), nil
}

// DatabaseTypes returns the canonical names of the registered database engines.
func (r *Registry) DatabaseTypes() []string {
	return sorted(r.databaseNames)
}

// StorageTypes returns the canonical names of the registered storage backends.
func (r *Registry) StorageTypes() []string {
	return sorted(r.storageNames)
}

// HasDatabase reports whether token names a registered database engine.
func (r *Registry) HasDatabase(token string) bool {
	_, ok := r.databases[token]
	return ok
}

// HasStorage reports whether token names a registered storage backend.
func (r *Registry) HasStorage(token string) bool {
	_, ok := r.storages[token]
	return ok
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
