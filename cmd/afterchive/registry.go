package main

import (
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/services/localstore"
	"github.com/fgeck/afterchive/internal/services/postgres"
	"github.com/fgeck/afterchive/internal/strategy"
)

// backend registers one optional adapter. Each backend_*.go file appends
// itself unless its no_<name> build tag is set.
type backend func(r *strategy.Registry, logger zerolog.Logger)

var backends []backend

func newRegistry(logger zerolog.Logger) *strategy.Registry {
	r := strategy.NewRegistry()

	r.RegisterDatabase(func() strategy.DatabaseAdapter {
		return postgres.New(logger)
	}, "postgres", "postgresql", "pg")

	r.RegisterStorage(func() strategy.StorageAdapter {
		return localstore.New(logger)
	}, "local", "fs")

	for _, register := range backends {
		register(r, logger)
	}
	return r
}
