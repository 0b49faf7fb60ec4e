//go:build !no_azure

package main

import (
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/services/azure"
	"github.com/fgeck/afterchive/internal/strategy"
)

func init() {
	backends = append(backends, func(r *strategy.Registry, logger zerolog.Logger) {
		r.RegisterStorage(func() strategy.StorageAdapter {
			return azure.New(logger)
		}, "azure", "azblob")
	})
}
