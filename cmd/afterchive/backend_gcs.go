//go:build !no_gcs

package main

import (
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/services/gcs"
	"github.com/fgeck/afterchive/internal/strategy"
)

func init() {
	backends = append(backends, func(r *strategy.Registry, logger zerolog.Logger) {
		r.RegisterStorage(func() strategy.StorageAdapter {
			return gcs.New(logger)
		}, "gcs", "google", "gcp")
	})
}
