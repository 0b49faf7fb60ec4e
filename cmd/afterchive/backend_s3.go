//go:build !no_s3

package main

import (
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/services/s3"
	"github.com/fgeck/afterchive/internal/strategy"
)

func init() {
	backends = append(backends, func(r *strategy.Registry, logger zerolog.Logger) {
		r.RegisterStorage(func() strategy.StorageAdapter {
			return s3.New(logger)
		}, "s3", "aws")
	})
}
