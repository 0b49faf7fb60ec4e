//go:build !no_ssh

package main

import (
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/services/ssh"
	"github.com/fgeck/afterchive/internal/strategy"
)

func init() {
	backends = append(backends, func(r *strategy.Registry, logger zerolog.Logger) {
		r.RegisterStorage(func() strategy.StorageAdapter {
			return ssh.New(logger)
		}, "ssh", "scp")
	})
}
