//go:build !no_mysql

package main

import (
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/services/mysql"
	"github.com/fgeck/afterchive/internal/strategy"
)

func init() {
	backends = append(backends, func(r *strategy.Registry, logger zerolog.Logger) {
		r.RegisterDatabase(func() strategy.DatabaseAdapter {
			return mysql.New(logger)
		}, "mysql", "mariadb")
	})
}
