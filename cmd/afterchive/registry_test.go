//go:build !no_gcs && !no_s3 && !no_azure && !no_ssh && !no_mysql

package main

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_DefaultBuild(t *testing.T) {
	r := newRegistry(zerolog.New(io.Discard))

	assert.Equal(t, []string{"mysql", "postgres"}, r.DatabaseTypes())
	assert.Equal(t, []string{"azure", "gcs", "local", "s3", "ssh"}, r.StorageTypes())

	for _, token := range []string{"postgres", "postgresql", "pg", "mysql", "mariadb"} {
		t.Run("database "+token, func(t *testing.T) {
			adapter, err := r.Database(token)
			require.NoError(t, err)
			assert.NotNil(t, adapter)
		})
	}

	for _, token := range []string{"local", "fs", "gcs", "google", "gcp", "s3", "aws", "azure", "azblob", "ssh", "scp"} {
		t.Run("storage "+token, func(t *testing.T) {
			adapter, err := r.Storage(token)
			require.NoError(t, err)
			assert.NotNil(t, adapter)
		})
	}
}
