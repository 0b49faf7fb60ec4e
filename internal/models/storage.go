package models

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/fgeck/afterchive/internal/apperr"
)

// StorageConfig holds the destination settings. Which fields are required
// depends on the storage type and is checked by each adapter.
type StorageConfig struct {
	Type        string
	Bucket      string // bucket (gcs, s3) or container (azure)
	Path        string // directory (local, ssh) or key prefix (gcs, s3, azure)
	Region      string
	Credentials string // credentials file (gcs, s3) or private key (ssh)
	Project     string
	Endpoint    string // emulator or S3-compatible endpoint override
	Account     string // azure storage account
	Host        string
	Port        int
	User        string
	KnownHosts  string      // ssh known_hosts file; empty skips host key checks
	Wake        *WakeConfig // nil if not configured
}

// Missing returns the names of the given fields that are empty.
func (c StorageConfig) Missing(fields ...string) []string {
	var missing []string
	for _, f := range fields {
		if c.field(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Require returns a missing-field error naming every empty field as
// storage.<field>, or nil when all are set.
func (c StorageConfig) Require(fields ...string) error {
	missing := c.Missing(fields...)
	if len(missing) == 0 {
		return nil
	}
	for i, m := range missing {
		missing[i] = "storage." + m
	}
	return apperr.MissingFields(missing...)
}

func (c StorageConfig) field(name string) string {
	switch name {
	case "bucket":
		return c.Bucket
	case "path":
		return c.Path
	case "region":
		return c.Region
	case "credentials":
		return c.Credentials
	case "project":
		return c.Project
	case "endpoint":
		return c.Endpoint
	case "account":
		return c.Account
	case "host":
		return c.Host
	case "user":
		return c.User
	default:
		return ""
	}
}

// ObjectKey returns the remote object key for a local file or artifact name:
// the configured prefix without surrounding slashes joined with the base name.
func (c StorageConfig) ObjectKey(name string) string {
	base := filepath.Base(name)
	prefix := strings.Trim(c.Path, "/")
	if prefix == "" {
		return base
	}
	return path.Join(prefix, base)
}
