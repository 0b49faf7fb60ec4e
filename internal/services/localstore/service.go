// Package localstore keeps backups in a directory on the local filesystem.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/util"
)

// Service defines the interface for local directory storage.
type Service interface {
	Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error)
	Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error)
}

// Impl implements the local storage Service interface.
type Impl struct {
	tempRoot string
	logger   zerolog.Logger
}

// New creates a new local storage service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{tempRoot: os.TempDir(), logger: logger}
}

// NewWithTempRoot creates a local storage service that stages retrieved files under tempRoot.
func NewWithTempRoot(logger zerolog.Logger, tempRoot string) *Impl {
	return &Impl{tempRoot: tempRoot, logger: logger}
}

// Store copies the artifact into the configured directory, creating it if
// needed. An existing file with the same name is replaced.
func (s *Impl) Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error) {
	if err := cfg.Require("path"); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return "", classify(err, fmt.Sprintf("cannot create backup directory %s", cfg.Path))
	}

	dest := filepath.Join(cfg.Path, filepath.Base(artifactPath))
	n, err := util.CopyFile(dest, artifactPath)
	if err != nil {
		_ = os.Remove(dest)
		return "", classify(err, fmt.Sprintf("cannot write %s", dest))
	}

	s.logger.Info().
		Str("destination", dest).
		Int64("size_bytes", n).
		Msg("backup stored in local directory")

	return dest, nil
}

// Retrieve copies a stored backup into a fresh scratch directory.
func (s *Impl) Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error) {
	if err := cfg.Require("path"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := filepath.Join(cfg.Path, filepath.Base(name))
	info, err := os.Stat(src)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("backup %s not found in %s", filepath.Base(name), cfg.Path))
	}
	if info.IsDir() {
		return nil, apperr.NotFound(fmt.Sprintf("%s is a directory, not a backup file", src), nil)
	}

	artifact, err := models.NewArtifact(s.tempRoot, name)
	if err != nil {
		return nil, err
	}

	if _, err := util.CopyFile(artifact.Path, src); err != nil {
		_ = artifact.Remove()
		return nil, classify(err, fmt.Sprintf("cannot read %s", src))
	}

	s.logger.Info().
		Str("source", src).
		Str("local_path", artifact.Path).
		Msg("backup retrieved from local directory")

	return artifact, nil
}

func classify(err error, message string) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return apperr.NotFound(message, err)
	case errors.Is(err, os.ErrPermission):
		return apperr.Storage(apperr.ReasonPermissionDenied, message+": permission denied", err)
	default:
		return apperr.Storage(apperr.ReasonUnknown, message, err)
	}
}
