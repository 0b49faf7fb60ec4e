package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactTimeFormat is the timestamp layout used in artifact names.
const ArtifactTimeFormat = "20060102-150405"

// Artifact is a dump file on local disk together with the scratch
// directory that holds it. It lives for a single backup or restore run.
type Artifact struct {
	Path string
	Dir  string
}

// NewArtifact creates a fresh scratch directory under root and returns an
// artifact pointing at name inside it. The file itself is not created.
func NewArtifact(root, name string) (*Artifact, error) {
	dir, err := os.MkdirTemp(root, "afterchive-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &Artifact{
		Path: filepath.Join(dir, filepath.Base(name)),
		Dir:  dir,
	}, nil
}

// ArtifactName returns the file name for a dump of database taken at t.
func ArtifactName(database string, t time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", database, t.Format(ArtifactTimeFormat), ext)
}

// Name returns the artifact's base file name.
func (a *Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Remove deletes the artifact file and its scratch directory.
// Removing an already removed artifact is not an error.
func (a *Artifact) Remove() error {
	if a == nil {
		return nil
	}
	if a.Dir != "" {
		return os.RemoveAll(a.Dir)
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
