// Package gcs stores backups in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/util"
)

// Service defines the interface for Google Cloud Storage operations.
type Service interface {
	Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error)
	Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error)
}

// Client is the subset of bucket operations the service needs.
type Client interface {
	Upload(ctx context.Context, bucket, key string, r io.Reader) error
	Download(ctx context.Context, bucket, key string, w io.Writer) error
	Close() error
}

// ClientFactory creates clients from storage settings.
type ClientFactory interface {
	NewClient(ctx context.Context, cfg models.StorageConfig) (Client, error)
}

// DefaultClientFactory creates clients backed by cloud.google.com/go/storage.
// STORAGE_EMULATOR_HOST is honoured by the SDK itself.
type DefaultClientFactory struct{}

// NewClient creates a GCS client using the credentials file or endpoint from cfg.
func (f *DefaultClientFactory) NewClient(ctx context.Context, cfg models.StorageConfig) (Client, error) {
	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case cfg.Credentials != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &sdkClient{client: client}, nil
}

type sdkClient struct {
	client *storage.Client
}

func (c *sdkClient) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	w := c.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/sql"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (c *sdkClient) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	r, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	_, err = io.Copy(w, r)
	return err
}

func (c *sdkClient) Close() error {
	return c.client.Close()
}

// Impl implements the GCS Service interface.
type Impl struct {
	factory  ClientFactory
	tempRoot string
	logger   zerolog.Logger
}

// New creates a new GCS service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		factory:  &DefaultClientFactory{},
		tempRoot: os.TempDir(),
		logger:   logger,
	}
}

// NewWithClientFactory creates a new GCS service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory, tempRoot string) *Impl {
	return &Impl{
		factory:  factory,
		tempRoot: tempRoot,
		logger:   logger,
	}
}

// Store uploads the artifact to gs://bucket/<path>/<name> and returns that URL.
func (s *Impl) Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error) {
	client, err := s.client(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	key := cfg.ObjectKey(artifactPath)
	location := fmt.Sprintf("gs://%s/%s", cfg.Bucket, key)

	f, err := os.Open(artifactPath) //nolint:gosec // artifact path is created by the run
	if err != nil {
		return "", apperr.Storage(apperr.ReasonUnknown, "cannot open artifact for upload", err)
	}
	defer func() { _ = f.Close() }()

	s.logger.Info().Str("destination", location).Msg("uploading backup to GCS")
	start := time.Now()

	if err := client.Upload(ctx, cfg.Bucket, key, f); err != nil {
		return "", classify(err, fmt.Sprintf("upload to %s failed", location))
	}

	s.logger.Info().
		Str("destination", location).
		Dur("duration", time.Since(start)).
		Msg("upload completed")

	return location, nil
}

// Retrieve downloads <path>/<name> from the bucket into a fresh scratch directory.
func (s *Impl) Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error) {
	client, err := s.client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	key := cfg.ObjectKey(name)
	location := fmt.Sprintf("gs://%s/%s", cfg.Bucket, key)

	artifact, err := models.NewArtifact(s.tempRoot, name)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("source", location).Msg("downloading backup from GCS")

	err = util.WriteTo(artifact.Path, func(f *os.File) error {
		return client.Download(ctx, cfg.Bucket, key, f)
	})
	if err != nil {
		_ = artifact.Remove()
		return nil, classify(err, fmt.Sprintf("download of %s failed", location))
	}

	s.logger.Info().Str("local_path", artifact.Path).Msg("download completed")
	return artifact, nil
}

func (s *Impl) client(ctx context.Context, cfg models.StorageConfig) (Client, error) {
	if err := cfg.Require("bucket"); err != nil {
		return nil, err
	}
	if cfg.Credentials != "" && cfg.Endpoint == "" {
		if _, err := os.Stat(cfg.Credentials); err != nil {
			return nil, apperr.Config(apperr.ReasonInvalidFile,
				fmt.Sprintf("GCS credentials file %s is not readable", cfg.Credentials), err)
		}
	}

	client, err := s.factory.NewClient(ctx, cfg)
	if err != nil {
		return nil, apperr.Storage(apperr.ReasonPermissionDenied, "cannot create GCS client; check the credentials", err)
	}
	return client, nil
}

func classify(err error, message string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return apperr.NotFound(message+": object or bucket does not exist", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.Storage(apperr.ReasonPermissionDenied, message+": permission denied", err)
		case http.StatusNotFound:
			return apperr.NotFound(message+": not found", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Storage(apperr.ReasonConnection, message+": cannot reach Google Cloud Storage", err)
	}
	return apperr.Storage(apperr.ReasonUnknown, message, err)
}
