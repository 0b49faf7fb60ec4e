// Package s3 stores backups in Amazon S3 or an S3-compatible object store.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/util"
)

// EndpointEnv overrides the S3 endpoint when storage.endpoint is not set.
const EndpointEnv = "AWS_ENDPOINT_URL"

// Service defines the interface for S3 storage operations.
type Service interface {
	Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error)
	Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error)
}

// Client is the subset of bucket operations the service needs.
type Client interface {
	Upload(ctx context.Context, bucket, key string, r io.Reader) error
	Download(ctx context.Context, bucket, key string, w io.WriterAt) error
}

// ClientFactory creates clients from storage settings.
type ClientFactory interface {
	NewClient(cfg models.StorageConfig) (Client, error)
}

// DefaultClientFactory creates clients backed by aws-sdk-go.
type DefaultClientFactory struct{}

// NewClient creates an S3 client for the configured region. A credentials
// file, when given, is read as an AWS shared credentials file; otherwise the
// SDK's default chain applies.
func (f *DefaultClientFactory) NewClient(cfg models.StorageConfig) (Client, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Credentials != "" {
		awsCfg.Credentials = credentials.NewSharedCredentials(cfg.Credentials, "")
	}
	if endpoint := endpointFor(cfg); endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return &sdkClient{
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
	}, nil
}

func endpointFor(cfg models.StorageConfig) string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	return os.Getenv(EndpointEnv)
}

type sdkClient struct {
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

func (c *sdkClient) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	_, err := c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	return err
}

func (c *sdkClient) Download(ctx context.Context, bucket, key string, w io.WriterAt) error {
	_, err := c.downloader.DownloadWithContext(ctx, w, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

// Impl implements the S3 Service interface.
type Impl struct {
	factory  ClientFactory
	tempRoot string
	logger   zerolog.Logger
}

// New creates a new S3 service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		factory:  &DefaultClientFactory{},
		tempRoot: os.TempDir(),
		logger:   logger,
	}
}

// NewWithClientFactory creates a new S3 service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory, tempRoot string) *Impl {
	return &Impl{
		factory:  factory,
		tempRoot: tempRoot,
		logger:   logger,
	}
}

// Store uploads the artifact to s3://bucket/<path>/<name> and returns that URL.
// Large files are sent as multipart uploads.
func (s *Impl) Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error) {
	client, err := s.client(cfg)
	if err != nil {
		return "", err
	}

	key := cfg.ObjectKey(artifactPath)
	location := fmt.Sprintf("s3://%s/%s", cfg.Bucket, key)

	f, err := os.Open(artifactPath) //nolint:gosec // artifact path is created by the run
	if err != nil {
		return "", apperr.Storage(apperr.ReasonUnknown, "cannot open artifact for upload", err)
	}
	defer func() { _ = f.Close() }()

	s.logger.Info().
		Str("destination", location).
		Str("region", cfg.Region).
		Msg("uploading backup to S3")
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
	client, err := s.client(cfg)
	if err != nil {
		return nil, err
	}

	key := cfg.ObjectKey(name)
	location := fmt.Sprintf("s3://%s/%s", cfg.Bucket, key)

	artifact, err := models.NewArtifact(s.tempRoot, name)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("source", location).Msg("downloading backup from S3")

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

func (s *Impl) client(cfg models.StorageConfig) (Client, error) {
	if err := cfg.Require("bucket", "region"); err != nil {
		return nil, err
	}
	if cfg.Credentials != "" {
		if _, err := os.Stat(cfg.Credentials); err != nil {
			return nil, apperr.Config(apperr.ReasonInvalidFile,
				fmt.Sprintf("AWS credentials file %s is not readable", cfg.Credentials), err)
		}
	}

	client, err := s.factory.NewClient(cfg)
	if err != nil {
		return nil, apperr.Storage(apperr.ReasonUnknown, "cannot create S3 client", err)
	}
	return client, nil
}

func classify(err error, message string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case awss3.ErrCodeNoSuchKey, awss3.ErrCodeNoSuchBucket, "NotFound":
			return apperr.NotFound(message+": object or bucket does not exist", err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"ExpiredToken", "NoCredentialProviders":
			return apperr.Storage(apperr.ReasonPermissionDenied, message+": access denied; check the credentials", err)
		case request.ErrCodeRequestError, request.CanceledErrorCode:
			return apperr.Storage(apperr.ReasonConnection, message+": cannot reach S3", err)
		}

		var reqErr awserr.RequestFailure
		if errors.As(err, &reqErr) {
			switch reqErr.StatusCode() {
			case http.StatusNotFound:
				return apperr.NotFound(message+": not found", err)
			case http.StatusUnauthorized, http.StatusForbidden:
				return apperr.Storage(apperr.ReasonPermissionDenied, message+": access denied", err)
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Storage(apperr.ReasonConnection, message+": timed out", err)
	}
	return apperr.Storage(apperr.ReasonUnknown, message, err)
}
