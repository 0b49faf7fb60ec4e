// Package azure stores backups in Azure Blob Storage.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/util"
)

// Environment variables read when building a client.
const (
	EnvEndpoint     = "AZURE_BLOB_ENDPOINT"
	EnvSAS          = "AZURE_STORAGE_SAS"
	EnvClientID     = "AZURE_CLIENT_ID"
	EnvClientSecret = "AZURE_CLIENT_SECRET"
	EnvTenantID     = "AZURE_TENANT_ID"
)

// Service defines the interface for Azure Blob Storage operations.
type Service interface {
	Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error)
	Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error)
}

// Client is the subset of container operations the service needs.
type Client interface {
	Upload(ctx context.Context, container, key string, f *os.File, sha256 string) error
	Download(ctx context.Context, container, key string, f *os.File) error
}

// ClientFactory creates clients from storage settings.
type ClientFactory interface {
	NewClient(cfg models.StorageConfig) (Client, error)
}

// DefaultClientFactory creates clients backed by azblob.
type DefaultClientFactory struct {
	Getenv func(string) string
}

// NewClient picks credentials in this order: SAS token, service principal,
// default Azure credential chain.
func (f *DefaultClientFactory) NewClient(cfg models.StorageConfig) (Client, error) {
	getenv := f.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	endpoint := Endpoint(cfg, getenv)

	if sas := strings.TrimPrefix(strings.TrimSpace(getenv(EnvSAS)), "?"); sas != "" {
		cl, err := azblob.NewClientWithNoCredential(endpoint+"?"+sas, nil)
		if err != nil {
			return nil, err
		}
		return &sdkClient{client: cl}, nil
	}

	if id, secret, tenant := getenv(EnvClientID), getenv(EnvClientSecret), getenv(EnvTenantID); id != "" && secret != "" && tenant != "" {
		cred, err := azidentity.NewClientSecretCredential(tenant, id, secret, nil)
		if err != nil {
			return nil, err
		}
		cl, err := azblob.NewClient(endpoint, cred, nil)
		if err != nil {
			return nil, err
		}
		return &sdkClient{client: cl}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	cl, err := azblob.NewClient(endpoint, cred, nil)
	if err != nil {
		return nil, err
	}
	return &sdkClient{client: cl}, nil
}

// Endpoint returns the blob service URL: storage.endpoint, then
// AZURE_BLOB_ENDPOINT, then the public endpoint of the account.
func Endpoint(cfg models.StorageConfig, getenv func(string) string) string {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = getenv(EnvEndpoint)
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return endpoint
}

type sdkClient struct {
	client *azblob.Client
}

func (c *sdkClient) Upload(ctx context.Context, container, key string, f *os.File, sha256 string) error {
	_, err := c.client.UploadFile(ctx, container, key, f, &azblob.UploadFileOptions{
		Metadata: map[string]*string{"sha256": to.Ptr(sha256)},
	})
	return err
}

func (c *sdkClient) Download(ctx context.Context, container, key string, f *os.File) error {
	_, err := c.client.DownloadFile(ctx, container, key, f, nil)
	return err
}

// Impl implements the Azure Service interface.
type Impl struct {
	factory  ClientFactory
	tempRoot string
	logger   zerolog.Logger
}

// New creates a new Azure Blob service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		factory:  &DefaultClientFactory{},
		tempRoot: os.TempDir(),
		logger:   logger,
	}
}

// NewWithClientFactory creates a new Azure Blob service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory, tempRoot string) *Impl {
	return &Impl{
		factory:  factory,
		tempRoot: tempRoot,
		logger:   logger,
	}
}

// Store uploads the artifact into the container with its SHA-256 as blob
// metadata and returns the blob URL.
func (s *Impl) Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error) {
	client, err := s.client(cfg)
	if err != nil {
		return "", err
	}

	key := cfg.ObjectKey(artifactPath)
	location := Endpoint(cfg, os.Getenv) + cfg.Bucket + "/" + key

	sum, _, err := util.SHA256File(artifactPath)
	if err != nil {
		return "", apperr.Storage(apperr.ReasonUnknown, "cannot checksum artifact for upload", err)
	}

	f, err := os.Open(artifactPath) //nolint:gosec // artifact path is created by the run
	if err != nil {
		return "", apperr.Storage(apperr.ReasonUnknown, "cannot open artifact for upload", err)
	}
	defer func() { _ = f.Close() }()

	s.logger.Info().
		Str("account", cfg.Account).
		Str("container", cfg.Bucket).
		Str("key", key).
		Msg("uploading backup to Azure Blob Storage")
	start := time.Now()

	if err := client.Upload(ctx, cfg.Bucket, key, f, sum); err != nil {
		return "", classify(err, fmt.Sprintf("upload to %s failed", location))
	}

	s.logger.Info().
		Str("destination", location).
		Dur("duration", time.Since(start)).
		Msg("upload completed")

	return location, nil
}

// Retrieve downloads a blob into a fresh scratch directory.
func (s *Impl) Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error) {
	client, err := s.client(cfg)
	if err != nil {
		return nil, err
	}

	key := cfg.ObjectKey(name)

	artifact, err := models.NewArtifact(s.tempRoot, name)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("container", cfg.Bucket).
		Str("key", key).
		Msg("downloading backup from Azure Blob Storage")

	err = util.WriteTo(artifact.Path, func(f *os.File) error {
		return client.Download(ctx, cfg.Bucket, key, f)
	})
	if err != nil {
		_ = artifact.Remove()
		return nil, classify(err, fmt.Sprintf("download of %s/%s failed", cfg.Bucket, key))
	}

	s.logger.Info().Str("local_path", artifact.Path).Msg("download completed")
	return artifact, nil
}

func (s *Impl) client(cfg models.StorageConfig) (Client, error) {
	if err := cfg.Require("bucket", "account"); err != nil {
		return nil, err
	}

	client, err := s.factory.NewClient(cfg)
	if err != nil {
		return nil, apperr.Storage(apperr.ReasonPermissionDenied, "cannot create Azure Blob client; check the credentials", err)
	}
	return client, nil
}

func classify(err error, message string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return apperr.NotFound(message+": blob or container does not exist", err)
	case bloberror.HasCode(err,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.AuthenticationFailed,
		bloberror.InsufficientAccountPermissions):
		return apperr.Storage(apperr.ReasonPermissionDenied, message+": access denied; check the credentials", err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return apperr.NotFound(message+": not found", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.Storage(apperr.ReasonPermissionDenied, message+": access denied", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Storage(apperr.ReasonConnection, message+": cannot reach Azure Blob Storage", err)
	}
	return apperr.Storage(apperr.ReasonUnknown, message, err)
}
