package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
)

type mockClient struct {
	uploadFunc   func(ctx context.Context, bucket, key string, r io.Reader) error
	downloadFunc func(ctx context.Context, bucket, key string, w io.WriterAt) error
}

func (m *mockClient) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, bucket, key, r)
	}
	return nil
}

func (m *mockClient) Download(ctx context.Context, bucket, key string, w io.WriterAt) error {
	if m.downloadFunc != nil {
		return m.downloadFunc(ctx, bucket, key, w)
	}
	return nil
}

type mockFactory struct {
	client Client
	calls  int
}

func (f *mockFactory) NewClient(cfg models.StorageConfig) (Client, error) {
	f.calls++
	return f.client, nil
}

func testConfig() models.StorageConfig {
	return models.StorageConfig{Type: "s3", Bucket: "backups", Region: "eu-central-1", Path: "db"}
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop_20250101-120000.sql")
	require.NoError(t, os.WriteFile(path, []byte("-- dump"), 0o600))
	return path
}

func TestStore_Success(t *testing.T) {
	var gotBucket, gotKey, gotBody string
	client := &mockClient{
		uploadFunc: func(ctx context.Context, bucket, key string, r io.Reader) error {
			data, err := io.ReadAll(r)
			gotBucket, gotKey, gotBody = bucket, key, string(data)
			return err
		},
	}
	svc := NewWithClientFactory(zerolog.New(io.Discard), &mockFactory{client: client}, t.TempDir())

	location, err := svc.Store(context.Background(), writeArtifact(t), testConfig())

	require.NoError(t, err)
	assert.Equal(t, "s3://backups/db/shop_20250101-120000.sql", location)
	assert.Equal(t, "backups", gotBucket)
	assert.Equal(t, "db/shop_20250101-120000.sql", gotKey)
	assert.Equal(t, "-- dump", gotBody)
}

func TestStore_MissingRegionAndBucket(t *testing.T) {
	factory := &mockFactory{client: &mockClient{}}
	svc := NewWithClientFactory(zerolog.New(io.Discard), factory, t.TempDir())

	_, err := svc.Store(context.Background(), writeArtifact(t), models.StorageConfig{Type: "s3"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket")
	assert.Contains(t, err.Error(), "storage.region")
	assert.Zero(t, factory.calls)
}

func TestStore_AccessDenied(t *testing.T) {
	client := &mockClient{
		uploadFunc: func(ctx context.Context, bucket, key string, r io.Reader) error {
			return awserr.New("AccessDenied", "Access Denied", nil)
		},
	}
	svc := NewWithClientFactory(zerolog.New(io.Discard), &mockFactory{client: client}, t.TempDir())

	_, err := svc.Store(context.Background(), writeArtifact(t), testConfig())

	require.Error(t, err)
	assert.True(t, apperr.HasReason(err, apperr.ReasonPermissionDenied))
}

func TestRetrieve_Success(t *testing.T) {
	client := &mockClient{
		downloadFunc: func(ctx context.Context, bucket, key string, w io.WriterAt) error {
			assert.Equal(t, "db/shop.sql", key)
			_, err := w.WriteAt([]byte("restored"), 0)
			return err
		},
	}
	svc := NewWithClientFactory(zerolog.New(io.Discard), &mockFactory{client: client}, t.TempDir())

	artifact, err := svc.Retrieve(context.Background(), "shop.sql", testConfig())

	require.NoError(t, err)
	defer func() { _ = artifact.Remove() }()
	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "restored", string(data))
}

func TestRetrieve_NoSuchKey(t *testing.T) {
	client := &mockClient{
		downloadFunc: func(ctx context.Context, bucket, key string, w io.WriterAt) error {
			return awserr.New(awss3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
		},
	}
	tempRoot := t.TempDir()
	svc := NewWithClientFactory(zerolog.New(io.Discard), &mockFactory{client: client}, tempRoot)

	_, err := svc.Retrieve(context.Background(), "gone.sql", testConfig())

	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	entries, _ := os.ReadDir(tempRoot)
	assert.Empty(t, entries)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected apperr.Reason
	}{
		{"no bucket", awserr.New(awss3.ErrCodeNoSuchBucket, "", nil), apperr.ReasonNotFound},
		{"bad key id", awserr.New("InvalidAccessKeyId", "", nil), apperr.ReasonPermissionDenied},
		{"request error", awserr.New("RequestError", "send request failed", nil), apperr.ReasonConnection},
		{"status 404", awserr.NewRequestFailure(awserr.New("Unknown", "", nil), 404, "req"), apperr.ReasonNotFound},
		{"other", errors.New("boom"), apperr.ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, apperr.HasReason(classify(tt.err, "op"), tt.expected))
		})
	}
}

func TestEndpointFor(t *testing.T) {
	t.Setenv(EndpointEnv, "http://minio:9000")

	assert.Equal(t, "http://minio:9000", endpointFor(models.StorageConfig{}))
	assert.Equal(t, "http://localhost:4566", endpointFor(models.StorageConfig{Endpoint: "http://localhost:4566"}))
}
