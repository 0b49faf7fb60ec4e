package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
)

type mockClient struct {
	objects      map[string][]byte
	uploadErr    error
	downloadErr  error
	closed       bool
	lastUploaded string
}

func newMockClient() *mockClient {
	return &mockClient{objects: map[string][]byte{}}
}

func (m *mockClient) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = data
	m.lastUploaded = bucket + "/" + key
	return nil
}

func (m *mockClient) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	if m.downloadErr != nil {
		return m.downloadErr
	}
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ErrObjectNotExist
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

type mockFactory struct {
	client  *mockClient
	err     error
	lastCfg models.StorageConfig
}

func (f *mockFactory) NewClient(ctx context.Context, cfg models.StorageConfig) (Client, error) {
	f.lastCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func newTestService(t *testing.T, factory ClientFactory) *Impl {
	t.Helper()
	return NewWithClientFactory(zerolog.New(io.Discard), factory, t.TempDir())
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop_20250101-120000.sql")
	require.NoError(t, os.WriteFile(path, []byte("-- dump"), 0o600))
	return path
}

func TestStore_Success(t *testing.T) {
	client := newMockClient()
	svc := newTestService(t, &mockFactory{client: client})

	location, err := svc.Store(context.Background(), writeArtifact(t), models.StorageConfig{
		Type:   "gcs",
		Bucket: "backups",
		Path:   "/nightly/",
	})

	require.NoError(t, err)
	assert.Equal(t, "gs://backups/nightly/shop_20250101-120000.sql", location)
	assert.Equal(t, []byte("-- dump"), client.objects["backups/nightly/shop_20250101-120000.sql"])
	assert.True(t, client.closed)
}

func TestStore_MissingBucket(t *testing.T) {
	factory := &mockFactory{client: newMockClient()}
	svc := newTestService(t, factory)

	_, err := svc.Store(context.Background(), writeArtifact(t), models.StorageConfig{Type: "gcs"})

	require.Error(t, err)
	assert.True(t, apperr.HasReason(err, apperr.ReasonMissingField))
	assert.Empty(t, factory.lastCfg.Type)
}

func TestStore_UnreadableCredentials(t *testing.T) {
	svc := newTestService(t, &mockFactory{client: newMockClient()})

	_, err := svc.Store(context.Background(), writeArtifact(t), models.StorageConfig{
		Type:        "gcs",
		Bucket:      "backups",
		Credentials: filepath.Join(t.TempDir(), "missing.json"),
	})

	require.Error(t, err)
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidFile))
}

func TestStore_PermissionDenied(t *testing.T) {
	client := newMockClient()
	client.uploadErr = &googleapi.Error{Code: 403, Message: "forbidden"}
	svc := newTestService(t, &mockFactory{client: client})

	_, err := svc.Store(context.Background(), writeArtifact(t), models.StorageConfig{Type: "gcs", Bucket: "backups"})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStorage))
	assert.True(t, apperr.HasReason(err, apperr.ReasonPermissionDenied))
}

func TestRetrieve_Success(t *testing.T) {
	client := newMockClient()
	client.objects["backups/nightly/shop.sql"] = []byte("restored")
	svc := newTestService(t, &mockFactory{client: client})

	artifact, err := svc.Retrieve(context.Background(), "shop.sql", models.StorageConfig{
		Type:   "gcs",
		Bucket: "backups",
		Path:   "nightly",
	})

	require.NoError(t, err)
	defer func() { _ = artifact.Remove() }()
	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "restored", string(data))
	assert.Equal(t, "shop.sql", artifact.Name())
}

func TestRetrieve_NotFoundLeavesNoScratch(t *testing.T) {
	tempRoot := t.TempDir()
	svc := NewWithClientFactory(zerolog.New(io.Discard), &mockFactory{client: newMockClient()}, tempRoot)

	_, err := svc.Retrieve(context.Background(), "missing.sql", models.StorageConfig{Type: "gcs", Bucket: "backups"})

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
		{"bucket missing", storage.ErrBucketNotExist, apperr.ReasonNotFound},
		{"api 404", &googleapi.Error{Code: 404}, apperr.ReasonNotFound},
		{"api 401", &googleapi.Error{Code: 401}, apperr.ReasonPermissionDenied},
		{"timeout", context.DeadlineExceeded, apperr.ReasonConnection},
		{"other", errors.New("boom"), apperr.ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, apperr.HasReason(classify(tt.err, "op"), tt.expected))
		})
	}
}
