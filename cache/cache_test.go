package cache

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitekit/config"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func object(key string, size int64) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size)}
}

func keyIs(key string) interface{} {
	return mock.MatchedBy(func(in *s3.PutObjectInput) bool { return aws.ToString(in.Key) == key })
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Images.CacheDir = t.TempDir()

	store, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, None{}, store)

	cfg.Cache.Backend = config.CacheRsync
	cfg.Cache.Rsync.Target = "/var/cache/site"
	store, err = New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &RsyncStore{}, store)

	cfg.Cache.Backend = "ftp"
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestS3StoreSave(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "articles", "foo", "a-640.avif"), "new")
	writeFile(t, filepath.Join(dir, "articles", "foo", "b-640.avif"), "same")
	writeFile(t, filepath.Join(dir, "articles", "foo", ".tmp-123"), "partial")

	client := new(mockS3)
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Bucket) == "site-cache" && aws.ToString(in.Prefix) == "images/"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{object("images/articles/foo/b-640.avif", 4)},
	}, nil)
	client.On("PutObject", mock.Anything, keyIs("images/articles/foo/a-640.avif")).Return(&s3.PutObjectOutput{}, nil)

	store := NewS3StoreWithClient(client, dir, config.S3Config{Bucket: "site-cache", Prefix: "/images/"}, zap.NewNop())
	require.NoError(t, store.Save(context.Background()))

	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "PutObject", 1)
}

func TestS3StoreSaveMissingDir(t *testing.T) {
	client := new(mockS3)
	store := NewS3StoreWithClient(client, filepath.Join(t.TempDir(), "nope"), config.S3Config{Bucket: "b"}, zap.NewNop())

	require.NoError(t, store.Save(context.Background()))
	client.AssertNotCalled(t, "ListObjectsV2", mock.Anything, mock.Anything)
}

func TestS3StoreRestore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "articles", "foo", "have-640.webp"), "local")

	client := new(mockS3)
	client.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			object("articles/foo/have-640.webp", 6),
			object("articles/foo/want-640.webp", 6),
			object("articles/", 0),
		},
	}, nil)
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "articles/foo/want-640.webp"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("remote"))}, nil)

	store := NewS3StoreWithClient(client, dir, config.S3Config{Bucket: "b"}, zap.NewNop())
	require.NoError(t, store.Restore(context.Background()))

	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "GetObject", 1)

	data, err := os.ReadFile(filepath.Join(dir, "articles", "foo", "want-640.webp"))
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "articles", "foo", "have-640.webp"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}

func TestS3StoreRestoreListError(t *testing.T) {
	client := new(mockS3)
	client.On("ListObjectsV2", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	store := NewS3StoreWithClient(client, t.TempDir(), config.S3Config{Bucket: "b"}, zap.NewNop())
	err := store.Restore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

type recorder struct {
	calls [][]string
	err   error
}

func (r *recorder) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return []byte("output"), r.err
}

func TestRsyncStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	target := filepath.Join(t.TempDir(), "persist")
	writeFile(t, filepath.Join(dir, "a.png"), "x")

	rec := &recorder{}
	store := NewRsyncStore(dir, config.RsyncConfig{Target: target + "/"}, zap.NewNop())
	store.run = rec.run

	require.NoError(t, store.Save(context.Background()))
	require.NoError(t, store.Restore(context.Background()))

	require.Len(t, rec.calls, 2)
	assert.Equal(t, []string{"rsync", "-a", "--delete", dir + "/", target + "/"}, rec.calls[0])
	assert.Equal(t, []string{"rsync", "-a", "--delete", target + "/", dir + "/"}, rec.calls[1])
}

func TestRsyncStoreRestoreWithoutTarget(t *testing.T) {
	rec := &recorder{}
	store := NewRsyncStore(t.TempDir(), config.RsyncConfig{Target: filepath.Join(t.TempDir(), "missing")}, zap.NewNop())
	store.run = rec.run

	require.NoError(t, store.Restore(context.Background()))
	assert.Empty(t, rec.calls)
}

func TestRsyncStoreRemote(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	store := NewRsyncStore(dir, config.RsyncConfig{Target: "deploy@example.com:/srv/cache", SSHKey: "/keys/id"}, zap.NewNop())
	store.run = rec.run

	require.NoError(t, store.Restore(context.Background()))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{"rsync", "-a", "--delete", "-e", "ssh -i /keys/id", "deploy@example.com:/srv/cache/", dir + "/"}, rec.calls[0])
}

func TestRsyncStoreFailure(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{err: errors.New("exit status 23")}
	store := NewRsyncStore(dir, config.RsyncConfig{Target: filepath.Join(t.TempDir(), "persist")}, zap.NewNop())
	store.run = rec.run

	err := store.Save(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 23")
	assert.Contains(t, err.Error(), "output")
}
