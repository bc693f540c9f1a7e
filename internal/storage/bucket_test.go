package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory objectAPI.
type fakeAPI struct {
	mu         sync.Mutex
	objects    map[string]fakeObject
	exists     bool
	existsErr  error
	putErr     error
	getErr     error
	removeErr  error
	handshakes atomic.Int32
	delay      time.Duration
}

type fakeObject struct {
	data        []byte
	contentType string
	version     string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: make(map[string]fakeObject), exists: true}
}

func (f *fakeAPI) bucketExists(context.Context) (bool, error) {
	f.handshakes.Add(1)
	time.Sleep(f.delay)
	return f.exists, f.existsErr
}

func (f *fakeAPI) endpoint() string { return "https://s3.us-west-004.backblazeb2.com" }

func (f *fakeAPI) put(_ context.Context, path string, r io.Reader, _ int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = fakeObject{data: data, contentType: contentType, version: "v-" + path}
	return nil
}

func (f *fakeAPI) get(_ context.Context, path string) (*Object, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[path]
	if !ok {
		return nil, minio.ErrorResponse{StatusCode: http.StatusNotFound, Code: "NoSuchKey"}
	}
	return &Object{Body: io.NopCloser(bytes.NewReader(obj.data)), ContentType: obj.contentType, Size: int64(len(obj.data))}, nil
}

func (f *fakeAPI) firstVersion(_ context.Context, path string) (minio.ObjectInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[path]
	if !ok {
		return minio.ObjectInfo{}, false, nil
	}
	return minio.ObjectInfo{Key: path, VersionID: obj.version}, true, nil
}

func (f *fakeAPI) remove(_ context.Context, path, versionID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if obj, ok := f.objects[path]; ok && obj.version == versionID {
		delete(f.objects, path)
	}
	return nil
}

func testConfig() BucketConfig {
	return BucketConfig{
		KeyID:      "key-id",
		Key:        "secret",
		BucketID:   "bucket-id",
		BucketName: "shop-images",
		Prefix:     "products",
	}
}

func newTestBucket(cfg BucketConfig, api *fakeAPI) *Bucket {
	return newBucket(cfg, func(BucketConfig) (objectAPI, error) { return api, nil })
}

func TestAuthorizeIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	b := newTestBucket(testConfig(), api)

	s1, err := b.Authorize(context.Background())
	require.NoError(t, err)
	s2, err := b.Authorize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.True(t, s1.Authorized)
	assert.Equal(t, "https://s3.us-west-004.backblazeb2.com", s1.DownloadBase)
	assert.EqualValues(t, 1, api.handshakes.Load())
}

func TestAuthorizeConcurrentCallersShareHandshake(t *testing.T) {
	api := newFakeAPI()
	api.delay = 50 * time.Millisecond
	b := newTestBucket(testConfig(), api)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Authorize(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, api.handshakes.Load())
}

func TestAuthorizeRejectsPlaceholderCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.KeyID = "your_b2_key_id_here"
	api := newFakeAPI()
	b := newTestBucket(cfg, api)

	_, err := b.Authorize(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.EqualValues(t, 0, api.handshakes.Load())

	cfg = testConfig()
	cfg.BucketName = ""
	_, err = newTestBucket(cfg, api).Authorize(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAuthorizeHandshakeRejected(t *testing.T) {
	api := newFakeAPI()
	api.existsErr = minio.ErrorResponse{StatusCode: http.StatusForbidden, Code: "AccessDenied"}
	b := newTestBucket(testConfig(), api)

	_, err := b.Authorize(context.Background())
	assert.ErrorIs(t, err, ErrAuth)

	// A failed handshake is not cached.
	api.existsErr = nil
	s, err := b.Authorize(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Authorized)
}

func TestAuthorizeMissingBucket(t *testing.T) {
	api := newFakeAPI()
	api.exists = false

	_, err := newTestBucket(testConfig(), api).Authorize(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestUploadProxyMode(t *testing.T) {
	api := newFakeAPI()
	cfg := testConfig()
	cfg.ProxyBase = "https://api.example.com/"
	b := newTestBucket(cfg, api)

	loc, err := b.Upload(context.Background(), "1700000000000-lamp.png", bytes.NewReader([]byte("png")), 3, "image/png")
	require.NoError(t, err)

	assert.Equal(t, ModeProxy, loc.Mode)
	assert.Equal(t, "1700000000000-lamp.png", loc.Key)
	assert.Equal(t, "https://api.example.com/api/images/1700000000000-lamp.png", loc.URL)
	assert.Contains(t, api.objects, "products/1700000000000-lamp.png")
}

func TestUploadRelativeProxyPath(t *testing.T) {
	b := newTestBucket(testConfig(), newFakeAPI())

	loc, err := b.Upload(context.Background(), "1-desk lamp.png", bytes.NewReader([]byte("png")), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/api/images/1-desk%20lamp.png", loc.URL)
}

func TestUploadDirectMode(t *testing.T) {
	cfg := testConfig()
	cfg.URLMode = ModeDirect
	cfg.DownloadURL = "https://f004.backblazeb2.com/file/"
	b := newTestBucket(cfg, newFakeAPI())

	loc, err := b.Upload(context.Background(), "1-lamp.png", bytes.NewReader([]byte("png")), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, loc.Mode)
	assert.Equal(t, "https://f004.backblazeb2.com/file/shop-images/products/1-lamp.png", loc.URL)
}

func TestUploadRejected(t *testing.T) {
	api := newFakeAPI()
	api.putErr = errors.New("connection reset")
	b := newTestBucket(testConfig(), api)

	loc, err := b.Upload(context.Background(), "1-lamp.png", bytes.NewReader(nil), 0, "image/png")
	assert.ErrorIs(t, err, ErrUpload)
	assert.Empty(t, loc.URL)
}

func TestDownload(t *testing.T) {
	api := newFakeAPI()
	b := newTestBucket(testConfig(), api)
	ctx := context.Background()

	_, err := b.Upload(ctx, "1-lamp.png", bytes.NewReader([]byte("image-bytes")), 11, "image/png")
	require.NoError(t, err)

	obj, err := b.Download(ctx, "1-lamp.png")
	require.NoError(t, err)
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.EqualValues(t, 11, obj.Size)

	_, err = b.Download(ctx, "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)

	api.getErr = errors.New("timeout")
	_, err = b.Download(ctx, "1-lamp.png")
	assert.ErrorIs(t, err, ErrDownload)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsBestEffort(t *testing.T) {
	api := newFakeAPI()
	b := newTestBucket(testConfig(), api)
	ctx := context.Background()

	_, err := b.Upload(ctx, "1-lamp.png", bytes.NewReader([]byte("x")), 1, "image/png")
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, "1-lamp.png"))
	assert.NotContains(t, api.objects, "products/1-lamp.png")

	// Already gone.
	assert.NoError(t, b.Delete(ctx, "1-lamp.png"))
}

func TestDeleteSurfacesServiceErrors(t *testing.T) {
	api := newFakeAPI()
	b := newTestBucket(testConfig(), api)
	ctx := context.Background()

	_, err := b.Upload(ctx, "1-lamp.png", bytes.NewReader([]byte("x")), 1, "image/png")
	require.NoError(t, err)

	api.removeErr = errors.New("service unavailable")
	assert.Error(t, b.Delete(ctx, "1-lamp.png"))

	api.removeErr = minio.ErrorResponse{StatusCode: http.StatusNotFound, Code: "NoSuchVersion"}
	assert.NoError(t, b.Delete(ctx, "1-lamp.png"))
}

func TestParseURLMode(t *testing.T) {
	assert.Equal(t, ModeDirect, ParseURLMode("storage-direct"))
	assert.Equal(t, ModeProxy, ParseURLMode("proxy"))
	assert.Equal(t, ModeProxy, ParseURLMode(""))
}
