package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/storefront/service/internal/storage"
)

type mockStore struct {
	authorizeFunc func(ctx context.Context) (storage.Session, error)
	downloadFunc  func(ctx context.Context, name string) (*storage.Object, error)
}

func (m *mockStore) Authorize(ctx context.Context) (storage.Session, error) {
	return m.authorizeFunc(ctx)
}

func (m *mockStore) Download(ctx context.Context, name string) (*storage.Object, error) {
	return m.downloadFunc(ctx, name)
}

// failingReader returns some bytes then an error.
type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.sent {
		return 0, errors.New("connection reset")
	}
	f.sent = true
	return copy(p, "partial"), nil
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/images/{filename}", h.Serve)
	r.Get("/test-b2", h.CheckBucket)
	return r
}

func TestServe(t *testing.T) {
	tests := []struct {
		name           string
		download       func(ctx context.Context, name string) (*storage.Object, error)
		expectedStatus int
		expectedType   string
		expectedLength string
		expectedBody   string
	}{
		{
			name: "streams object",
			download: func(_ context.Context, name string) (*storage.Object, error) {
				return &storage.Object{Body: io.NopCloser(strings.NewReader("png-" + name)), ContentType: "image/png", Size: int64(len("png-" + name))}, nil
			},
			expectedStatus: http.StatusOK,
			expectedType:   "image/png",
			expectedLength: "14",
			expectedBody:   "png-1-lamp.png",
		},
		{
			name: "unknown content type and size",
			download: func(context.Context, string) (*storage.Object, error) {
				return &storage.Object{Body: io.NopCloser(strings.NewReader("raw")), Size: -1}, nil
			},
			expectedStatus: http.StatusOK,
			expectedType:   "application/octet-stream",
			expectedBody:   "raw",
		},
		{
			name: "missing object",
			download: func(context.Context, string) (*storage.Object, error) {
				return nil, fmt.Errorf("%w: products/1-lamp.png", storage.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedType:   "application/json",
			expectedBody:   `"image not found"`,
		},
		{
			name: "upstream failure",
			download: func(context.Context, string) (*storage.Object, error) {
				return nil, fmt.Errorf("%w: timeout", storage.ErrDownload)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedType:   "application/json",
			expectedBody:   `"failed to serve image"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockStore{downloadFunc: tt.download})

			rec := httptest.NewRecorder()
			newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/1-lamp.png", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			if tt.expectedLength != "" {
				assert.Equal(t, tt.expectedLength, rec.Header().Get("Content-Length"))
			}
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestServeDecodesEscapedNames(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		expectedStatus int
		expectedObject string
	}{
		{name: "comma and space", target: "/api/images/1-desk%2C%20lamp.png", expectedStatus: http.StatusOK, expectedObject: "1-desk, lamp.png"},
		{name: "semicolon", target: "/api/images/1-a%3Bb.png", expectedStatus: http.StatusOK, expectedObject: "1-a;b.png"},
		{name: "space only", target: "/api/images/1-desk%20lamp.png", expectedStatus: http.StatusOK, expectedObject: "1-desk lamp.png"},
		{name: "literal percent", target: "/api/images/50%25off.png", expectedStatus: http.StatusOK, expectedObject: "50%off.png"},
		{name: "encoded slash", target: "/api/images/a%2Fb.png", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requested string
			h := NewHandler(&mockStore{downloadFunc: func(_ context.Context, name string) (*storage.Object, error) {
				requested = name
				return &storage.Object{Body: io.NopCloser(strings.NewReader("img")), ContentType: "image/png", Size: 3}, nil
			}})

			rec := httptest.NewRecorder()
			newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedObject, requested)
		})
	}
}

func TestServeStreamErrorKeepsStatus(t *testing.T) {
	h := NewHandler(&mockStore{downloadFunc: func(context.Context, string) (*storage.Object, error) {
		return &storage.Object{Body: io.NopCloser(&failingReader{}), ContentType: "image/jpeg", Size: -1}, nil
	}})

	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/a.jpg", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
}

func TestCheckBucket(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "authorized", expectedStatus: http.StatusOK},
		{name: "missing credentials", err: fmt.Errorf("%w: B2_APPLICATION_KEY is not set", storage.ErrConfiguration), expectedStatus: http.StatusInternalServerError},
		{name: "rejected handshake", err: fmt.Errorf("%w: AccessDenied", storage.ErrAuth), expectedStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockStore{authorizeFunc: func(context.Context) (storage.Session, error) {
				if tt.err != nil {
					return storage.Session{}, tt.err
				}
				return storage.Session{Authorized: true, BucketName: "shop-images"}, nil
			}})

			rec := httptest.NewRecorder()
			newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-b2", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.err == nil {
				assert.Contains(t, rec.Body.String(), `"bucketName":"shop-images"`)
			}
		})
	}
}
