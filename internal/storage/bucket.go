package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// placeholders are the template values shipped in .env.example.
var placeholders = map[string]string{
	"B2_APPLICATION_KEY_ID": "your_b2_key_id_here",
	"B2_APPLICATION_KEY":    "your_b2_application_key_here",
	"B2_BUCKET_ID":          "your_bucket_id_here",
	"B2_BUCKET_NAME":        "your_bucket_name_here",
}

// BucketConfig configures a Bucket.
type BucketConfig struct {
	KeyID      string
	Key        string
	BucketID   string
	BucketName string
	Endpoint   string
	UseSSL     bool
	// DownloadURL overrides the direct download base; defaults to the endpoint URL.
	DownloadURL string
	// Prefix namespaces every object, e.g. "products".
	Prefix  string
	URLMode URLMode
	// ProxyBase is the public base URL of this service. Empty yields app-relative proxy paths.
	ProxyBase string
}

func (c BucketConfig) validate() error {
	for env, v := range map[string]string{
		"B2_APPLICATION_KEY_ID": c.KeyID,
		"B2_APPLICATION_KEY":    c.Key,
		"B2_BUCKET_ID":          c.BucketID,
		"B2_BUCKET_NAME":        c.BucketName,
	} {
		if v == "" || v == placeholders[env] {
			return fmt.Errorf("%w: %s is not set", ErrConfiguration, env)
		}
	}
	return nil
}

// Bucket is the process-wide client for the image bucket. It authorizes lazily on first use
// and keeps the resulting Session until the process exits.
type Bucket struct {
	cfg   BucketConfig
	dial  func(BucketConfig) (objectAPI, error)
	group singleflight.Group

	mu      sync.RWMutex
	api     objectAPI
	session Session
}

// NewBucket creates a Bucket. No network call is made until the first operation.
func NewBucket(cfg BucketConfig) *Bucket {
	return newBucket(cfg, dialMinio)
}

func newBucket(cfg BucketConfig, dial func(BucketConfig) (objectAPI, error)) *Bucket {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	cfg.ProxyBase = strings.TrimRight(cfg.ProxyBase, "/")
	if cfg.URLMode == "" {
		cfg.URLMode = ModeProxy
	}
	return &Bucket{cfg: cfg, dial: dial}
}

// Authorize performs the handshake once and caches the session. Concurrent callers during
// the first handshake share its result.
func (b *Bucket) Authorize(ctx context.Context) (Session, error) {
	if s, ok := b.current(); ok {
		return s, nil
	}

	v, err, _ := b.group.Do("authorize", func() (interface{}, error) {
		if s, ok := b.current(); ok {
			return s, nil
		}
		// The handshake result is shared, so it must not die with the first caller's request.
		return b.handshake(context.WithoutCancel(ctx))
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

func (b *Bucket) current() (Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session, b.session.Authorized
}

func (b *Bucket) client() objectAPI {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.api
}

func (b *Bucket) handshake(ctx context.Context) (Session, error) {
	logger := log.Ctx(ctx).With().Str("component", "storage").Logger()

	if err := b.cfg.validate(); err != nil {
		logger.Error().Err(err).Msg("bucket credentials missing")
		return Session{}, err
	}

	api, err := b.dial(b.cfg)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	exists, err := api.bucketExists(ctx)
	if err != nil {
		logger.Error().Err(err).Str("bucket", b.cfg.BucketName).Msg("bucket authorization rejected")
		return Session{}, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if !exists {
		return Session{}, fmt.Errorf("%w: bucket %q does not exist", ErrConfiguration, b.cfg.BucketName)
	}

	base := b.cfg.DownloadURL
	if base == "" {
		base = api.endpoint()
	}
	s := Session{
		Authorized:   true,
		BucketName:   b.cfg.BucketName,
		BucketID:     b.cfg.BucketID,
		DownloadBase: strings.TrimRight(base, "/"),
	}

	b.mu.Lock()
	b.api = api
	b.session = s
	b.mu.Unlock()

	logger.Info().Str("bucket", s.BucketName).Str("download_base", s.DownloadBase).Msg("bucket authorized")
	return s, nil
}

// Upload stores r under the bucket prefix and returns where it can be fetched.
func (b *Bucket) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (Location, error) {
	s, err := b.Authorize(ctx)
	if err != nil {
		return Location{}, err
	}

	path := b.objectPath(name)
	if err := b.client().put(ctx, path, r, size, contentType); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "storage").Str("object", path).Msg("upload failed")
		return Location{}, fmt.Errorf("%w: put %q: %w", ErrUpload, path, err)
	}

	loc := Location{Key: name, Mode: b.cfg.URLMode}
	switch b.cfg.URLMode {
	case ModeDirect:
		if s.DownloadBase == "" {
			return Location{}, fmt.Errorf("%w: no download base for %q", ErrUpload, path)
		}
		loc.URL = s.DownloadBase + "/" + url.PathEscape(s.BucketName) + "/" + escapePath(path)
	default:
		loc.URL = b.ProxyURL(name)
	}

	log.Ctx(ctx).Info().Str("component", "storage").Str("object", path).Int64("size", size).Str("url", loc.URL).Msg("object uploaded")
	return loc, nil
}

// Download opens the named object for streaming.
func (b *Bucket) Download(ctx context.Context, name string) (*Object, error) {
	if _, err := b.Authorize(ctx); err != nil {
		return nil, err
	}

	path := b.objectPath(name)
	obj, err := b.client().get(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: get %q: %w", ErrDownload, path, err)
	}
	return obj, nil
}

// Delete removes the newest version of the named object. A missing object is not an error.
func (b *Bucket) Delete(ctx context.Context, name string) error {
	if _, err := b.Authorize(ctx); err != nil {
		return err
	}

	path := b.objectPath(name)
	logger := log.Ctx(ctx).With().Str("component", "storage").Str("object", path).Logger()
	api := b.client()

	info, found, err := api.firstVersion(ctx, path)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("list versions of %q: %w", path, err)
	}
	if !found {
		logger.Warn().Msg("object not found for deletion")
		return nil
	}

	if err := api.remove(ctx, path, info.VersionID); err != nil {
		if isNotFound(err) {
			logger.Warn().Msg("object vanished before deletion")
			return nil
		}
		return fmt.Errorf("delete %q: %w", path, err)
	}

	logger.Info().Str("version", info.VersionID).Msg("object deleted")
	return nil
}

// ProxyPath returns the app-relative path serving the named object.
func (b *Bucket) ProxyPath(name string) string {
	return ProxyRoute + url.PathEscape(name)
}

// ProxyURL returns ProxyPath rooted at the configured public base URL.
func (b *Bucket) ProxyURL(name string) string {
	return b.cfg.ProxyBase + b.ProxyPath(name)
}

func (b *Bucket) objectPath(name string) string {
	if b.cfg.Prefix == "" {
		return name
	}
	return b.cfg.Prefix + "/" + name
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NoSuchVersion"
	}
	return false
}
