// Package storage wraps the product image bucket.
// The bucket is reached through the S3-compatible API, so the same client works with
// Backblaze B2, MinIO or AWS S3.
package storage

import (
	"errors"
	"io"
)

var (
	// ErrConfiguration is returned when credentials are absent, placeholders, or the bucket does not exist.
	ErrConfiguration = errors.New("storage configuration error")
	// ErrAuth is returned when the storage service rejects the authorization handshake.
	ErrAuth = errors.New("storage authorization failed")
	// ErrUpload is returned when the service rejects an upload.
	ErrUpload = errors.New("storage upload failed")
	// ErrDownload is returned for any download failure other than a missing object.
	ErrDownload = errors.New("storage download failed")
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")
)

// URLMode tells how a stored image is addressed.
type URLMode string

const (
	// ModeDirect addresses the object on the storage service's download host.
	ModeDirect URLMode = "storage-direct"
	// ModeProxy addresses the object through this service's image route.
	ModeProxy URLMode = "proxy"
)

// ParseURLMode maps a configuration value to a URLMode, defaulting to ModeProxy.
func ParseURLMode(s string) URLMode {
	if URLMode(s) == ModeDirect {
		return ModeDirect
	}
	return ModeProxy
}

// ProxyRoute is the path prefix the image proxy is mounted under.
const ProxyRoute = "/api/images/"

// Location describes where an uploaded object can be fetched.
type Location struct {
	Key  string  `json:"key"`
	URL  string  `json:"url"`
	Mode URLMode `json:"mode"`
}

// Object is a downloaded object. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64 // -1 when unknown
}

// Session is the cached result of the authorization handshake.
type Session struct {
	Authorized   bool   `json:"authorized"`
	BucketName   string `json:"bucketName"`
	BucketID     string `json:"bucketId"`
	DownloadBase string `json:"downloadBase"`
}
