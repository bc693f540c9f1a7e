package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectAPI is the slice of the S3 client the Bucket needs. Errors are returned unwrapped
// so the Bucket can classify them.
type objectAPI interface {
	bucketExists(ctx context.Context) (bool, error)
	endpoint() string
	put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	get(ctx context.Context, path string) (*Object, error)
	// firstVersion returns the newest version whose key equals path.
	firstVersion(ctx context.Context, path string) (minio.ObjectInfo, bool, error)
	remove(ctx context.Context, path, versionID string) error
}

// minioAPI implements objectAPI with minio-go against any S3-compatible provider.
// For Backblaze B2 point B2_ENDPOINT at the bucket region, e.g. "s3.us-west-004.backblazeb2.com".
type minioAPI struct {
	client *minio.Client
	bucket string
}

func dialMinio(cfg BucketConfig) (objectAPI, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.KeyID, cfg.Key, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &minioAPI{client: client, bucket: cfg.BucketName}, nil
}

func (m *minioAPI) bucketExists(ctx context.Context) (bool, error) {
	return m.client.BucketExists(ctx, m.bucket)
}

func (m *minioAPI) endpoint() string {
	return m.client.EndpointURL().String()
}

// put streams r to the bucket. size must be the exact byte count
// (pass -1 only if the size is genuinely unknown; minio will buffer it).
func (m *minioAPI) put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *minioAPI) get(ctx context.Context, path string) (*Object, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat performs the request and surfaces NoSuchKey.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, err
	}
	return &Object{Body: obj, ContentType: info.ContentType, Size: info.Size}, nil
}

func (m *minioAPI) firstVersion(ctx context.Context, path string) (minio.ObjectInfo, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for info := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:       path,
		WithVersions: true,
	}) {
		if info.Err != nil {
			return minio.ObjectInfo{}, false, info.Err
		}
		if info.Key == path && !info.IsDeleteMarker {
			return info, true, nil
		}
	}
	return minio.ObjectInfo{}, false, nil
}

func (m *minioAPI) remove(ctx context.Context, path, versionID string) error {
	return m.client.RemoveObject(ctx, m.bucket, path, minio.RemoveObjectOptions{VersionID: versionID})
}
