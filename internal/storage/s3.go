package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"melodia/internal/domain"
)

// S3Config holds the parameters for the S3/MinIO-compatible backend.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// CacheDir is where objects are staged locally so metadata parsing and
	// ffprobe (which need a real file path) can read them; entries are keyed
	// by object key and never evicted by this package — callers that care
	// about cache size run their own reaper.
	CacheDir string
}

// S3 is the object-store backend: MediaPath.Protocol "s3", Path the object
// key within Bucket.
type S3 struct {
	client *minio.Client
	bucket string
	cache  string
}

// NewS3 initializes a MinIO/S3 client and ensures the bucket exists.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio.New: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
		}
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	return &S3{client: client, bucket: cfg.Bucket, cache: cfg.CacheDir}, nil
}

func (s *S3) Walk(ctx context.Context, root domain.MediaPath, visit func(domain.FileMeta) error) error {
	prefix := strings.TrimPrefix(root.Path, "/")
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			continue // skip unreadable listing entries, keep walking
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		meta := domain.FileMeta{
			Path:    domain.MediaPath{Protocol: "s3", Path: obj.Key},
			DirPath: domain.MediaPath{Protocol: "s3", Path: filepath.Dir(obj.Key)},
			Size:    obj.Size,
			Suffix:  suffixOf(obj.Key),
			Mtime:   obj.LastModified.UTC(),
			Atime:   obj.LastModified.UTC(),
			Ctime:   obj.LastModified.UTC(),
		}
		if err := visit(meta); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// LocalPath downloads the object to the cache directory on first access and
// returns the cached path; subsequent calls reuse the cached copy if present.
func (s *S3) LocalPath(path domain.MediaPath) (string, error) {
	if path.Protocol != "s3" {
		return "", fmt.Errorf("s3 backend cannot resolve protocol %q", path.Protocol)
	}
	cached := filepath.Join(s.cache, flattenKey(path.Path))
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}

	ctx := context.Background()
	obj, err := s.client.GetObject(ctx, s.bucket, path.Path, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get object %q: %w", path.Path, err)
	}
	defer obj.Close()

	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(cached)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, obj); err != nil {
		os.Remove(cached)
		return "", fmt.Errorf("cache object %q: %w", path.Path, err)
	}
	return cached, nil
}

func (s *S3) Exists(ctx context.Context, path domain.MediaPath) bool {
	_, err := s.client.StatObject(ctx, s.bucket, path.Path, minio.StatObjectOptions{})
	return err == nil
}

func flattenKey(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}
