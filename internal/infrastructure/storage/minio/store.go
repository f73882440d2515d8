// Package minio stores corpus shards in object storage.  A shard is one
// NDJSON file of samples; workers pull raw shards, run the pipeline and push
// the labeled shard back under a new prefix.
package minio

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/config"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

const ndjsonContentType = "application/x-ndjson"

var (
	ErrShardNotFound = errors.New(errors.ErrCodeNotFound, "shard not found")
	ErrInvalidKey    = errors.New(errors.ErrCodeInvalidInput, "invalid shard key")
)

// objectAPI is the slice of the MinIO client the store needs.  GetObject
// returns an io.ReadCloser instead of *minio.Object so tests can fake it.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// minioAPI adapts *minio.Client to objectAPI.
type minioAPI struct {
	c *minio.Client
}

func (a minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return a.c.BucketExists(ctx, bucket)
}

func (a minioAPI) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return a.c.MakeBucket(ctx, bucket, opts)
}

func (a minioAPI) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.c.PutObject(ctx, bucket, key, r, size, opts)
}

func (a minioAPI) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return a.c.GetObject(ctx, bucket, key, opts)
}

func (a minioAPI) StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return a.c.StatObject(ctx, bucket, key, opts)
}

func (a minioAPI) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	return a.c.RemoveObject(ctx, bucket, key, opts)
}

func (a minioAPI) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return a.c.ListObjects(ctx, bucket, opts)
}

// ShardInfo describes one stored shard.
type ShardInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ShardStore reads and writes corpus shards in one bucket.
type ShardStore struct {
	api    objectAPI
	bucket string
	logger logging.Logger
}

// NewShardStore connects to MinIO and makes sure the bucket exists.
func NewShardStore(cfg config.MinIOConfig, log logging.Logger) (*ShardStore, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeObjectStorage, "minio client setup failed")
	}

	store := &ShardStore{
		api:    minioAPI{c: client},
		bucket: cfg.Bucket,
		logger: log.Named("shardstore"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("shard store connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket))
	return store, nil
}

// NewShardStoreWithAPI injects an object API; tests use it with a fake.
func NewShardStoreWithAPI(api objectAPI, bucket string, log logging.Logger) *ShardStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ShardStore{api: api, bucket: bucket, logger: log.Named("shardstore")}
}

func (s *ShardStore) ensureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeObjectStorage, "bucket check failed")
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeObjectStorage, "bucket create failed")
	}
	s.logger.Info("created bucket", logging.String("bucket", s.bucket))
	return nil
}

// Upload stores one shard.  size may be -1 for streaming uploads of unknown
// length.
func (s *ShardStore) Upload(ctx context.Context, key string, r io.Reader, size int64) (*ShardInfo, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidKey
	}

	info, err := s.api.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: ndjsonContentType,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeObjectStorage, "shard upload failed")
	}

	s.logger.Debug("shard uploaded",
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return &ShardInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: time.Now(),
	}, nil
}

// Open returns a reader over the shard's NDJSON body.  The caller closes it.
func (s *ShardStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidKey
	}

	// GetObject is lazy, so stat first to surface a missing key now.
	if _, err := s.stat(ctx, key); err != nil {
		return nil, err
	}
	rc, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeObjectStorage, "shard open failed")
	}
	return rc, nil
}

// Stat returns the shard's metadata.
func (s *ShardStore) Stat(ctx context.Context, key string) (*ShardInfo, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidKey
	}
	return s.stat(ctx, key)
}

func (s *ShardStore) stat(ctx context.Context, key string) (*ShardInfo, error) {
	info, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, ErrShardNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeObjectStorage, "shard stat failed")
	}
	return &ShardInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// Exists reports whether the shard is present.
func (s *ShardStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Stat(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrShardNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes a shard.  Deleting a missing shard is not an error.
func (s *ShardStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeObjectStorage, "shard delete failed")
	}
	return nil
}

// List returns the shards under the prefix, sorted by key.
func (s *ShardStore) List(ctx context.Context, prefix string) ([]ShardInfo, error) {
	objects := s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var shards []ShardInfo
	for obj := range objects {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeObjectStorage, "shard list failed")
		}
		shards = append(shards, ShardInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Key < shards[j].Key })
	return shards, nil
}
