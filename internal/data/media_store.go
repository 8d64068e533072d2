package data

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"time"

	"postguard/internal/conf"
	"postguard/internal/pkg/moderator"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MediaStore wraps MinIO/S3 interactions for post media.
type MediaStore struct {
	client *minio.Client
	bucket string
	region string
	urlTTL time.Duration
	log    *log.Helper
}

// NewMediaStore creates a MinIO client and makes sure the media bucket exists.
func NewMediaStore(c *conf.Storage, logger log.Logger) (*MediaStore, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.UseSSL,
		Region: c.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	s := &MediaStore{
		client: client,
		bucket: c.Bucket,
		region: c.Region,
		urlTTL: c.URLTTL.AsDuration(),
		log:    log.NewHelper(logger),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureBucket makes sure the media bucket exists before use.
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
		s.log.Infof("created bucket %s", s.bucket)
	}
	return nil
}

// Put uploads the item content under key.
func (s *MediaStore) Put(ctx context.Context, key string, item *moderator.MediaItem) error {
	size, err := item.ByteSize()
	if err != nil {
		return fmt.Errorf("measure %s: %w", item.Filename, err)
	}
	if err := item.Rewind(); err != nil {
		return err
	}
	contentType := item.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(item.Ext())
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, item.Content, size, opts); err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

// Delete removes objects, reporting the first failure.
func (s *MediaStore) Delete(ctx context.Context, keys ...string) error {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)
	var first error
	for e := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		s.log.Warnf("remove object %s: %v", e.ObjectName, e.Err)
		if first == nil {
			first = fmt.Errorf("remove object %s: %w", e.ObjectName, e.Err)
		}
	}
	return first
}

// URL returns a signed GET URL for key.
func (s *MediaStore) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
