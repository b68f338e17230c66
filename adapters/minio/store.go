// Package minio stores subscription records as objects in an S3-compatible
// bucket, one object per storage key.
//
// Keys produced by model.Pattern are "directory" paths ("AA/BB/<digest>"), so
// a layered search is one delimiter listing per layer.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/coregx/websub"
	"github.com/coregx/websub/model"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "subscriptions"

var _ websub.SubscriptionStore = (*SubscriptionStore)(nil)

// objectAPI is the part of the S3 API the store needs.
type objectAPI interface {
	put(ctx context.Context, key string, payload []byte) error
	list(ctx context.Context, prefix string) ([]string, error)
	get(ctx context.Context, key string) ([]byte, error)
	exists(ctx context.Context, key string) (bool, error)
	remove(ctx context.Context, key string) error
	removeMany(ctx context.Context, keys []string) error
}

// SubscriptionStore implements websub.SubscriptionStore on a bucket.
type SubscriptionStore struct {
	api    objectAPI
	bucket string
	now    func() time.Time
}

// Config holds the object store connection settings.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
}

// New connects to the object store. An empty bucket selects DefaultBucket.
func New(cfg Config) (*SubscriptionStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, websub.NewErrorWithCause(websub.ErrCodeConfiguration, "failed to create object store client", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	return newStore(&clientAPI{client: client, bucket: bucket}, bucket, time.Now), nil
}

func newStore(api objectAPI, bucket string, now func() time.Time) *SubscriptionStore {
	return &SubscriptionStore{api: api, bucket: bucket, now: now}
}

// Bucket returns the bucket holding the records.
func (s *SubscriptionStore) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *SubscriptionStore) EnsureBucket(ctx context.Context) error {
	api, ok := s.api.(*clientAPI)
	if !ok {
		return nil
	}
	exists, err := api.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to access bucket "+s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := api.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to create bucket "+s.bucket, err)
	}
	return nil
}

// Post implements websub.SubscriptionStore.
func (s *SubscriptionStore) Post(ctx context.Context, url string, target model.Target, expiration time.Duration) error {
	key, err := target.SubscriberKey(url)
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}
	payload, err := model.EncodeSubscription(url, expiration, s.now())
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to encode subscription", err)
	}
	if err := s.api.put(ctx, key, payload); err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to put subscription "+key, err)
	}
	return nil
}

// Search implements websub.SubscriptionStore.
func (s *SubscriptionStore) Search(ctx context.Context, target model.Target, layered bool) ([]model.Subscription, error) {
	prefixes, err := model.SearchPrefixes(target, layered)
	if err != nil {
		return nil, websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}

	now := s.now()
	seen := make(map[string]struct{})
	var result []model.Subscription

	for _, prefix := range prefixes {
		keys, err := s.api.list(ctx, prefix)
		if err != nil {
			return nil, websub.NewErrorWithCause(websub.ErrCodeStore, "failed to list "+prefix, err)
		}
		for _, key := range keys {
			if _, ok := seen[key]; ok || !model.IsDirectChild(prefix, key) {
				continue
			}
			seen[key] = struct{}{}

			payload, err := s.api.get(ctx, key)
			if err != nil {
				return nil, websub.NewErrorWithCause(websub.ErrCodeStore, "failed to get "+key, err)
			}
			result = append(result, model.DecodeSubscription(key, payload, now))
		}
	}
	return result, nil
}

// Delete implements websub.SubscriptionStore.
func (s *SubscriptionStore) Delete(ctx context.Context, url string, target model.Target) (int, error) {
	key, err := target.SubscriberKey(url)
	if err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}

	exists, err := s.api.exists(ctx, key)
	if err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeStore, "failed to stat "+key, err)
	}
	if !exists {
		return 0, nil
	}
	if err := s.api.remove(ctx, key); err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeStore, "failed to remove "+key, err)
	}
	return 1, nil
}

// BulkDelete implements websub.SubscriptionStore.
func (s *SubscriptionStore) BulkDelete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.api.removeMany(ctx, keys); err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to remove subscriptions", err)
	}
	return nil
}

// clientAPI adapts *minio.Client to objectAPI.
type clientAPI struct {
	client *minio.Client
	bucket string
}

func (c *clientAPI) put(ctx context.Context, key string, payload []byte) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// list walks one level under prefix. Sub-directories come back as keys
// ending in "/" and are dropped by the caller.
func (c *clientAPI) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (c *clientAPI) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (c *clientAPI) exists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

func (c *clientAPI) remove(ctx context.Context, key string) error {
	return c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
}

func (c *clientAPI) removeMany(ctx context.Context, keys []string) error {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var failed []string
	var last error
	for rerr := range c.client.RemoveObjects(ctx, c.bucket, objects, minio.RemoveObjectsOptions{}) {
		failed = append(failed, rerr.ObjectName)
		last = rerr.Err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d objects not removed (%v): %w", len(failed), failed, last)
	}
	return nil
}
