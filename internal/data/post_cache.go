package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"postguard/internal/biz"
	pkgredis "postguard/internal/pkg/redis"

	"github.com/google/uuid"
)

const (
	postCacheKeyPrefix = "postguard:post:"
	postCacheTTL       = 5 * time.Minute
)

type postCache struct {
	store pkgredis.Cache
	ttl   time.Duration
}

// NewPostCache caches post reads in Redis.
func NewPostCache(store pkgredis.Cache) biz.PostCache {
	return &postCache{store: store, ttl: postCacheTTL}
}

// cachedPost keeps the storage keys that the API representation hides.
type cachedPost struct {
	Post     *biz.Post `json:"post"`
	VideoKey string    `json:"video_key,omitempty"`
	Keys     []string  `json:"image_keys,omitempty"`
}

func (c *postCache) Get(ctx context.Context, id uuid.UUID) (*biz.Post, error) {
	raw, err := c.store.GetBytes(ctx, postCacheKeyPrefix+id.String())
	if err != nil {
		if errors.Is(err, pkgredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var cp cachedPost
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	if cp.Post == nil || len(cp.Keys) != len(cp.Post.Images) {
		return nil, nil
	}
	cp.Post.VideoKey = cp.VideoKey
	cp.Post.VideoURL = ""
	for i, img := range cp.Post.Images {
		img.ObjectKey = cp.Keys[i]
		img.URL = ""
	}
	return cp.Post, nil
}

func (c *postCache) Set(ctx context.Context, p *biz.Post) error {
	cp := cachedPost{Post: p, VideoKey: p.VideoKey}
	for _, img := range p.Images {
		cp.Keys = append(cp.Keys, img.ObjectKey)
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return c.store.SetBytes(ctx, postCacheKeyPrefix+p.ID.String(), raw, c.ttl)
}

func (c *postCache) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := c.store.Del(ctx, postCacheKeyPrefix+id.String())
	return err
}
