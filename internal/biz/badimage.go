package biz

import (
	"context"
	"time"
)

// BadImage is a rejected image remembered by its perceptual hash.
type BadImage struct {
	ID        int64
	PHash     int64 // 64-bit perceptual hash
	Label     string
	Score     float64
	Filename  string
	AddedBy   string // "auto" or an operator
	CreatedAt time.Time
}

// BadImageRepo is a repository interface for bad images.
type BadImageRepo interface {
	// Save inserts the pHash, keeping the highest score on conflict.
	Save(ctx context.Context, img *BadImage) error
	// FindByPHash returns nil, nil when the pHash is unknown.
	FindByPHash(ctx context.Context, phash int64) (*BadImage, error)
	// ListPHashes returns every stored pHash, for rebuilding the bloom filter.
	ListPHashes(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int64, error)
}
