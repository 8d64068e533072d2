package data

import (
	"context"
	"errors"

	"postguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

const (
	upsertBadImageSQL = `
INSERT INTO bad_images (phash, label, score, filename, added_by)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (phash) DO UPDATE
SET score = GREATEST(bad_images.score, EXCLUDED.score),
    label = CASE WHEN EXCLUDED.score > bad_images.score THEN EXCLUDED.label ELSE bad_images.label END`

	selectBadImageSQL = `
SELECT id, phash, label, score, filename, added_by, created_at
FROM bad_images WHERE phash = $1`
)

type badImageRepo struct {
	data *Data
	log  *log.Helper
}

// NewBadImageRepo creates a new BadImageRepo.
func NewBadImageRepo(data *Data, logger log.Logger) biz.BadImageRepo {
	return &badImageRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Save implements biz.BadImageRepo.
func (r *badImageRepo) Save(ctx context.Context, img *biz.BadImage) error {
	addedBy := img.AddedBy
	if addedBy == "" {
		addedBy = "auto"
	}
	_, err := r.data.Pool.Exec(ctx, upsertBadImageSQL, img.PHash, img.Label, img.Score, img.Filename, addedBy)
	return err
}

// FindByPHash implements biz.BadImageRepo.
func (r *badImageRepo) FindByPHash(ctx context.Context, phash int64) (*biz.BadImage, error) {
	var img biz.BadImage
	err := r.data.Pool.QueryRow(ctx, selectBadImageSQL, phash).Scan(
		&img.ID, &img.PHash, &img.Label, &img.Score, &img.Filename, &img.AddedBy, &img.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &img, nil
}

// ListPHashes implements biz.BadImageRepo.
func (r *badImageRepo) ListPHashes(ctx context.Context) ([]int64, error) {
	rows, err := r.data.Pool.Query(ctx, `SELECT phash FROM bad_images ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Count implements biz.BadImageRepo.
func (r *badImageRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.data.Pool.QueryRow(ctx, `SELECT count(*) FROM bad_images`).Scan(&n)
	return n, err
}
