package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postguard/internal/biz"
	"postguard/internal/pkg/pagination"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	insertPostSQL = `
INSERT INTO posts (id, user_id, post_type, caption, video_key, content_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertPostImageSQL = `
INSERT INTO post_images (id, post_id, position, object_key, unsafe_score, moderation_result, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectPostColumns = `id, user_id, post_type, caption, video_key, content_status, created_at, updated_at`

	selectImagesSQL = `
SELECT id, post_id, position, object_key, unsafe_score, created_at
FROM post_images
WHERE post_id = ANY($1)
ORDER BY post_id, position`

	updateCaptionSQL = `
UPDATE posts SET caption = $2, updated_at = $3
WHERE id = $1 AND deleted_at IS NULL`

	softDeletePostSQL = `
UPDATE posts SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND deleted_at IS NULL`
)

type postRepo struct {
	data *Data
	log  *log.Helper
}

// NewPostRepo creates a new PostRepo.
func NewPostRepo(data *Data, logger log.Logger) biz.PostRepo {
	return &postRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Create implements biz.PostRepo. The post row and every image row are
// written in one transaction.
func (r *postRepo) Create(ctx context.Context, p *biz.Post) (*biz.Post, error) {
	err := pgx.BeginFunc(ctx, r.data.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertPostSQL,
			p.ID, p.UserID, string(p.Type), p.Caption, nullable(p.VideoKey), p.ContentStatus, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		if len(p.Images) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, img := range p.Images {
			var moderation any
			if len(img.Moderation) > 0 {
				moderation = string(img.Moderation)
			}
			batch.Queue(insertPostImageSQL, img.ID, p.ID, img.Order, img.ObjectKey, img.UnsafeScore, moderation, img.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert post images: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get implements biz.PostRepo.
func (r *postRepo) Get(ctx context.Context, id uuid.UUID) (*biz.Post, error) {
	row := r.data.Pool.QueryRow(ctx,
		`SELECT `+selectPostColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL AND content_status = $2`,
		id, biz.ContentStatusApproved)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	if err := r.attachImages(ctx, []*biz.Post{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// List implements biz.PostRepo, newest first.
func (r *postRepo) List(ctx context.Context, userID string, after *pagination.Cursor, limit int) ([]*biz.Post, error) {
	query := `SELECT ` + selectPostColumns + ` FROM posts WHERE user_id = $1 AND deleted_at IS NULL AND content_status = $2`
	args := []any{userID, biz.ContentStatusApproved}
	if after != nil {
		afterID, err := uuid.Parse(after.ID)
		if err != nil {
			return nil, biz.ErrInvalidCursor
		}
		query += ` AND ` + pagination.SQLCursorCondition("created_at", pagination.DESC, len(args)+1)
		args = append(args, after.CreatedAt, afterID)
	}
	query += fmt.Sprintf(` ORDER BY %s LIMIT %d`, pagination.SQLOrderBy("created_at", pagination.DESC), limit)

	rows, err := r.data.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*biz.Post, error) {
		return scanPost(row)
	})
	if err != nil {
		return nil, err
	}
	if err := r.attachImages(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// UpdateCaption implements biz.PostRepo.
func (r *postRepo) UpdateCaption(ctx context.Context, id uuid.UUID, caption string, at time.Time) error {
	tag, err := r.data.Pool.Exec(ctx, updateCaptionSQL, id, caption, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return biz.ErrPostNotFound
	}
	return nil
}

// SoftDelete implements biz.PostRepo.
func (r *postRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.data.Pool.Exec(ctx, softDeletePostSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return biz.ErrPostNotFound
	}
	return nil
}

func (r *postRepo) attachImages(ctx context.Context, posts []*biz.Post) error {
	ids := make([]uuid.UUID, 0, len(posts))
	byID := make(map[uuid.UUID]*biz.Post, len(posts))
	for _, p := range posts {
		if p.Type == biz.PostTypeImage {
			ids = append(ids, p.ID)
			byID[p.ID] = p
		}
	}
	if len(ids) == 0 {
		return nil
	}
	rows, err := r.data.Pool.Query(ctx, selectImagesSQL, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			img    biz.PostImage
			postID uuid.UUID
		)
		if err := rows.Scan(&img.ID, &postID, &img.Order, &img.ObjectKey, &img.UnsafeScore, &img.CreatedAt); err != nil {
			return err
		}
		if p := byID[postID]; p != nil {
			p.Images = append(p.Images, &img)
		}
	}
	return rows.Err()
}

func scanPost(row pgx.Row) (*biz.Post, error) {
	var (
		p        biz.Post
		postType string
		videoKey *string
	)
	if err := row.Scan(&p.ID, &p.UserID, &postType, &p.Caption, &videoKey, &p.ContentStatus, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Type = biz.PostType(postType)
	if videoKey != nil {
		p.VideoKey = *videoKey
	}
	p.CreatedAt = p.CreatedAt.In(time.UTC)
	p.UpdatedAt = p.UpdatedAt.In(time.UTC)
	return &p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
