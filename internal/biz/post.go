package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"postguard/internal/conf"
	"postguard/internal/pkg/moderator"
	"postguard/internal/pkg/pagination"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// PostType is the declared kind of a post.
type PostType string

const (
	PostTypeImage PostType = "image"
	PostTypeVideo PostType = "video"
	PostTypeText  PostType = "text"
)

// ContentStatusApproved is the only status a stored post can have: rejected
// posts are never written.
const ContentStatusApproved = "approved"

var (
	ErrInvalidPostType = errors.BadRequest("INVALID_POST_TYPE", "post_type must be one of image, video, text")
	ErrPostNotFound    = errors.NotFound("POST_NOT_FOUND", "post not found")
	ErrNotPostOwner    = errors.Forbidden("NOT_POST_OWNER", "only the author can modify this post")
	ErrInvalidCursor   = errors.BadRequest("INVALID_CURSOR", "cursor is malformed")
)

func invalidPost(field, message string) error {
	return errors.BadRequest("INVALID_POST", message).WithMetadata(map[string]string{"field": field})
}

// Post is a Post model.
type Post struct {
	ID            uuid.UUID    `json:"id"`
	UserID        string       `json:"user_id"`
	Type          PostType     `json:"post_type"`
	Caption       string       `json:"caption"`
	VideoKey      string       `json:"-"`
	VideoURL      string       `json:"video_url,omitempty"`
	ContentStatus string       `json:"content_status"`
	Images        []*PostImage `json:"images"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	DeletedAt     *time.Time   `json:"-"`
}

// PostImage is one ordered image of a post.
type PostImage struct {
	ID          uuid.UUID `json:"id"`
	Order       int       `json:"order"`
	ObjectKey   string    `json:"-"`
	URL         string    `json:"url,omitempty"`
	Moderation  []byte    `json:"-"` // verdict JSON
	UnsafeScore float64   `json:"unsafe_score"`
	CreatedAt   time.Time `json:"created_at"`
}

// PostRepo persists posts. Create writes the post and its images atomically.
type PostRepo interface {
	Create(ctx context.Context, p *Post) (*Post, error)
	// Get returns nil, nil when the post does not exist or was deleted.
	Get(ctx context.Context, id uuid.UUID) (*Post, error)
	List(ctx context.Context, userID string, after *pagination.Cursor, limit int) ([]*Post, error)
	UpdateCaption(ctx context.Context, id uuid.UUID, caption string, at time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// MediaStore keeps uploaded media in object storage.
type MediaStore interface {
	Put(ctx context.Context, key string, item *moderator.MediaItem) error
	Delete(ctx context.Context, keys ...string) error
	URL(ctx context.Context, key string) (string, error)
}

// PostNotifier is told about committed posts.
type PostNotifier interface {
	PostCreated(ctx context.Context, p *Post) error
}

// PostCache caches post reads. Get returns nil, nil on a miss.
type PostCache interface {
	Get(ctx context.Context, id uuid.UUID) (*Post, error)
	Set(ctx context.Context, p *Post) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreatePostRequest is a multipart post upload after transport decoding.
type CreatePostRequest struct {
	UserID  string
	Type    string
	Caption string
	Images  []*moderator.MediaItem
	Video   *moderator.MediaItem
}

// PostUsecase gates post creation on content moderation.
type PostUsecase struct {
	images    moderator.ImageModerator
	videos    moderator.VideoModerator
	repo      PostRepo
	media     MediaStore
	notifier  PostNotifier
	cache     PostCache
	maxImages int
	now       func() time.Time
	log       *log.Helper
}

// NewPostUsecase new a Post usecase.
func NewPostUsecase(
	mc *conf.Moderation,
	images moderator.ImageModerator,
	videos moderator.VideoModerator,
	repo PostRepo,
	media MediaStore,
	notifier PostNotifier,
	cache PostCache,
	logger log.Logger,
) *PostUsecase {
	maxImages := 5
	if mc != nil && mc.MaxImages > 0 {
		maxImages = mc.MaxImages
	}
	return &PostUsecase{
		images:    images,
		videos:    videos,
		repo:      repo,
		media:     media,
		notifier:  notifier,
		cache:     cache,
		maxImages: maxImages,
		now:       time.Now,
		log:       log.NewHelper(logger),
	}
}

// CreatePost moderates every media item of the request and persists the post
// only when all of them pass. A moderation failure returns *RejectionError and
// leaves no trace in storage.
func (uc *PostUsecase) CreatePost(ctx context.Context, req *CreatePostRequest) (*Post, error) {
	caption := normalizeCaption(req.Caption)
	postType := PostType(strings.ToLower(strings.TrimSpace(req.Type)))

	var (
		rejection *RejectionError
		verdicts  []*moderator.Verdict
	)
	switch postType {
	case PostTypeImage:
		if len(req.Images) == 0 {
			return nil, invalidPost("images", "At least one image is required for image posts")
		}
		if len(req.Images) > uc.maxImages {
			return nil, invalidPost("images", fmt.Sprintf("Maximum %d images allowed", uc.maxImages))
		}
		if req.Video != nil {
			return nil, invalidPost("video", "Image posts cannot include a video")
		}
		verdicts, rejection = uc.moderateImages(ctx, req.Images)
	case PostTypeVideo:
		if req.Video == nil {
			return nil, invalidPost("video", "Video file is required for video posts")
		}
		if len(req.Images) > 0 {
			return nil, invalidPost("images", "Video posts cannot include images")
		}
		rejection = uc.moderateVideo(ctx, req.Video)
	case PostTypeText:
		if caption == "" {
			return nil, invalidPost("caption", "Caption is required for text posts")
		}
		if len(req.Images) > 0 || req.Video != nil {
			return nil, invalidPost("post_type", "Text posts cannot include media")
		}
	default:
		return nil, ErrInvalidPostType
	}
	if rejection != nil {
		uc.log.WithContext(ctx).Warnf("post rejected: user=%s type=%s items=%d", req.UserID, postType, len(rejection.Items))
		return nil, rejection
	}

	now := uc.now().UTC()
	post := &Post{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Type:          postType,
		Caption:       caption,
		ContentStatus: ContentStatusApproved,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	uploaded, err := uc.upload(ctx, post, req, verdicts)
	if err != nil {
		return nil, err
	}
	created, err := uc.repo.Create(ctx, post)
	if err != nil {
		uc.discard(uploaded)
		return nil, fmt.Errorf("create post: %w", err)
	}
	uc.log.WithContext(ctx).Infof("post created: id=%s type=%s images=%d", created.ID, created.Type, len(created.Images))

	if err := uc.notifier.PostCreated(ctx, created); err != nil {
		uc.log.WithContext(ctx).Errorf("enqueue post notification %s: %v", created.ID, err)
	}
	uc.presign(ctx, created)
	return created, nil
}

func (uc *PostUsecase) moderateImages(ctx context.Context, items []*moderator.MediaItem) ([]*moderator.Verdict, *RejectionError) {
	verdicts := uc.images.CheckImages(ctx, items)
	var rejected []RejectedItem
	for i, v := range verdicts {
		if !v.IsSafe {
			rejected = append(rejected, rejectedItem(i+1, items[i].Filename, v))
		}
	}
	if len(rejected) == 0 {
		return verdicts, nil
	}
	return verdicts, &RejectionError{PostType: PostTypeImage, Items: rejected}
}

func (uc *PostUsecase) moderateVideo(ctx context.Context, item *moderator.MediaItem) *RejectionError {
	v := uc.videos.CheckVideo(ctx, item, 0)
	if v.IsSafe {
		return nil
	}
	return &RejectionError{PostType: PostTypeVideo, Items: []RejectedItem{rejectedItem(1, item.Filename, v)}}
}

func (uc *PostUsecase) upload(ctx context.Context, post *Post, req *CreatePostRequest, verdicts []*moderator.Verdict) ([]string, error) {
	var keys []string
	put := func(kind string, item *moderator.MediaItem) (string, error) {
		key := objectKey(kind, post.CreatedAt, item.Ext())
		if err := uc.media.Put(ctx, key, item); err != nil {
			uc.discard(keys)
			return "", fmt.Errorf("upload %s: %w", item.Filename, err)
		}
		keys = append(keys, key)
		return key, nil
	}

	for i, item := range req.Images {
		key, err := put("images", item)
		if err != nil {
			return nil, err
		}
		img := &PostImage{
			ID:        uuid.New(),
			Order:     i,
			ObjectKey: key,
			CreatedAt: post.CreatedAt,
		}
		if i < len(verdicts) {
			img.UnsafeScore = verdicts[i].UnsafeScore()
			if img.Moderation, err = json.Marshal(verdicts[i]); err != nil {
				uc.discard(keys)
				return nil, fmt.Errorf("encode verdict of %s: %w", item.Filename, err)
			}
		}
		post.Images = append(post.Images, img)
	}
	if post.Type == PostTypeVideo {
		key, err := put("videos", req.Video)
		if err != nil {
			return nil, err
		}
		post.VideoKey = key
	}
	return keys, nil
}

// discard removes uploaded objects of a post that was never committed.
func (uc *PostUsecase) discard(keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := uc.media.Delete(ctx, keys...); err != nil {
		uc.log.Errorf("discard %d orphaned objects: %v", len(keys), err)
	}
}

// GetPost returns an approved, non-deleted post with media URLs.
func (uc *PostUsecase) GetPost(ctx context.Context, id string) (*Post, error) {
	postID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrPostNotFound
	}
	post, err := uc.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	uc.presign(ctx, post)
	return post, nil
}

func (uc *PostUsecase) load(ctx context.Context, id uuid.UUID) (*Post, error) {
	if cached, err := uc.cache.Get(ctx, id); err != nil {
		uc.log.WithContext(ctx).Warnf("post cache get %s: %v", id, err)
	} else if cached != nil {
		return cached, nil
	}

	post, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if err := uc.cache.Set(ctx, post); err != nil {
		uc.log.WithContext(ctx).Warnf("post cache set %s: %v", id, err)
	}
	return post, nil
}

// ListPosts pages through a user's posts, newest first.
func (uc *PostUsecase) ListPosts(ctx context.Context, userID, cursor string, limit int) (*pagination.CursorResponse[*Post], error) {
	req := pagination.NewCursorRequest(cursor, limit)
	after, err := req.DecodedCursor()
	if err != nil {
		return nil, ErrInvalidCursor
	}
	posts, err := uc.repo.List(ctx, userID, after, req.GetFetchLimit())
	if err != nil {
		return nil, err
	}
	page := pagination.BuildCursorResponse(posts, req.GetLimit(), func(p *Post) *pagination.Cursor {
		return &pagination.Cursor{ID: p.ID.String(), CreatedAt: p.CreatedAt}
	})
	for _, p := range page.Items {
		uc.presign(ctx, p)
	}
	return page, nil
}

// UpdatePost replaces the caption of a post owned by userID. Media is never
// edited, so the post is not moderated again. A nil caption leaves the post
// unchanged.
func (uc *PostUsecase) UpdatePost(ctx context.Context, userID, id string, caption *string) (*Post, error) {
	post, err := uc.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if caption != nil {
		c := normalizeCaption(*caption)
		if post.Type == PostTypeText && c == "" {
			return nil, invalidPost("caption", "Caption is required for text posts")
		}
		now := uc.now().UTC()
		if err := uc.repo.UpdateCaption(ctx, post.ID, c, now); err != nil {
			return nil, err
		}
		post.Caption, post.UpdatedAt = c, now
		if err := uc.cache.Delete(ctx, post.ID); err != nil {
			uc.log.WithContext(ctx).Warnf("post cache delete %s: %v", post.ID, err)
		}
	}
	uc.presign(ctx, post)
	return post, nil
}

// owned loads a post from the repository and checks that userID wrote it.
func (uc *PostUsecase) owned(ctx context.Context, userID, id string) (*Post, error) {
	postID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrPostNotFound
	}
	post, err := uc.repo.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.UserID != userID {
		return nil, ErrNotPostOwner
	}
	return post, nil
}

// DeletePost soft deletes a post owned by userID.
func (uc *PostUsecase) DeletePost(ctx context.Context, userID, id string) error {
	post, err := uc.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := uc.repo.SoftDelete(ctx, post.ID); err != nil {
		return err
	}
	if err := uc.cache.Delete(ctx, post.ID); err != nil {
		uc.log.WithContext(ctx).Warnf("post cache delete %s: %v", post.ID, err)
	}
	return nil
}

func (uc *PostUsecase) presign(ctx context.Context, p *Post) {
	if p.VideoKey != "" {
		if u, err := uc.media.URL(ctx, p.VideoKey); err == nil {
			p.VideoURL = u
		} else {
			uc.log.WithContext(ctx).Warnf("presign %s: %v", p.VideoKey, err)
		}
	}
	for _, img := range p.Images {
		if u, err := uc.media.URL(ctx, img.ObjectKey); err == nil {
			img.URL = u
		} else {
			uc.log.WithContext(ctx).Warnf("presign %s: %v", img.ObjectKey, err)
		}
	}
}

// objectKey lays media out as posts/<kind>/YYYY/MM/DD/<uuid><ext>.
func objectKey(kind string, at time.Time, ext string) string {
	return path.Join("posts", kind, at.Format("2006/01/02"), uuid.NewString()+ext)
}

func normalizeCaption(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
