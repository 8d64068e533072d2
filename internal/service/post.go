package service

import (
	"context"
	"net/http"
	"strconv"

	"postguard/internal/biz"
	"postguard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// imageFields are the multipart fields accepted for post images. Older
// clients send one file per numbered field instead of repeating "images".
var imageFields = []string{"images", "image", "image2", "image3", "image4", "image5"}

// PostService serves the /v1/posts routes.
type PostService struct {
	uc      *biz.PostUsecase
	maxBody int64
	log     *log.Helper
}

// NewPostService creates a new PostService.
func NewPostService(uc *biz.PostUsecase, mc *conf.Moderation, logger log.Logger) *PostService {
	return &PostService{
		uc:      uc,
		maxBody: maxUploadBody(mc),
		log:     log.NewHelper(logger),
	}
}

// maxUploadBody allows every file of a full post plus form overhead.
func maxUploadBody(mc *conf.Moderation) int64 {
	perFile, files := int64(20), int64(5)
	if mc != nil && mc.MaxUploadMB > 0 {
		perFile = int64(mc.MaxUploadMB)
	}
	if mc != nil && mc.MaxImages > 0 {
		files = int64(mc.MaxImages)
	}
	return (perFile*files + 1) << 20
}

// RegisterRoutes mounts the post handlers on r.
func (s *PostService) RegisterRoutes(r *khttp.Router) {
	r.POST("/v1/posts", s.CreatePost)
	r.GET("/v1/posts", s.ListPosts)
	r.GET("/v1/posts/{id}", s.GetPost)
	r.PATCH("/v1/posts/{id}", s.UpdatePost)
	r.DELETE("/v1/posts/{id}", s.DeletePost)
}

// CreatePost accepts a multipart post and answers 201 once it is stored.
func (s *PostService) CreatePost(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		userID, err := CurrentUserID(c)
		if err != nil {
			return nil, err
		}
		up, err := parseUpload(ctx.Response(), ctx.Request(), s.maxBody)
		if err != nil {
			return nil, err
		}
		defer up.Close()

		req := &biz.CreatePostRequest{
			UserID:  userID,
			Type:    up.Value("post_type"),
			Caption: up.Value("caption"),
		}
		if req.Images, err = up.Items(imageFields...); err != nil {
			return nil, err
		}
		if req.Video, err = up.Item("video"); err != nil {
			return nil, err
		}
		return s.uc.CreatePost(c, req)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusCreated, out)
}

// GetPost returns one post with signed media URLs.
func (s *PostService) GetPost(ctx khttp.Context) error {
	id := ctx.Vars().Get("id")
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		if _, err := CurrentUserID(c); err != nil {
			return nil, err
		}
		return s.uc.GetPost(c, id)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

// ListPosts pages through the posts of user_id, the caller by default.
func (s *PostService) ListPosts(ctx khttp.Context) error {
	q := ctx.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		userID, err := CurrentUserID(c)
		if err != nil {
			return nil, err
		}
		if u := q.Get("user_id"); u != "" {
			userID = u
		}
		return s.uc.ListPosts(c, userID, q.Get("cursor"), limit)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

// UpdatePostRequest is the body of PATCH /v1/posts/{id}. Only the caption
// can be edited.
type UpdatePostRequest struct {
	Caption *string `json:"caption"`
}

// UpdatePost edits the caption of a post of the caller.
func (s *PostService) UpdatePost(ctx khttp.Context) error {
	id := ctx.Vars().Get("id")
	var in UpdatePostRequest
	if err := ctx.Bind(&in); err != nil {
		return err
	}
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		userID, err := CurrentUserID(c)
		if err != nil {
			return nil, err
		}
		return s.uc.UpdatePost(c, userID, id, in.Caption)
	})
	out, err := h(ctx, &in)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

// DeletePost soft deletes a post of the caller.
func (s *PostService) DeletePost(ctx khttp.Context) error {
	id := ctx.Vars().Get("id")
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		userID, err := CurrentUserID(c)
		if err != nil {
			return nil, err
		}
		return nil, s.uc.DeletePost(c, userID, id)
	})
	if _, err := h(ctx, nil); err != nil {
		return err
	}
	ctx.Response().WriteHeader(http.StatusNoContent)
	return nil
}
