package service

import (
	"context"
	"net/http"

	"postguard/internal/biz"
	"postguard/internal/conf"

	"github.com/go-kratos/kratos/v2/errors"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

var ErrUnsupportedMedia = errors.BadRequest("UNSUPPORTED_MEDIA", "file must be an image or a video")

// ModerationService runs a single file through moderation without creating
// a post, so clients can pre-check uploads.
type ModerationService struct {
	uc      *biz.ModerationUsecase
	maxBody int64
}

// NewModerationService creates a new ModerationService.
func NewModerationService(uc *biz.ModerationUsecase, mc *conf.Moderation) *ModerationService {
	perFile := int64(20)
	if mc != nil && mc.MaxUploadMB > 0 {
		perFile = int64(mc.MaxUploadMB)
	}
	return &ModerationService{uc: uc, maxBody: (perFile + 1) << 20}
}

func (s *ModerationService) RegisterRoutes(r *khttp.Router) {
	r.POST("/v1/moderation/check", s.Check)
}

// Check answers 200 with the verdict whether or not the file is safe.
func (s *ModerationService) Check(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		if _, err := CurrentUserID(c); err != nil {
			return nil, err
		}
		up, err := parseUpload(ctx.Response(), ctx.Request(), s.maxBody)
		if err != nil {
			return nil, err
		}
		defer up.Close()

		item, err := up.Item("file")
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, errors.BadRequest("INVALID_UPLOAD", "file is required")
		}
		kind, ok := biz.KindForFilename(item.Filename)
		if !ok {
			return nil, ErrUnsupportedMedia
		}
		return s.uc.Check(c, kind, item)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}
