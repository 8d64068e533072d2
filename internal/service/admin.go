package service

import (
	"context"
	"net/http"

	"postguard/internal/biz"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// BadImageStats is the reply of the admin bad image routes.
type BadImageStats struct {
	Count   int64  `json:"count"`
	Rebuilt int    `json:"rebuilt,omitempty"`
	Message string `json:"message,omitempty"`
}

// AdminService maintains the known-bad image index.
type AdminService struct {
	moderationUc *biz.ModerationUsecase
}

// NewAdminService creates a new AdminService.
func NewAdminService(moderationUc *biz.ModerationUsecase) *AdminService {
	return &AdminService{moderationUc: moderationUc}
}

func (s *AdminService) RegisterRoutes(r *khttp.Router) {
	r.GET("/v1/admin/bad-images", s.BadImages)
	r.POST("/v1/admin/bad-images/rebuild", s.RebuildBloomFilter)
}

func requireAdmin(ctx context.Context) error {
	claims, err := CurrentClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.Admin {
		return ErrAdminRequired
	}
	return nil
}

// BadImages reports how many bad images are stored.
func (s *AdminService) BadImages(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		if err := requireAdmin(c); err != nil {
			return nil, err
		}
		n, err := s.moderationUc.BadImageCount(c)
		if err != nil {
			return nil, err
		}
		return &BadImageStats{Count: n}, nil
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

// RebuildBloomFilter re-adds every stored pHash to the bloom filter.
func (s *AdminService) RebuildBloomFilter(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		if err := requireAdmin(c); err != nil {
			return nil, err
		}
		added, err := s.moderationUc.RebuildBadImageIndex(c)
		if err != nil {
			return nil, err
		}
		return &BadImageStats{Count: int64(added), Rebuilt: added, Message: "Bloom filter rebuilt successfully"}, nil
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}
