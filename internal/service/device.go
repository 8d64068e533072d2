package service

import (
	"context"
	"net/http"

	"postguard/internal/biz"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// RegisterDeviceRequest is the body of PUT /v1/devices/token.
type RegisterDeviceRequest struct {
	FCMToken             string `json:"fcm_token"`
	DeviceType           string `json:"device_type"`
	NotificationsEnabled *bool  `json:"enable_notifications"`
}

// DeviceService serves push token registration.
type DeviceService struct {
	uc *biz.DeviceUsecase
}

// NewDeviceService creates a new DeviceService.
func NewDeviceService(uc *biz.DeviceUsecase) *DeviceService {
	return &DeviceService{uc: uc}
}

func (s *DeviceService) RegisterRoutes(r *khttp.Router) {
	r.PUT("/v1/devices/token", s.RegisterToken)
	r.POST("/v1/devices/token", s.RegisterToken)
}

// RegisterToken saves the caller's push token. Notifications default to on.
func (s *DeviceService) RegisterToken(ctx khttp.Context) error {
	var in RegisterDeviceRequest
	if err := ctx.Bind(&in); err != nil {
		return err
	}
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		userID, err := CurrentUserID(c)
		if err != nil {
			return nil, err
		}
		enabled := in.NotificationsEnabled == nil || *in.NotificationsEnabled
		return nil, s.uc.RegisterToken(c, &biz.DeviceToken{
			UserID:               userID,
			Token:                in.FCMToken,
			DeviceType:           in.DeviceType,
			NotificationsEnabled: enabled,
		})
	})
	if _, err := h(ctx, &in); err != nil {
		return err
	}
	ctx.Response().WriteHeader(http.StatusNoContent)
	return nil
}
