package biz

import (
	"context"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// DeviceToken is a push registration of one user device.
type DeviceToken struct {
	UserID               string
	Token                string
	DeviceType           string // android or ios
	NotificationsEnabled bool
	UpdatedAt            time.Time
}

// DeviceRepo stores device tokens.
type DeviceRepo interface {
	Upsert(ctx context.Context, d *DeviceToken) error
	// ListEnabled returns the tokens of userID with notifications enabled.
	ListEnabled(ctx context.Context, userID string) ([]*DeviceToken, error)
}

// DeviceUsecase registers push tokens.
type DeviceUsecase struct {
	repo DeviceRepo
	log  *log.Helper
}

// NewDeviceUsecase new a Device usecase.
func NewDeviceUsecase(repo DeviceRepo, logger log.Logger) *DeviceUsecase {
	return &DeviceUsecase{repo: repo, log: log.NewHelper(logger)}
}

// RegisterToken saves or refreshes the push token of a device.
func (uc *DeviceUsecase) RegisterToken(ctx context.Context, d *DeviceToken) error {
	d.Token = strings.TrimSpace(d.Token)
	if d.Token == "" {
		return invalidPost("fcm_token", "fcm_token is required")
	}
	d.DeviceType = strings.ToLower(strings.TrimSpace(d.DeviceType))
	switch d.DeviceType {
	case "", "android", "ios":
	default:
		return invalidPost("device_type", "device_type must be android or ios")
	}
	d.UpdatedAt = time.Now().UTC()
	uc.log.WithContext(ctx).Debugf("register device token: user=%s type=%s", d.UserID, d.DeviceType)
	return uc.repo.Upsert(ctx, d)
}
