package data

import (
	"context"

	"postguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

const upsertDeviceSQL = `
INSERT INTO device_tokens (token, user_id, device_type, notifications_enabled, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (token) DO UPDATE
SET user_id = EXCLUDED.user_id,
    device_type = EXCLUDED.device_type,
    notifications_enabled = EXCLUDED.notifications_enabled,
    updated_at = EXCLUDED.updated_at`

type deviceRepo struct {
	data *Data
	log  *log.Helper
}

// NewDeviceRepo creates a new DeviceRepo.
func NewDeviceRepo(data *Data, logger log.Logger) biz.DeviceRepo {
	return &deviceRepo{data: data, log: log.NewHelper(logger)}
}

func (r *deviceRepo) Upsert(ctx context.Context, d *biz.DeviceToken) error {
	_, err := r.data.Pool.Exec(ctx, upsertDeviceSQL, d.Token, d.UserID, d.DeviceType, d.NotificationsEnabled, d.UpdatedAt)
	return err
}

func (r *deviceRepo) ListEnabled(ctx context.Context, userID string) ([]*biz.DeviceToken, error) {
	rows, err := r.data.Pool.Query(ctx, `
SELECT user_id, token, device_type, notifications_enabled, updated_at
FROM device_tokens
WHERE user_id = $1 AND notifications_enabled
ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*biz.DeviceToken, error) {
		var d biz.DeviceToken
		err := row.Scan(&d.UserID, &d.Token, &d.DeviceType, &d.NotificationsEnabled, &d.UpdatedAt)
		return &d, err
	})
}
