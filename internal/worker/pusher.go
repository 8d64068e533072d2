package worker

import (
	"context"

	"postguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// Notification is one push message.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Pusher delivers a notification to one device.
type Pusher interface {
	Push(ctx context.Context, device *biz.DeviceToken, n Notification) error
}

// LogPusher writes notifications to the log instead of a push provider.
type LogPusher struct {
	log *log.Helper
}

// NewLogPusher creates a LogPusher.
func NewLogPusher(logger log.Logger) *LogPusher {
	return &LogPusher{log: log.NewHelper(logger)}
}

func (p *LogPusher) Push(ctx context.Context, device *biz.DeviceToken, n Notification) error {
	p.log.WithContext(ctx).Infof("push to user=%s device=%s: %s: %s %v", device.UserID, device.DeviceType, n.Title, n.Body, n.Data)
	return nil
}
