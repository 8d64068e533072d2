package worker

import (
	"context"
	"errors"
	"fmt"

	"postguard/internal/biz"
	"postguard/internal/queue"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hibiken/asynq"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	devices biz.DeviceRepo
	pusher  Pusher
	log     *log.Helper
}

// NewProcessor constructs a worker processor.
func NewProcessor(devices biz.DeviceRepo, pusher Pusher, logger log.Logger) *Processor {
	return &Processor{devices: devices, pusher: pusher, log: log.NewHelper(logger)}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.PostCreatedTask, p.handlePostCreated)
	return mux
}

func (p *Processor) handlePostCreated(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodePostCreated(task)
	if err != nil {
		// A malformed payload never becomes valid, so skip retries.
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	devices, err := p.devices.ListEnabled(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("list devices of %s: %w", payload.UserID, err)
	}
	if len(devices) == 0 {
		p.log.WithContext(ctx).Debugf("no devices to notify for post %s", payload.PostID)
		return nil
	}

	n := postCreatedNotification(payload)
	var errs []error
	for _, d := range devices {
		if err := p.pusher.Push(ctx, d, n); err != nil {
			errs = append(errs, fmt.Errorf("push to %s device: %w", d.DeviceType, err))
		}
	}
	if len(errs) == len(devices) {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		p.log.WithContext(ctx).Warnf("post %s: %v", payload.PostID, err)
	}
	p.log.WithContext(ctx).Infof("post %s notified on %d/%d devices", payload.PostID, len(devices)-len(errs), len(devices))
	return nil
}

func postCreatedNotification(p queue.PostCreatedPayload) Notification {
	body := "Your post is live."
	switch biz.PostType(p.PostType) {
	case biz.PostTypeImage:
		body = fmt.Sprintf("Your post with %d image(s) passed review and is live.", p.Images)
	case biz.PostTypeVideo:
		body = "Your video passed review and is live."
	}
	return Notification{
		Title: "Post published",
		Body:  body,
		Data: map[string]string{
			"type":    queue.PostCreatedTask,
			"post_id": p.PostID,
		},
	}
}
