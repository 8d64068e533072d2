package data

import (
	"context"

	"postguard/internal/biz"
	"postguard/internal/conf"
	"postguard/internal/queue"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hibiken/asynq"
)

// NewQueueClient creates the asynq client used to enqueue background tasks.
func NewQueueClient(c *conf.Data, logger log.Logger) (*asynq.Client, func(), error) {
	helper := log.NewHelper(logger)
	client := asynq.NewClient(AsynqRedisOpt(c))
	cleanup := func() {
		helper.Info("closing queue client")
		client.Close()
	}
	return client, cleanup, nil
}

type postNotifier struct {
	client *asynq.Client
	opts   queue.EnqueueOptions
}

// NewPostNotifier enqueues post:created tasks for the worker.
func NewPostNotifier(client *asynq.Client, qc *conf.Queue) biz.PostNotifier {
	return &postNotifier{
		client: client,
		opts:   queue.EnqueueOptions{MaxRetry: qc.MaxRetry, Timeout: qc.Timeout.AsDuration()},
	}
}

func (n *postNotifier) PostCreated(ctx context.Context, p *biz.Post) error {
	return queue.EnqueuePostCreated(ctx, n.client, queue.PostCreatedPayload{
		PostID:   p.ID.String(),
		UserID:   p.UserID,
		PostType: string(p.Type),
		Images:   len(p.Images),
	}, n.opts)
}
