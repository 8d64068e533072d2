package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// PostCreatedTask is scheduled each time a post is committed.
	PostCreatedTask = "post:created"
)

// PostCreatedPayload tells the worker whom to notify about which post.
type PostCreatedPayload struct {
	PostID   string `json:"post_id"`
	UserID   string `json:"user_id"`
	PostType string `json:"post_type"`
	Images   int    `json:"images"`
}

// EnqueueOptions controls retries and the per-task deadline.
type EnqueueOptions struct {
	MaxRetry int
	Timeout  time.Duration
}

// EnqueuePostCreated enqueues a post notification job.
func EnqueuePostCreated(ctx context.Context, client *asynq.Client, payload PostCreatedPayload, opts EnqueueOptions) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	taskOpts := []asynq.Option{asynq.MaxRetry(opts.MaxRetry)}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}
	task := asynq.NewTask(PostCreatedTask, data)
	if _, err := client.EnqueueContext(ctx, task, taskOpts...); err != nil {
		return fmt.Errorf("enqueue post created task: %w", err)
	}
	return nil
}

// DecodePostCreated parses a post:created task payload.
func DecodePostCreated(task *asynq.Task) (PostCreatedPayload, error) {
	var p PostCreatedPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", PostCreatedTask, err)
	}
	if p.PostID == "" || p.UserID == "" {
		return p, fmt.Errorf("decode %s payload: missing post_id or user_id", PostCreatedTask)
	}
	return p, nil
}
