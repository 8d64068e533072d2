package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"postguard/internal/biz"
	"postguard/internal/queue"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hibiken/asynq"
)

type fakeDevices struct {
	tokens []*biz.DeviceToken
	err    error
}

func (f *fakeDevices) Upsert(context.Context, *biz.DeviceToken) error { return nil }

func (f *fakeDevices) ListEnabled(context.Context, string) ([]*biz.DeviceToken, error) {
	return f.tokens, f.err
}

type recordingPusher struct {
	sent []Notification
	fail map[string]bool
}

func (r *recordingPusher) Push(_ context.Context, d *biz.DeviceToken, n Notification) error {
	if r.fail[d.Token] {
		return errors.New("unregistered token")
	}
	r.sent = append(r.sent, n)
	return nil
}

func postCreatedTask(t *testing.T, p queue.PostCreatedPayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(queue.PostCreatedTask, raw)
}

func TestHandlePostCreated(t *testing.T) {
	devices := &fakeDevices{tokens: []*biz.DeviceToken{
		{UserID: "u1", Token: "a", DeviceType: "android"},
		{UserID: "u1", Token: "b", DeviceType: "ios"},
	}}
	pusher := &recordingPusher{fail: map[string]bool{"b": true}}
	p := NewProcessor(devices, pusher, log.DefaultLogger)

	task := postCreatedTask(t, queue.PostCreatedPayload{PostID: "p1", UserID: "u1", PostType: "image", Images: 3})
	if err := p.handlePostCreated(context.Background(), task); err != nil {
		t.Fatalf("partial delivery should not fail the task: %v", err)
	}
	if len(pusher.sent) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pusher.sent))
	}
	n := pusher.sent[0]
	if n.Data["post_id"] != "p1" || n.Body != "Your post with 3 image(s) passed review and is live." {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestHandlePostCreated_AllPushesFail(t *testing.T) {
	devices := &fakeDevices{tokens: []*biz.DeviceToken{{UserID: "u1", Token: "a"}}}
	pusher := &recordingPusher{fail: map[string]bool{"a": true}}
	p := NewProcessor(devices, pusher, log.DefaultLogger)

	task := postCreatedTask(t, queue.PostCreatedPayload{PostID: "p1", UserID: "u1", PostType: "video"})
	if err := p.handlePostCreated(context.Background(), task); err == nil {
		t.Error("expected error so the task is retried")
	}
}

func TestHandlePostCreated_NoDevices(t *testing.T) {
	pusher := &recordingPusher{}
	p := NewProcessor(&fakeDevices{}, pusher, log.DefaultLogger)

	task := postCreatedTask(t, queue.PostCreatedPayload{PostID: "p1", UserID: "u1", PostType: "text"})
	if err := p.handlePostCreated(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pusher.sent) != 0 {
		t.Errorf("expected no pushes, got %d", len(pusher.sent))
	}
}

func TestHandlePostCreated_BadPayloadSkipsRetry(t *testing.T) {
	p := NewProcessor(&fakeDevices{}, &recordingPusher{}, log.DefaultLogger)

	err := p.handlePostCreated(context.Background(), asynq.NewTask(queue.PostCreatedTask, []byte(`{"post_id":""}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}
}

func TestHandlePostCreated_DeviceLookupError(t *testing.T) {
	p := NewProcessor(&fakeDevices{err: errors.New("db down")}, &recordingPusher{}, log.DefaultLogger)

	task := postCreatedTask(t, queue.PostCreatedPayload{PostID: "p1", UserID: "u1"})
	err := p.handlePostCreated(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected retryable error, got %v", err)
	}
}
