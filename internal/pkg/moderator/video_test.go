package moderator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newVideoModerator(t *testing.T, dec VideoDecoder, det Detector, mutate func(*VideoModeratorConfig)) (*LocalVideoModerator, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultVideoModeratorConfig()
	cfg.TempDir = dir
	if mutate != nil {
		mutate(&cfg)
	}
	var c *Classifier
	if det != nil {
		c = NewClassifier(det)
	}
	return NewLocalVideoModerator(cfg, dec, c, testLogger), dir
}

func mp4Item() *MediaItem {
	return newItem("clip.mp4", "video/mp4", []byte("\x00\x00\x00\x18ftypmp42"))
}

func TestVideoModeratorConfig_Defaults(t *testing.T) {
	config := DefaultVideoModeratorConfig()

	if config.FrameInterval != 2*time.Second {
		t.Errorf("Expected FrameInterval 2s, got %s", config.FrameInterval)
	}
	if config.MaxFrames != 30 || config.MinFrames != 5 {
		t.Errorf("Expected 5..30 frames, got %d..%d", config.MinFrames, config.MaxFrames)
	}
	if config.Threshold != 0.35 {
		t.Errorf("Expected Threshold 0.35, got %f", config.Threshold)
	}
}

func TestCheckVideo_UnsafeFrame(t *testing.T) {
	dec := &fakeDecoder{info: VideoInfo{FPS: 30, TotalFrames: 300}}
	det := &fakeDetector{fn: func(path string) ([]Detection, error) {
		if strings.Contains(path, "frame_000120") {
			return []Detection{{Label: "BUTTOCKS_EXPOSED", Score: 0.5}}, nil
		}
		return []Detection{{Label: "FACE_FEMALE", Score: 0.9}}, nil
	}}
	m, dir := newVideoModerator(t, dec, det, nil)

	v := m.CheckVideo(context.Background(), mp4Item(), 2*time.Second)
	if v.IsSafe {
		t.Fatal("Expected unsafe verdict")
	}
	if v.Details.FramesChecked != 5 {
		t.Errorf("Expected 5 frames checked, got %d", v.Details.FramesChecked)
	}
	if len(v.Details.UnsafeFrames) != 1 {
		t.Fatalf("Expected 1 unsafe frame, got %d", len(v.Details.UnsafeFrames))
	}
	f := v.Details.UnsafeFrames[0]
	if f.Timestamp != 4.0 || f.FrameNumber != 120 || f.FrameIndex != 2 {
		t.Errorf("Unexpected unsafe frame %+v", f)
	}
	if v.UnsafeScore() != 0.5 {
		t.Errorf("Expected unsafe 0.5, got %f", v.UnsafeScore())
	}
	if v.Details.Duration != 10 || v.Details.FrameInterval != 2 {
		t.Errorf("Unexpected details %+v", v.Details)
	}
	if v.Message != "Inappropriate content found in 1 frame(s)" {
		t.Errorf("Unexpected message %q", v.Message)
	}
	if det.Calls() != 5 {
		t.Errorf("Expected every frame to be checked, got %d calls", det.Calls())
	}
	assertEmptyDir(t, dir)
}

func TestCheckVideo_UnsafeFramesOrdered(t *testing.T) {
	dec := &fakeDecoder{info: VideoInfo{FPS: 25, TotalFrames: 25 * 60}}
	det := &fakeDetector{fn: func(string) ([]Detection, error) {
		return []Detection{{Label: "EXPOSED_ANUS", Score: 0.9}}, nil
	}}
	m, _ := newVideoModerator(t, dec, det, nil)

	v := m.CheckVideo(context.Background(), mp4Item(), 0)
	if v.IsSafe || v.Details.UnsafeFramesCount != 30 {
		t.Fatalf("Expected 30 unsafe frames, got %+v", v.Details)
	}
	for i := 1; i < len(v.Details.UnsafeFrames); i++ {
		if v.Details.UnsafeFrames[i].Timestamp <= v.Details.UnsafeFrames[i-1].Timestamp {
			t.Fatalf("unsafe frames out of order at %d", i)
		}
	}
}

func TestCheckVideo_Safe(t *testing.T) {
	dec := &fakeDecoder{info: VideoInfo{FPS: 30, TotalFrames: 300}}
	m, dir := newVideoModerator(t, dec, &fakeDetector{}, nil)

	v := m.CheckVideo(context.Background(), mp4Item(), 0)
	if !v.IsSafe || v.Stage != StageCompleted || v.Details.Decision != DecisionApproved {
		t.Errorf("Expected approved verdict, got %+v", v)
	}
	assertEmptyDir(t, dir)
}

func TestCheckVideo_ZeroFramesRejected(t *testing.T) {
	dec := &fakeDecoder{info: VideoInfo{FPS: 30, TotalFrames: 300}, bad: map[int]bool{-1: true}}
	det := &fakeDetector{}
	m, dir := newVideoModerator(t, dec, det, nil)

	v := m.CheckVideo(context.Background(), mp4Item(), 0)
	if v.IsSafe || v.Reason != ReasonNoFrames {
		t.Errorf("Expected no_frames rejection, got %+v", v)
	}
	if det.Calls() != 0 {
		t.Error("Expected detector not to be called")
	}
	assertEmptyDir(t, dir)
}

func TestCheckVideo_DecodeFailure(t *testing.T) {
	dec := &fakeDecoder{probeErr: errors.New("invalid data found when processing input")}
	m, dir := newVideoModerator(t, dec, &fakeDetector{}, nil)

	v := m.CheckVideo(context.Background(), mp4Item(), 0)
	if v.IsSafe || v.Reason != ReasonDecodeFailed || v.Stage != StageModeration {
		t.Errorf("Expected decode rejection, got %+v", v)
	}
	assertEmptyDir(t, dir)
}

func TestCheckVideo_DetectorErrorMidLoop(t *testing.T) {
	dec := &fakeDecoder{info: VideoInfo{FPS: 30, TotalFrames: 300}}
	det := &fakeDetector{fn: func(path string) ([]Detection, error) {
		if strings.Contains(path, "frame_000180") {
			return nil, errors.New("model crashed")
		}
		return nil, nil
	}}
	m, dir := newVideoModerator(t, dec, det, nil)

	v := m.CheckVideo(context.Background(), mp4Item(), 0)
	if v.IsSafe || v.Reason != ReasonDetectorUnavailable {
		t.Errorf("Expected fail-closed verdict, got %+v", v)
	}
	assertEmptyDir(t, dir)
}

func TestCheckVideo_Validation(t *testing.T) {
	tests := []struct {
		name string
		item *MediaItem
		want string
	}{
		{"flv", newItem("clip.flv", "video/x-flv", []byte("x")), ReasonInvalidFormat},
		{"mime", newItem("clip.mov", "video/mp4", []byte("x")), ReasonInvalidContentType},
		{"size", &MediaItem{Filename: "clip.webm", Size: 21 << 20, Content: strings.NewReader("x")}, ReasonFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{}
			m, _ := newVideoModerator(t, &fakeDecoder{info: VideoInfo{FPS: 30, TotalFrames: 300}}, det, nil)
			v := m.CheckVideo(context.Background(), tt.item, 0)
			if v.IsSafe || v.Stage != StageValidation || v.Reason != tt.want {
				t.Errorf("Unexpected verdict %+v", v)
			}
			if det.Calls() != 0 {
				t.Error("Expected detector not to be called")
			}
		})
	}
}

func TestCheckVideo_FailClosedWithoutDetector(t *testing.T) {
	m, _ := newVideoModerator(t, &fakeDecoder{info: VideoInfo{FPS: 30, TotalFrames: 300}}, nil, nil)
	v := m.CheckVideo(context.Background(), mp4Item(), 0)
	if v.IsSafe || v.Reason != ReasonDetectorUnavailable {
		t.Errorf("Expected fail-closed verdict, got %+v", v)
	}
}

func TestCheckVideo_Disabled(t *testing.T) {
	det := &fakeDetector{}
	m, _ := newVideoModerator(t, &fakeDecoder{}, det, func(c *VideoModeratorConfig) { c.Enabled = false })
	v := m.CheckVideo(context.Background(), mp4Item(), 0)
	if !v.IsSafe || v.Reason != ReasonModerationDisabled {
		t.Errorf("Expected bypass verdict, got %+v", v)
	}
	if det.Calls() != 0 {
		t.Error("Expected detector not to be called")
	}
}
