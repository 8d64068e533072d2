package moderator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newImageModerator(t *testing.T, det Detector, mutate func(*ImageModeratorConfig)) (*LocalImageModerator, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultImageModeratorConfig()
	cfg.TempDir = dir
	if mutate != nil {
		mutate(&cfg)
	}
	var c *Classifier
	if det != nil {
		c = NewClassifier(det)
	}
	return NewLocalImageModerator(cfg, c, nil, nil, testLogger), dir
}

func TestImageModeratorConfig_Defaults(t *testing.T) {
	config := DefaultImageModeratorConfig()

	if config.Threshold != 0.35 {
		t.Errorf("Expected Threshold 0.35, got %f", config.Threshold)
	}
	if config.MaxFileSize != 20*1024*1024 {
		t.Errorf("Expected MaxFileSize 20MiB, got %d", config.MaxFileSize)
	}
	if config.MaxDimension != 10000 {
		t.Errorf("Expected MaxDimension 10000, got %d", config.MaxDimension)
	}
	if !config.Enabled {
		t.Error("Expected moderation enabled by default")
	}
}

func TestCheckImage_SafePNG(t *testing.T) {
	det := &fakeDetector{}
	m, dir := newImageModerator(t, det, nil)

	v := m.CheckImage(context.Background(), newItem("photo.png", "image/png", pngBytes(t, 100, 100)))
	if !v.IsSafe {
		t.Fatalf("Expected safe verdict, got %+v", v)
	}
	if v.Stage != StageCompleted {
		t.Errorf("Expected stage completed, got %s", v.Stage)
	}
	if v.Confidence == nil || v.Confidence.Unsafe != 0 || v.Confidence.Safe != 1 {
		t.Errorf("Unexpected confidence %+v", v.Confidence)
	}
	if v.Details.Decision != DecisionApproved || v.Details.Width != 100 {
		t.Errorf("Unexpected details %+v", v.Details)
	}
	if det.Calls() != 1 {
		t.Errorf("Expected 1 detector call, got %d", det.Calls())
	}
	assertEmptyDir(t, dir)
}

func TestCheckImage_Unsafe(t *testing.T) {
	det := &fakeDetector{fn: func(string) ([]Detection, error) {
		return []Detection{{Label: "FEMALE_BREAST_EXPOSED", Score: 0.82}, {Label: "FACE_FEMALE", Score: 0.9}}, nil
	}}
	m, dir := newImageModerator(t, det, nil)

	v := m.CheckImage(context.Background(), newItem("a.jpg", "", pngBytes(t, 20, 20)))
	if v.IsSafe {
		t.Fatal("Expected unsafe verdict")
	}
	if v.Stage != StageModeration || v.Reason != ReasonUnsafeContent {
		t.Errorf("Unexpected stage/reason %s/%s", v.Stage, v.Reason)
	}
	if v.UnsafeScore() != 0.82 {
		t.Errorf("Expected unsafe 0.82, got %f", v.UnsafeScore())
	}
	if len(v.Details.UnsafeParts) != 1 || v.Details.TotalDetections != 2 {
		t.Errorf("Unexpected details %+v", v.Details)
	}
	assertEmptyDir(t, dir)
}

func TestCheckImage_Validation(t *testing.T) {
	png := pngBytes(t, 10, 10)
	tests := []struct {
		name       string
		item       *MediaItem
		wantReason string
		wantMsg    string
	}{
		{
			name:       "gif extension",
			item:       newItem("anim.gif", "image/gif", png),
			wantReason: ReasonInvalidFormat,
			wantMsg:    "Invalid file format: .gif",
		},
		{
			name:       "mime mismatch",
			item:       newItem("a.png", "image/jpeg", png),
			wantReason: ReasonInvalidContentType,
			wantMsg:    "Invalid content type",
		},
		{
			name: "oversized jpeg",
			item: &MediaItem{
				Filename:    "big.jpg",
				Size:        25 << 20,
				ContentType: "image/jpeg",
				Content:     bytes.NewReader(png),
			},
			wantReason: ReasonFileTooLarge,
			wantMsg:    "too large",
		},
		{
			name:       "not an image",
			item:       newItem("fake.jpg", "image/jpeg", []byte("definitely not a jpeg")),
			wantReason: ReasonInvalidImage,
			wantMsg:    "Invalid image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{}
			m, dir := newImageModerator(t, det, nil)
			v := m.CheckImage(context.Background(), tt.item)
			if v.IsSafe {
				t.Fatal("Expected rejection")
			}
			if v.Stage != StageValidation {
				t.Errorf("Expected validation stage, got %s", v.Stage)
			}
			if v.Reason != tt.wantReason {
				t.Errorf("Reason = %s, want %s", v.Reason, tt.wantReason)
			}
			if !strings.Contains(v.Message, tt.wantMsg) {
				t.Errorf("Message %q does not contain %q", v.Message, tt.wantMsg)
			}
			if det.Calls() != 0 {
				t.Errorf("Expected detector not to be called, got %d calls", det.Calls())
			}
			assertEmptyDir(t, dir)
		})
	}
}

func TestCheckImage_DimensionLimit(t *testing.T) {
	det := &fakeDetector{}
	m, _ := newImageModerator(t, det, func(c *ImageModeratorConfig) { c.MaxDimension = 50 })
	v := m.CheckImage(context.Background(), newItem("wide.png", "image/png", pngBytes(t, 51, 10)))
	if v.IsSafe || v.Reason != ReasonImageTooLarge || !strings.Contains(v.Message, "too large") {
		t.Errorf("Unexpected verdict %+v", v)
	}
	if det.Calls() != 0 {
		t.Error("Expected detector not to be called")
	}
}

func TestCheckImage_FailClosed(t *testing.T) {
	t.Run("no detector", func(t *testing.T) {
		m, _ := newImageModerator(t, nil, nil)
		v := m.CheckImage(context.Background(), newItem("a.png", "image/png", pngBytes(t, 10, 10)))
		if v.IsSafe || v.Reason != ReasonDetectorUnavailable {
			t.Errorf("Expected fail-closed verdict, got %+v", v)
		}
		if v.Message != "Content moderation not available" {
			t.Errorf("Unexpected message %q", v.Message)
		}
	})

	t.Run("detector error", func(t *testing.T) {
		det := &fakeDetector{fn: func(string) ([]Detection, error) { return nil, errors.New("connection refused") }}
		m, dir := newImageModerator(t, det, nil)
		v := m.CheckImage(context.Background(), newItem("a.png", "image/png", pngBytes(t, 10, 10)))
		if v.IsSafe || v.Reason != ReasonDetectorUnavailable || v.Confidence != nil {
			t.Errorf("Expected fail-closed verdict, got %+v", v)
		}
		if strings.Contains(v.Message, dir) {
			t.Error("verdict message leaks a temp path")
		}
		assertEmptyDir(t, dir)
	})

	t.Run("timeout", func(t *testing.T) {
		det := DetectorFunc(func(ctx context.Context, _ string) ([]Detection, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		m, dir := newImageModerator(t, det, func(c *ImageModeratorConfig) { c.Timeout = 20 * time.Millisecond })
		v := m.CheckImage(context.Background(), newItem("a.png", "image/png", pngBytes(t, 10, 10)))
		if v.IsSafe || v.Reason != ReasonTimeout {
			t.Errorf("Expected timeout verdict, got %+v", v)
		}
		assertEmptyDir(t, dir)
	})
}

func TestCheckImage_Disabled(t *testing.T) {
	det := &fakeDetector{}
	m, _ := newImageModerator(t, det, func(c *ImageModeratorConfig) { c.Enabled = false })

	v := m.CheckImage(context.Background(), newItem("a.png", "image/png", pngBytes(t, 10, 10)))
	if !v.IsSafe || v.Reason != ReasonModerationDisabled {
		t.Errorf("Expected bypass verdict, got %+v", v)
	}
	if det.Calls() != 0 {
		t.Error("Expected detector not to be called when disabled")
	}

	// validation still applies
	v = m.CheckImage(context.Background(), newItem("a.bmp", "", []byte("x")))
	if v.IsSafe {
		t.Error("Expected invalid format to be rejected even when disabled")
	}
}

func TestCheckImages_IndexAligned(t *testing.T) {
	det := &fakeDetector{fn: func(path string) ([]Detection, error) {
		return nil, nil
	}}
	m, dir := newImageModerator(t, det, func(c *ImageModeratorConfig) { c.Workers = 3 })
	items := []*MediaItem{
		newItem("1.png", "image/png", pngBytes(t, 10, 10)),
		newItem("2.txt", "text/plain", []byte("hello")),
		newItem("3.png", "image/png", pngBytes(t, 12, 12)),
		newItem("4.jpg", "image/jpeg", []byte("broken")),
	}
	res := m.CheckImages(context.Background(), items)
	if len(res) != len(items) {
		t.Fatalf("Expected %d results, got %d", len(items), len(res))
	}
	want := []bool{true, false, true, false}
	for i, v := range res {
		if v == nil {
			t.Fatalf("result %d is nil", i)
		}
		if v.IsSafe != want[i] {
			t.Errorf("result %d IsSafe = %v, want %v", i, v.IsSafe, want[i])
		}
	}
	if det.Calls() != 2 {
		t.Errorf("Expected 2 detector calls, got %d", det.Calls())
	}
	assertEmptyDir(t, dir)
}

func TestCheckImage_ApprovalNeedsLiveDetector(t *testing.T) {
	down := false
	det := &fakeDetector{fn: func(string) ([]Detection, error) {
		if down {
			return nil, errors.New("connection refused")
		}
		return nil, nil
	}}
	cfg := DefaultImageModeratorConfig()
	cfg.TempDir = t.TempDir()
	m := NewLocalImageModerator(cfg, NewClassifier(det), nil, NewVerdictCache(16, time.Minute), testLogger)

	data := pngBytes(t, 16, 16)
	if v := m.CheckImage(context.Background(), newItem("a.png", "image/png", data)); !v.IsSafe {
		t.Fatalf("Expected safe verdict with healthy detector, got %+v", v)
	}
	down = true
	v := m.CheckImage(context.Background(), newItem("a.png", "image/png", data))
	if v.IsSafe || v.Reason != ReasonDetectorUnavailable {
		t.Errorf("Expected detector_unavailable rejection, got IsSafe=%v reason=%q", v.IsSafe, v.Reason)
	}
	if det.Calls() != 2 {
		t.Errorf("Expected detector called for both checks, got %d", det.Calls())
	}
}

func TestCheckImage_CachesRejections(t *testing.T) {
	det := &fakeDetector{fn: func(string) ([]Detection, error) {
		return []Detection{{Label: "FEMALE_BREAST_EXPOSED", Score: 0.9}}, nil
	}}
	cfg := DefaultImageModeratorConfig()
	cfg.TempDir = t.TempDir()
	m := NewLocalImageModerator(cfg, NewClassifier(det), nil, NewVerdictCache(16, time.Minute), testLogger)

	data := pngBytes(t, 16, 16)
	first := m.CheckImage(context.Background(), newItem("a.png", "image/png", data))
	second := m.CheckImage(context.Background(), newItem("b.png", "image/png", data))
	if first.IsSafe || second.IsSafe {
		t.Fatal("Expected both rejected")
	}
	if second.Reason != ReasonUnsafeContent {
		t.Errorf("Expected unsafe_content, got %q", second.Reason)
	}
	if det.Calls() != 1 {
		t.Errorf("Expected cached second check, detector called %d times", det.Calls())
	}
}

func TestCheckImage_CacheSkipsFailures(t *testing.T) {
	fail := true
	det := &fakeDetector{fn: func(string) ([]Detection, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return nil, nil
	}}
	cfg := DefaultImageModeratorConfig()
	cfg.TempDir = t.TempDir()
	m := NewLocalImageModerator(cfg, NewClassifier(det), nil, NewVerdictCache(16, time.Minute), testLogger)

	data := pngBytes(t, 16, 16)
	if v := m.CheckImage(context.Background(), newItem("a.png", "", data)); v.IsSafe {
		t.Fatal("Expected failure verdict")
	}
	fail = false
	if v := m.CheckImage(context.Background(), newItem("a.png", "", data)); !v.IsSafe {
		t.Error("Expected failure verdict not to be cached")
	}
}
