package moderator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
)

// fakeDetector records calls and answers with fn.
type fakeDetector struct {
	mu    sync.Mutex
	calls int
	fn    func(path string) ([]Detection, error)
}

func (d *fakeDetector) Detect(ctx context.Context, path string) ([]Detection, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if d.fn == nil {
		return nil, nil
	}
	return d.fn(path)
}

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newItem(name, contentType string, data []byte) *MediaItem {
	return &MediaItem{
		Filename:    name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Content:     bytes.NewReader(data),
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected temp dir to be empty, found %v", names)
	}
}

var testLogger = log.NewStdLogger(os.Stderr)

func TestEvaluate_NoDetections(t *testing.T) {
	ev := Evaluate(nil, NewLabelSet(DefaultUnsafeLabels...), DefaultThreshold)
	if !ev.IsSafe {
		t.Error("Expected empty detections to be safe")
	}
	if ev.UnsafeScore != 0 {
		t.Errorf("Expected unsafe score 0, got %f", ev.UnsafeScore)
	}
}

func TestEvaluate(t *testing.T) {
	labels := NewLabelSet(DefaultUnsafeLabels...)
	tests := []struct {
		name        string
		detections  []Detection
		wantSafe    bool
		wantScore   float64
		wantMatched int
	}{
		{
			name:       "safe label above threshold",
			detections: []Detection{{Label: "FACE_FEMALE", Score: 0.99}},
			wantSafe:   true,
		},
		{
			name:       "unsafe label below threshold",
			detections: []Detection{{Label: "BUTTOCKS_EXPOSED", Score: 0.34}},
			wantSafe:   true,
		},
		{
			name:        "unsafe label at threshold",
			detections:  []Detection{{Label: "BUTTOCKS_EXPOSED", Score: 0.35}},
			wantSafe:    false,
			wantScore:   0.35,
			wantMatched: 1,
		},
		{
			name: "legacy label variant and case",
			detections: []Detection{
				{Label: "exposed_breast_f", Score: 0.6},
				{Label: "FEMALE_GENITALIA_EXPOSED", Score: 0.8},
				{Label: "FACE_MALE", Score: 0.9},
			},
			wantSafe:    false,
			wantScore:   0.8,
			wantMatched: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Evaluate(tt.detections, labels, DefaultThreshold)
			if ev.IsSafe != tt.wantSafe {
				t.Errorf("IsSafe = %v, want %v", ev.IsSafe, tt.wantSafe)
			}
			if ev.UnsafeScore != tt.wantScore {
				t.Errorf("UnsafeScore = %f, want %f", ev.UnsafeScore, tt.wantScore)
			}
			if len(ev.Matched) != tt.wantMatched {
				t.Errorf("Matched = %d, want %d", len(ev.Matched), tt.wantMatched)
			}
			if len(ev.AllLabels) != len(tt.detections) {
				t.Errorf("AllLabels = %d, want %d", len(ev.AllLabels), len(tt.detections))
			}
		})
	}
}

func TestEvaluate_MatchedKeepsInputOrder(t *testing.T) {
	dets := []Detection{
		{Label: "BELLY_EXPOSED", Score: 0.4},
		{Label: "ANUS_EXPOSED", Score: 0.9},
		{Label: "ARMPITS_EXPOSED", Score: 0.5},
	}
	ev := Evaluate(dets, NewLabelSet(DefaultUnsafeLabels...), DefaultThreshold)
	want := []string{"BELLY_EXPOSED", "ANUS_EXPOSED", "ARMPITS_EXPOSED"}
	for i, d := range ev.Matched {
		if d.Label != want[i] {
			t.Errorf("Matched[%d] = %s, want %s", i, d.Label, want[i])
		}
	}
}

func TestEvaluate_ThresholdMonotonic(t *testing.T) {
	labels := NewLabelSet(DefaultUnsafeLabels...)
	dets := []Detection{
		{Label: "BELLY_EXPOSED", Score: 0.42},
		{Label: "MALE_BREAST_EXPOSED", Score: 0.71},
		{Label: "FACE_FEMALE", Score: 0.95},
	}
	wasSafe := false
	for th := 0.0; th <= 1.0; th += 0.01 {
		ev := Evaluate(dets, labels, th)
		if wasSafe && !ev.IsSafe {
			t.Fatalf("verdict became unsafe again at threshold %.2f", th)
		}
		wasSafe = ev.IsSafe
	}
	if !wasSafe {
		t.Error("Expected verdict to be safe at threshold 1.0")
	}
}

func TestVerdict_UnsafeScore(t *testing.T) {
	var nilVerdict *Verdict
	if nilVerdict.UnsafeScore() != 0 {
		t.Error("Expected nil verdict score 0")
	}
	v := rejectVerdict(StageValidation, ReasonInvalidFormat, "bad")
	if v.Confidence != nil {
		t.Error("Expected error-derived verdict to carry no confidence")
	}
	v.Confidence = confidenceFor(0.123456)
	if v.UnsafeScore() != 0.1235 {
		t.Errorf("Expected rounded 0.1235, got %f", v.UnsafeScore())
	}
	if v.Confidence.Safe != 0.8765 {
		t.Errorf("Expected safe 0.8765, got %f", v.Confidence.Safe)
	}
}

func TestClassifier_NormalizesAndWraps(t *testing.T) {
	c := NewClassifier(DetectorFunc(func(ctx context.Context, path string) ([]Detection, error) {
		return []Detection{{Label: " belly_exposed ", Score: 1.7}}, nil
	}))
	dets, err := c.Detect(context.Background(), "x.jpg")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if dets[0].Label != "BELLY_EXPOSED" || dets[0].Score != 1 {
		t.Errorf("Unexpected detection %+v", dets[0])
	}

	if NewClassifier(nil) != nil {
		t.Error("Expected nil classifier for nil detector")
	}
	var missing *Classifier
	if _, err := missing.Detect(context.Background(), "x.jpg"); err != ErrDetectorUnavailable {
		t.Errorf("Expected ErrDetectorUnavailable, got %v", err)
	}
}
