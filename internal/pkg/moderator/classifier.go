package moderator

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Detector is the external body-part detector. Implementations must be safe
// for concurrent use.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, imagePath string) ([]Detection, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	return f(ctx, imagePath)
}

// Classifier wraps a Detector with label normalization and error
// classification. It never retries and never caches.
type Classifier struct {
	detector Detector
}

// NewClassifier returns nil when detector is nil so pipelines can treat a
// missing classifier as unavailable.
func NewClassifier(detector Detector) *Classifier {
	if detector == nil {
		return nil
	}
	return &Classifier{detector: detector}
}

// Detect runs the detector on one image. Every failure wraps
// ErrDetectorUnavailable.
func (c *Classifier) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	if c == nil || c.detector == nil {
		return nil, ErrDetectorUnavailable
	}
	start := time.Now()
	raw, err := c.detector.Detect(ctx, imagePath)
	detectorDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorUnavailable, err)
	}
	out := make([]Detection, 0, len(raw))
	for _, d := range raw {
		d.Label = normalizeLabel(d.Label)
		d.Score = clamp01(d.Score)
		out = append(out, d)
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
