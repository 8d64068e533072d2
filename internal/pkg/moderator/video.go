package moderator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// VideoModerator checks uploaded videos.
type VideoModerator interface {
	CheckVideo(ctx context.Context, item *MediaItem, interval time.Duration) *Verdict
}

// VideoModeratorConfig holds configuration for video moderation.
type VideoModeratorConfig struct {
	Enabled       bool
	Threshold     float64
	UnsafeLabels  []string
	MaxFileSize   int64
	FrameInterval time.Duration // Sample 1 frame per interval
	MaxFrames     int           // Maximum number of frames to check
	MinFrames     int           // Minimum frames for videos long enough
	Timeout       time.Duration // Whole video budget
	TempDir       string
}

// DefaultVideoModeratorConfig returns default configuration.
func DefaultVideoModeratorConfig() VideoModeratorConfig {
	return VideoModeratorConfig{
		Enabled:       true,
		Threshold:     DefaultThreshold,
		UnsafeLabels:  DefaultUnsafeLabels,
		MaxFileSize:   maxUploadBytes,
		FrameInterval: 2 * time.Second,
		MaxFrames:     DefaultMaxFrames,
		MinFrames:     DefaultMinFrames,
		Timeout:       60 * time.Second,
	}
}

// LocalVideoModerator samples frames and classifies each of them.
type LocalVideoModerator struct {
	config     VideoModeratorConfig
	labels     LabelSet
	stager     *Stager
	sampler    *FrameSampler
	classifier *Classifier
	log        *log.Helper
}

// NewLocalVideoModerator creates a new LocalVideoModerator.
func NewLocalVideoModerator(config VideoModeratorConfig, decoder VideoDecoder, classifier *Classifier, logger log.Logger) *LocalVideoModerator {
	if len(config.UnsafeLabels) == 0 {
		config.UnsafeLabels = DefaultUnsafeLabels
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = 2 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &LocalVideoModerator{
		config:     config,
		labels:     NewLabelSet(config.UnsafeLabels...),
		stager:     NewStager(config.TempDir),
		sampler:    NewFrameSampler(decoder, config.TempDir, config.MaxFrames, config.MinFrames, logger),
		classifier: classifier,
		log:        log.NewHelper(logger),
	}
}

// CheckVideo validates the video, samples frames every interval (the
// configured interval when zero) and rejects it if any frame is unsafe.
func (m *LocalVideoModerator) CheckVideo(ctx context.Context, item *MediaItem, interval time.Duration) *Verdict {
	start := time.Now()
	v := m.checkVideo(ctx, item, interval)
	observeVerdict(mediaVideo, v, time.Since(start))
	return v
}

func (m *LocalVideoModerator) checkVideo(ctx context.Context, item *MediaItem, interval time.Duration) *Verdict {
	if interval <= 0 {
		interval = m.config.FrameInterval
	}
	if v := validateFile(item, videoMIMETypes, m.config.MaxFileSize, "MP4, AVI, MOV, MKV and WEBM"); v != nil {
		return v
	}

	if !m.config.Enabled {
		m.log.Warnf("content moderation disabled, approving %q without detection", item.Filename)
		bypassedTotal.WithLabelValues(mediaVideo).Inc()
		return &Verdict{
			IsSafe:  true,
			Message: "Content moderation disabled",
			Stage:   StageCompleted,
			Reason:  ReasonModerationDisabled,
			Details: Details{Decision: DecisionApproved},
		}
	}
	if m.classifier == nil {
		m.log.Error("video detector not initialized, rejecting")
		return rejectVerdict(StageModeration, ReasonDetectorUnavailable, "Content moderation not available")
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	staged, err := m.stager.Stage(item, ".mp4")
	if err != nil {
		m.log.Errorf("staging %q: %v", item.Filename, err)
		return rejectVerdict(StageModeration, ReasonStagingFailed, "Content moderation failed")
	}
	defer staged.Release()

	frames, err := m.sampler.Sample(ctx, staged.Path, interval.Seconds())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			m.log.Errorf("frame extraction timed out for %q", item.Filename)
			return rejectVerdict(StageModeration, ReasonTimeout, "Content moderation timed out")
		}
		m.log.Errorf("frame extraction failed for %q: %v", item.Filename, err)
		return rejectVerdict(StageModeration, ReasonDecodeFailed, "Could not read video file")
	}
	defer frames.Release()

	duration := round(frames.Info.Duration(), 2)
	if len(frames.Frames) == 0 {
		m.log.Warnf("no frames extracted from %q, rejecting", item.Filename)
		v := rejectVerdict(StageModeration, ReasonNoFrames, "No frames could be extracted from video")
		v.Details.Duration = duration
		return v
	}

	var (
		findings []FrameFinding
		maxScore float64
	)
	for i, frame := range frames.Frames {
		detections, err := m.classifier.Detect(ctx, frame.Path)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				m.log.Errorf("video check timed out for %q at frame %d", item.Filename, frame.Index)
				return rejectVerdict(StageModeration, ReasonTimeout, "Content moderation timed out")
			}
			m.log.Errorf("detection failed for %q frame %d: %v", item.Filename, frame.Index, err)
			return rejectVerdict(StageModeration, ReasonDetectorUnavailable, "Content moderation not available")
		}
		ev := Evaluate(detections, m.labels, m.config.Threshold)
		if ev.UnsafeScore > maxScore {
			maxScore = ev.UnsafeScore
		}
		if !ev.IsSafe {
			findings = append(findings, FrameFinding{
				FrameIndex:  i,
				FrameNumber: frame.Index,
				Timestamp:   round(frame.Timestamp, 2),
				UnsafeScore: round(ev.UnsafeScore, 4),
				UnsafeParts: ev.Matched,
			})
		}
	}

	safe := len(findings) == 0
	v := &Verdict{
		IsSafe:     safe,
		Confidence: confidenceFor(maxScore),
		Details: Details{
			Decision:          decisionFor(safe),
			Threshold:         m.config.Threshold,
			Duration:          duration,
			FramesChecked:     len(frames.Frames),
			UnsafeFramesCount: len(findings),
			UnsafeFrames:      findings,
			FrameInterval:     interval.Seconds(),
		},
	}
	if safe {
		v.Stage = StageCompleted
		v.Message = "Video passed content moderation"
		return v
	}
	v.Stage = StageModeration
	v.Reason = ReasonUnsafeContent
	v.Message = fmt.Sprintf("Inappropriate content found in %d frame(s)", len(findings))
	return v
}
