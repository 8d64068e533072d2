package moderator

import (
	"math"
	"strings"
)

// Stage is the pipeline step a verdict was produced at.
type Stage string

const (
	StageValidation Stage = "validation"
	StageModeration Stage = "moderation"
	StageCompleted  Stage = "completed"
)

// Decision is the outcome recorded in verdict details.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Reason codes attached to verdicts.
const (
	ReasonInvalidFormat       = "invalid_format"
	ReasonInvalidContentType  = "invalid_content_type"
	ReasonFileTooLarge        = "file_too_large"
	ReasonImageTooLarge       = "image_too_large"
	ReasonInvalidImage        = "invalid_image"
	ReasonModerationDisabled  = "moderation_disabled"
	ReasonDetectorUnavailable = "detector_unavailable"
	ReasonTimeout             = "timeout"
	ReasonStagingFailed       = "staging_failed"
	ReasonDecodeFailed        = "decode_failed"
	ReasonKnownBadImage       = "known_bad_image"
	ReasonUnsafeContent       = "unsafe_content"
	ReasonNoFrames            = "no_frames"
)

// DefaultThreshold is the minimum score at which an unsafe label counts.
const DefaultThreshold = 0.35

// DefaultUnsafeLabels is the detector vocabulary treated as NSFW. It covers
// both the current and the legacy label naming of the body-part detector.
var DefaultUnsafeLabels = []string{
	"FEMALE_GENITALIA_EXPOSED",
	"MALE_GENITALIA_EXPOSED",
	"FEMALE_BREAST_EXPOSED",
	"BUTTOCKS_EXPOSED",
	"ANUS_EXPOSED",
	"EXPOSED_GENITALIA_F",
	"EXPOSED_GENITALIA_M",
	"EXPOSED_BREAST_F",
	"EXPOSED_BUTTOCKS",
	"EXPOSED_ANUS",
	"MALE_BREAST_EXPOSED",
	"BELLY_EXPOSED",
	"ARMPITS_EXPOSED",
}

// Box is a detection bounding box in pixels.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is one (label, score) pair returned by the detector.
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Box   *Box    `json:"box,omitempty"`
}

// LabelSet is a set of normalized detector labels.
type LabelSet map[string]struct{}

// NewLabelSet builds a LabelSet, upper-casing every label.
func NewLabelSet(labels ...string) LabelSet {
	set := make(LabelSet, len(labels))
	for _, l := range labels {
		set[normalizeLabel(l)] = struct{}{}
	}
	return set
}

// Contains reports whether label is in the set.
func (s LabelSet) Contains(label string) bool {
	_, ok := s[normalizeLabel(label)]
	return ok
}

func normalizeLabel(l string) string {
	return strings.ToUpper(strings.TrimSpace(l))
}

// Evaluation is the pure result of mapping detections to a safety decision.
type Evaluation struct {
	IsSafe      bool
	UnsafeScore float64
	Matched     []Detection
	AllLabels   []string
}

// Evaluate maps detections to a verdict. A detection matches when its label is
// in labels and its score reaches threshold. Matches keep input order.
func Evaluate(detections []Detection, labels LabelSet, threshold float64) Evaluation {
	ev := Evaluation{}
	for _, d := range detections {
		ev.AllLabels = append(ev.AllLabels, d.Label)
		if !labels.Contains(d.Label) || d.Score < threshold {
			continue
		}
		ev.Matched = append(ev.Matched, d)
		if d.Score > ev.UnsafeScore {
			ev.UnsafeScore = d.Score
		}
	}
	// safe only when no label matched and the top unsafe score is under threshold
	ev.IsSafe = len(ev.Matched) == 0 && ev.UnsafeScore < threshold
	return ev
}

// Confidence carries the safe/unsafe scores of a completed check.
type Confidence struct {
	Safe   float64 `json:"safe"`
	Unsafe float64 `json:"unsafe"`
}

// FrameFinding describes one unsafe video frame.
type FrameFinding struct {
	FrameIndex  int         `json:"frame_index"`
	FrameNumber int         `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	UnsafeScore float64     `json:"unsafe_score"`
	UnsafeParts []Detection `json:"unsafe_parts"`
}

// Details holds the stage specific evidence of a verdict.
type Details struct {
	Decision Decision `json:"decision"`

	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format,omitempty"`

	TotalDetections int         `json:"total_detections,omitempty"`
	AllLabels       []string    `json:"all_labels,omitempty"`
	UnsafeParts     []Detection `json:"unsafe_parts,omitempty"`
	Threshold       float64     `json:"threshold,omitempty"`

	Duration          float64        `json:"duration,omitempty"`
	FramesChecked     int            `json:"frames_checked,omitempty"`
	UnsafeFramesCount int            `json:"unsafe_frames_count,omitempty"`
	UnsafeFrames      []FrameFinding `json:"unsafe_frames,omitempty"`
	FrameInterval     float64        `json:"frame_interval,omitempty"`
}

// Verdict is the immutable outcome of one image or video check.
type Verdict struct {
	IsSafe     bool        `json:"is_safe"`
	Message    string      `json:"message"`
	Stage      Stage       `json:"stage"`
	Reason     string      `json:"reason,omitempty"`
	Confidence *Confidence `json:"confidence"`
	Details    Details     `json:"details"`
}

// UnsafeScore returns the unsafe confidence, 0 when none was computed.
func (v *Verdict) UnsafeScore() float64 {
	if v == nil || v.Confidence == nil {
		return 0
	}
	return v.Confidence.Unsafe
}

func rejectVerdict(stage Stage, reason, message string) *Verdict {
	return &Verdict{
		IsSafe:  false,
		Message: message,
		Stage:   stage,
		Reason:  reason,
		Details: Details{Decision: DecisionRejected},
	}
}

func confidenceFor(unsafe float64) *Confidence {
	return &Confidence{
		Safe:   round(1-unsafe, 4),
		Unsafe: round(unsafe, 4),
	}
}

func decisionFor(safe bool) Decision {
	if safe {
		return DecisionApproved
	}
	return DecisionRejected
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
