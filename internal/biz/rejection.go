package biz

import (
	"fmt"
	"strconv"
	"strings"

	"postguard/internal/pkg/moderator"
)

// ReasonModerationRejected is the error reason returned to clients.
const ReasonModerationRejected = "MODERATION_REJECTED"

// maxListedTimestamps bounds the unsafe frame timestamps quoted in a message.
const maxListedTimestamps = 3

// RejectedItem explains why one uploaded file failed moderation.
type RejectedItem struct {
	Index             int                      `json:"index"`
	Filename          string                   `json:"filename"`
	Stage             moderator.Stage          `json:"stage"`
	Reason            string                   `json:"reason,omitempty"`
	Message           string                   `json:"message"`
	UnsafeScore       float64                  `json:"unsafe_score"`
	UnsafeParts       []moderator.Detection    `json:"unsafe_parts,omitempty"`
	UnsafeFramesCount int                      `json:"unsafe_frames_count,omitempty"`
	UnsafeFrames      []moderator.FrameFinding `json:"unsafe_frames,omitempty"`
}

func rejectedItem(index int, filename string, v *moderator.Verdict) RejectedItem {
	return RejectedItem{
		Index:             index,
		Filename:          filename,
		Stage:             v.Stage,
		Reason:            v.Reason,
		Message:           v.Message,
		UnsafeScore:       v.UnsafeScore(),
		UnsafeParts:       v.Details.UnsafeParts,
		UnsafeFramesCount: v.Details.UnsafeFramesCount,
		UnsafeFrames:      v.Details.UnsafeFrames,
	}
}

// RejectionError is returned by CreatePost when any media item fails
// moderation. It lists every failing item, not just the first.
type RejectionError struct {
	PostType PostType
	Items    []RejectedItem
}

func (e *RejectionError) Error() string {
	if e.PostType == PostTypeVideo && len(e.Items) == 1 {
		return videoMessage(e.Items[0])
	}
	details := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		if len(it.UnsafeParts) == 0 {
			details = append(details, it.Filename+": "+it.Message)
			continue
		}
		parts := make([]string, len(it.UnsafeParts))
		for i, p := range it.UnsafeParts {
			parts[i] = fmt.Sprintf("%s (%.2f)", p.Label, p.Score)
		}
		details = append(details, it.Filename+": "+strings.Join(parts, ", "))
	}
	return fmt.Sprintf("Content moderation failed for %d image(s): %s", len(e.Items), strings.Join(details, "; "))
}

func videoMessage(it RejectedItem) string {
	if len(it.UnsafeFrames) == 0 {
		return it.Message
	}
	n := min(len(it.UnsafeFrames), maxListedTimestamps)
	stamps := make([]string, n)
	for i, f := range it.UnsafeFrames[:n] {
		stamps[i] = formatSeconds(f.Timestamp) + "s"
	}
	msg := fmt.Sprintf("Video contains inappropriate content. %d unsafe frame(s) detected at: %s",
		it.UnsafeFramesCount, strings.Join(stamps, ", "))
	if len(it.UnsafeFrames) > maxListedTimestamps {
		msg += " ..."
	}
	return msg
}

// formatSeconds keeps one decimal for whole seconds (4 -> "4.0").
func formatSeconds(s float64) string {
	if s == float64(int64(s)) {
		return strconv.FormatFloat(s, 'f', 1, 64)
	}
	return strconv.FormatFloat(s, 'f', -1, 64)
}
