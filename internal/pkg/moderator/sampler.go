package moderator

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	DefaultMaxFrames = 30
	DefaultMinFrames = 5
)

// VideoInfo is the stream metadata needed to pick frames.
type VideoInfo struct {
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
}

// Duration returns the length of the video in seconds.
func (i VideoInfo) Duration() float64 {
	if i.FPS <= 0 {
		return 0
	}
	return float64(i.TotalFrames) / i.FPS
}

// VideoDecoder opens videos and extracts single frames as images.
type VideoDecoder interface {
	Probe(ctx context.Context, videoPath string) (VideoInfo, error)
	ExtractFrame(ctx context.Context, videoPath string, index int, fps float64, dst string) error
}

// ExtractedFrame is one decoded frame written to the frame directory.
type ExtractedFrame struct {
	Path      string
	Index     int
	Timestamp float64
}

// FrameSet is the frames of one video check. The directory is removed as a
// unit by Release.
type FrameSet struct {
	Dir    string
	Info   VideoInfo
	Frames []ExtractedFrame
}

// Release removes the frame directory and everything in it.
func (s *FrameSet) Release() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// SelectFrameIndices returns the frame indices to sample, ascending.
//
// Candidates are taken every floor(fps*interval) frames. More than maxFrames
// candidates are thinned by an even stride over the whole video. Videos with
// at least minFrames frames always yield minFrames samples or more.
func SelectFrameIndices(fps float64, totalFrames int, interval float64, maxFrames, minFrames int) []int {
	if totalFrames <= 0 {
		return nil
	}
	step := 1
	if fps > 0 && interval > 0 {
		step = max(1, int(math.Floor(fps*interval)))
	}
	indices := make([]int, 0, totalFrames/step+1)
	for i := 0; i < totalFrames; i += step {
		indices = append(indices, i)
	}

	if maxFrames > 0 && len(indices) > maxFrames {
		stride := (len(indices) + maxFrames - 1) / maxFrames
		thinned := make([]int, 0, maxFrames)
		for i := 0; i < len(indices); i += stride {
			thinned = append(thinned, indices[i])
		}
		indices = thinned
	}

	if minFrames > 0 && len(indices) < minFrames && totalFrames >= minFrames {
		stride := max(1, totalFrames/minFrames)
		indices = make([]int, 0, minFrames)
		for i := 0; i < totalFrames && len(indices) < minFrames; i += stride {
			indices = append(indices, i)
		}
	}
	return indices
}

// FrameSampler extracts a bounded set of frames from a video.
type FrameSampler struct {
	decoder   VideoDecoder
	dir       string
	maxFrames int
	minFrames int
	log       *log.Helper
}

// NewFrameSampler creates a FrameSampler. Non-positive bounds fall back to
// DefaultMaxFrames and DefaultMinFrames.
func NewFrameSampler(decoder VideoDecoder, tempDir string, maxFrames, minFrames int, logger log.Logger) *FrameSampler {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	if minFrames <= 0 {
		minFrames = DefaultMinFrames
	}
	return &FrameSampler{
		decoder:   decoder,
		dir:       tempDir,
		maxFrames: maxFrames,
		minFrames: minFrames,
		log:       log.NewHelper(logger),
	}
}

// Sample decodes the selected frames of videoPath into a fresh temp directory.
// Frames that fail to decode are skipped. An error wrapping ErrDecode is
// returned when the video cannot be opened; no directory is left behind then.
// Without a frame rate the duration and every timestamp are 0 and frames are
// picked by index alone.
func (s *FrameSampler) Sample(ctx context.Context, videoPath string, interval float64) (*FrameSet, error) {
	info, err := s.decoder.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: probe: %v", ErrDecode, err)
	}
	if info.FPS <= 0 {
		s.log.Warnf("frame rate unavailable for %s, sampling by frame index", filepath.Base(videoPath))
	}

	dir, err := os.MkdirTemp(s.dir, "postguard-frames-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create frame dir: %v", ErrStaging, err)
	}
	set := &FrameSet{Dir: dir, Info: info}

	indices := SelectFrameIndices(info.FPS, info.TotalFrames, interval, s.maxFrames, s.minFrames)
	s.log.Debugf("sampling %d of %d frames (fps=%.2f, interval=%.1fs)", len(indices), info.TotalFrames, info.FPS, interval)

	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			set.Release()
			return nil, err
		}
		dst := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", idx))
		if err := s.decoder.ExtractFrame(ctx, videoPath, idx, info.FPS, dst); err != nil {
			s.log.Warnf("skipping frame %d: %v", idx, err)
			continue
		}
		set.Frames = append(set.Frames, ExtractedFrame{
			Path:      dst,
			Index:     idx,
			Timestamp: frameTimestamp(idx, info.FPS),
		})
	}
	return set, nil
}

func frameTimestamp(index int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(index) / fps
}
