package moderator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegDecoder decodes video with the ffprobe and ffmpeg binaries.
type FFmpegDecoder struct {
	FFprobePath string
	FFmpegPath  string
}

// NewFFmpegDecoder creates a decoder; empty paths resolve from PATH.
func NewFFmpegDecoder(ffprobePath, ffmpegPath string) *FFmpegDecoder {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{FFprobePath: ffprobePath, FFmpegPath: ffmpegPath}
}

type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the frame rate and frame count of the first video stream.
func (d *FFmpegDecoder) Probe(ctx context.Context, videoPath string) (VideoInfo, error) {
	out, err := d.run(ctx, d.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		videoPath,
	)
	if err != nil {
		return VideoInfo{}, err
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (VideoInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream")
	}
	st := probe.Streams[0]
	info := VideoInfo{Width: st.Width, Height: st.Height}

	info.FPS = parseRate(st.AvgFrameRate)
	if info.FPS <= 0 {
		info.FPS = parseRate(st.RFrameRate)
	}
	if n, err := strconv.Atoi(st.NbFrames); err == nil && n > 0 {
		info.TotalFrames = n
		return info, nil
	}
	// containers like webm omit nb_frames
	dur := st.Duration
	if dur == "" || dur == "N/A" {
		dur = probe.Format.Duration
	}
	if secs, err := strconv.ParseFloat(dur, 64); err == nil && info.FPS > 0 {
		info.TotalFrames = int(secs * info.FPS)
	}
	return info, nil
}

// parseRate parses "30000/1001" style rates.
func parseRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	dv, err := strconv.ParseFloat(den, 64)
	if err != nil || dv == 0 {
		return 0
	}
	return n / dv
}

// ExtractFrame writes frame index of videoPath to dst as a JPEG. It seeks by
// time when fps is known and selects by frame number otherwise.
func (d *FFmpegDecoder) ExtractFrame(ctx context.Context, videoPath string, index int, fps float64, dst string) error {
	args := []string{"-v", "error"}
	if fps > 0 {
		ts := strconv.FormatFloat(float64(index)/fps, 'f', 3, 64)
		args = append(args, "-ss", ts, "-i", videoPath)
	} else {
		args = append(args, "-i", videoPath, "-vf", fmt.Sprintf("select=eq(n\\,%d)", index), "-vsync", "0")
	}
	args = append(args, "-frames:v", "1", "-q:v", "2", "-y", dst)
	if _, err := d.run(ctx, d.FFmpegPath, args...); err != nil {
		return err
	}
	// ffmpeg exits 0 without output when seeking past the last frame
	if fi, err := os.Stat(dst); err != nil || fi.Size() == 0 {
		return fmt.Errorf("no frame %d", index)
	}
	return nil
}

func (d *FFmpegDecoder) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
