// Package splitter cuts a source video into fixed-length segments using
// ffmpeg and extracts keyframes for captioning.
package splitter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SplitError marks a job-fatal source problem: unreadable file, zero
// duration, or an unsupported container.
type SplitError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SplitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("split failed for %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("split failed for %s: %s", e.Path, e.Reason)
}

func (e *SplitError) Unwrap() error {
	return e.Err
}

// Window is one planned segment: a start offset and duration in seconds.
type Window struct {
	Start    float64
	Duration float64
}

// Plan lays fixed-length windows over the given duration. The final short
// remainder is kept unless it is shorter than minSeconds.
func Plan(duration, windowSeconds, minSeconds float64) []Window {
	if duration <= 0 || windowSeconds <= 0 {
		return nil
	}
	var windows []Window
	for start := 0.0; start < duration; start += windowSeconds {
		d := windowSeconds
		if start+d > duration {
			d = duration - start
		}
		if d < minSeconds {
			break
		}
		windows = append(windows, Window{Start: start, Duration: d})
	}
	return windows
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// IsSupportedVideo reports whether the filename carries a supported video
// extension.
func IsSupportedVideo(filename string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(filename))]
}

// FFmpeg wraps the ffmpeg/ffprobe binaries. Cut is deterministic per
// offset, so a retried segment re-derives identical bytes.
type FFmpeg interface {
	Probe(ctx context.Context, path string) (float64, error)
	CutSegment(ctx context.Context, src string, w Window, dst string) error
	ExtractFrames(ctx context.Context, src, outDir string) ([]string, error)
}

type RealFFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func NewRealFFmpeg(logger *slog.Logger) *RealFFmpeg {
	return &RealFFmpeg{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		logger:      logger,
	}
}

// Probe returns the container duration in seconds.
func (f *RealFFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, &SplitError{Path: path, Reason: strings.TrimSpace(stderr.String()), Err: err}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, &SplitError{Path: path, Reason: "unparseable duration", Err: err}
	}
	if duration <= 0 {
		return 0, &SplitError{Path: path, Reason: "zero duration"}
	}
	return duration, nil
}

func (f *RealFFmpeg) CutSegment(ctx context.Context, src string, w Window, dst string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y",
		"-ss", formatSeconds(w.Start),
		"-i", src,
		"-t", formatSeconds(w.Duration),
		"-vf", "setpts=PTS-STARTPTS",
		"-an",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-avoid_negative_ts", "make_zero",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg cut at %s failed: %s: %w", formatSeconds(w.Start), lastLine(stderr.String()), err)
	}
	f.logger.Debug("cut segment", "start", w.Start, "duration", w.Duration, "output", dst)
	return nil
}

// ExtractFrames samples one frame per second from the segment and writes
// JPEG files into outDir. Returns the frame paths in time order.
func (f *RealFFmpeg) ExtractFrames(ctx context.Context, src, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y",
		"-i", src,
		"-vf", "fps=1",
		"-q:v", "2",
		filepath.Join(outDir, "frame_%03d.jpg"),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %s: %w", lastLine(stderr.String()), err)
	}

	frames, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(frames)
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from %s", src)
	}
	return frames, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

var _ FFmpeg = (*RealFFmpeg)(nil)
