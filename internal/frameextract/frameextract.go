// Package frameextract grabs single frames from a video via ffmpeg into
// temporary JPEG files, the shared subprocess primitive used by both the
// fingerprint engine and the face engine's auto-scan.
//
// Grounded on transcoder.go's exec.CommandContext + stderr capture idiom
// and TorrX's hls_encoding.go ffmpeg-invocation pattern (context-bound
// command, temp file cleanup on every exit path).
package frameextract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"clipper/internal/logging"
)

// DefaultTimeout bounds one ffmpeg frame grab.
const DefaultTimeout = 15 * time.Second

// Grabber extracts JPEG frames from video files via ffmpeg.
type Grabber struct {
	FFmpegPath string
	Timeout    time.Duration
}

// New creates a Grabber using the system "ffmpeg" binary.
func New() *Grabber {
	return &Grabber{FFmpegPath: "ffmpeg", Timeout: DefaultTimeout}
}

// FrameAt extracts one frame at the given timestamp (ffmpeg -ss syntax,
// e.g. "00:00:05.500" or a plain seconds value), scaled to 320px wide, and
// returns the JPEG bytes. The temporary file is always removed before
// returning, on both the success and error paths.
func (g *Grabber) FrameAt(ctx context.Context, videoPath string, timestamp string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "clipper-frame-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp frame file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("frameextract: failed to clean up temp file %s: %v", tmpPath, rmErr)
		}
	}()

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ffmpegPath := g.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	args := []string{
		"-y",
		"-ss", timestamp,
		"-i", videoPath,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		"-q:v", "2",
		tmpPath,
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w: %s", err, tail)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read extracted frame: %w", err)
	}
	return data, nil
}

// TimestampForPercent converts a percentage [0,100] of a video's duration
// (seconds) into an ffmpeg -ss timestamp in "HH:MM:SS.mmm" form.
func TimestampForPercent(durationSeconds float64, percent int) string {
	seconds := durationSeconds * float64(percent) / 100.0
	if seconds < 0 {
		seconds = 0
	}
	h := int(seconds) / 3600
	m := (int(seconds) % 3600) / 60
	s := seconds - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
