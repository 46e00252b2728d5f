// Package ffprobe extracts technical metadata (duration, dimensions, codec,
// bitrate, fps) from a media file by invoking the ffprobe binary and parsing
// its JSON output, the same exec.CommandContext/stderr-capture idiom used
// throughout internal/transcoder.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single ffprobe invocation.
const DefaultTimeout = 10 * time.Second

// Result is the Metadata Extractor's output for one file. Images legitimately
// leave Duration and FPS nil; Codec/Bitrate may also be nil for formats
// ffprobe can't introspect.
type Result struct {
	Duration *float64
	Width    *int
	Height   *int
	Codec    *string
	Bitrate  *int64
	FPS      *float64
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

// Extract runs ffprobe against path and returns its parsed technical
// metadata. An error is returned only for a missing/non-zero-exit ffprobe or
// unparseable JSON; a file ffprobe can read but can't fully describe still
// returns a Result with whichever fields were available.
func Extract(ctx context.Context, path string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := tailString(stderr.String(), 500)
		return nil, fmt.Errorf("ffprobe %q: %w: %s", path, err, tail)
	}

	var probe probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("ffprobe %q: parse json output: %w", path, err)
	}

	res := &Result{}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		res.Duration = &d
	}
	if b, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		res.Bitrate = &b
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		codec := s.CodecName
		res.Codec = &codec
		if s.Width > 0 {
			w := s.Width
			res.Width = &w
		}
		if s.Height > 0 {
			h := s.Height
			res.Height = &h
		}
		if fps := parseFrameRate(s.RFrameRate); fps != nil {
			res.FPS = fps
		}
		if res.Bitrate == nil {
			if b, err := strconv.ParseInt(s.BitRate, 10, 64); err == nil {
				res.Bitrate = &b
			}
		}
		break
	}

	return res, nil
}

// parseFrameRate computes fps = num/den from ffprobe's "num/den" r_frame_rate
// string, guarding against a zero denominator (which ffprobe reports for
// streams with no well-defined frame rate, e.g. "0/0").
func parseFrameRate(raw string) *float64 {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return nil
	}
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return nil
	}
	fps := num / den
	return &fps
}

func tailString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
