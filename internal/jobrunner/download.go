package jobrunner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// HLSDownloadRequest describes an M3U8 download by time range. Start/End
// are HH:MM:SS; Fallback enables a second attempt through an HLS-aware
// downloader tool if the primary ffmpeg invocation fails.
type HLSDownloadRequest struct {
	URL       string
	Start     string
	End       string
	Filename  string
	Fallback  bool
	OutputDir string
}

// SubmitHLSDownload starts an HLS download job in the background and
// returns it immediately in StatusPending.
func (r *Runner) SubmitHLSDownload(ctx context.Context, req HLSDownloadRequest) (*Job, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("jobrunner: hls download requires a url")
	}
	if req.Start == "" || req.End == "" {
		return nil, fmt.Errorf("jobrunner: hls download requires start and end")
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("jobrunner: create output dir: %w", err)
	}
	filename := req.Filename
	if filename == "" {
		filename = "download_" + sanitizeTimeRange(req.Start, req.End) + ".mp4"
	}
	outputPath := filepath.Join(req.OutputDir, filename)

	job := r.newJob(KindHLSDownload)
	job.mu.Lock()
	job.URL = req.URL
	job.mu.Unlock()

	jobCtx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	job.cancel = cancel

	go func() {
		defer cancel()
		job.setProcessing()
		out, err := runHLSDownload(jobCtx, r.ffmpegPath, r.hlsDownloader, req, outputPath)
		job.finish(out, err)
	}()

	return job, nil
}

func runHLSDownload(ctx context.Context, ffmpegPath, fallbackPath string, req HLSDownloadRequest, outputPath string) (string, error) {
	dur, err := durationBetween(req.Start, req.End)
	if err != nil {
		return "", fmt.Errorf("compute duration: %w", err)
	}

	primaryErr := runFFmpegHLSDownload(ctx, ffmpegPath, req.URL, req.Start, dur, outputPath)
	if primaryErr == nil {
		return outputPath, nil
	}
	if !req.Fallback {
		return "", primaryErr
	}

	// Fallback: HLS-aware downloader with a section selector, run with cwd
	// set to the output folder so it writes the requested filename there.
	cmd := exec.CommandContext(ctx, fallbackPath,
		"--download-sections", fmt.Sprintf("*%s-%s", req.Start, req.End),
		"-o", filepath.Base(outputPath),
		req.URL,
	)
	cmd.Dir = filepath.Dir(outputPath)
	if tail, err := runSubprocessStderr(cmd); err != nil {
		return "", fmt.Errorf("hls download failed (ffmpeg: %v); fallback downloader: %w: %s", primaryErr, err, tail)
	}
	return outputPath, nil
}

func runFFmpegHLSDownload(ctx context.Context, ffmpegPath, url, start string, duration float64, outputPath string) error {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-ss", start,
		"-i", url,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c", "copy",
		"-y", outputPath,
	)
	if tail, err := runSubprocessStderr(cmd); err != nil {
		return fmt.Errorf("ffmpeg hls download: %w: %s", err, tail)
	}
	return nil
}

// SOCKSDownloadRequest describes a proxied curl download. Proxy/Referer
// override the runner's process-global defaults when non-empty.
type SOCKSDownloadRequest struct {
	URL       string
	Filename  string
	Proxy     string
	Referer   string
	OutputDir string
}

// SubmitSOCKSDownload starts a SOCKS-proxied curl download job in the
// background and returns it immediately in StatusPending.
func (r *Runner) SubmitSOCKSDownload(ctx context.Context, req SOCKSDownloadRequest) (*Job, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("jobrunner: socks download requires a url")
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("jobrunner: socks download requires a filename")
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("jobrunner: create output dir: %w", err)
	}
	outputPath := filepath.Join(req.OutputDir, req.Filename)

	proxy := req.Proxy
	if proxy == "" {
		proxy = r.SOCKSProxy()
	}
	referer := req.Referer
	if referer == "" {
		referer = r.SOCKSReferer()
	}

	job := r.newJob(KindSOCKSDownload)
	job.mu.Lock()
	job.URL = req.URL
	job.mu.Unlock()

	jobCtx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	job.cancel = cancel

	go func() {
		defer cancel()
		job.setProcessing()
		err := runSOCKSDownload(jobCtx, r.curlPath, req.URL, proxy, referer, outputPath)
		job.finish(outputPath, err)
	}()

	return job, nil
}

// browserHeaders mimics a standard browser request, matching sites that
// reject bare curl requests.
var browserHeaders = []string{
	"User-Agent: Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Accept: text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language: en-US,en;q=0.9",
}

func runSOCKSDownload(ctx context.Context, curlPath, url, proxy, referer, outputPath string) error {
	args := []string{"-L", "-o", outputPath}
	for _, h := range browserHeaders {
		args = append(args, "-H", h)
	}
	if proxy != "" {
		args = append(args, "-x", proxy)
	}
	if referer != "" {
		args = append(args, "-H", "Referer: "+referer)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, curlPath, args...)
	if tail, err := runSubprocessStderr(cmd); err != nil {
		return fmt.Errorf("curl socks download: %w: %s", err, tail)
	}
	return nil
}
