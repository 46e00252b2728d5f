// Package jobrunner implements the Job Runner (§4.11): an in-memory
// registry of ffmpeg/curl-backed background jobs — video cut/crop edits,
// HLS downloads, and SOCKS-proxied downloads — each tracked through a
// pending -> processing -> {completed, failed} lifecycle with no
// persistence across restarts.
//
// Grounded on the teacher's internal/transcoder per-key-mutex + background
// goroutine + processes-map idiom for subprocess lifecycle, and on
// TorrX's hls_encoding.go for ffmpeg invocation and progress handling.
package jobrunner

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipper/internal/logging"
	"clipper/internal/metrics"
)

// Kind identifies the subprocess-backed operation a Job represents.
type Kind string

const (
	KindEdit          Kind = "edit"
	KindHLSDownload   Kind = "hls_download"
	KindSOCKSDownload Kind = "socks_download"
)

// Status is a Job's position in the pending -> processing -> {completed,
// failed} lifecycle. No other transitions are valid.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DownloadTimeout bounds a single download job (HLS or SOCKS), per §5's
// "per-job ceiling (e.g., 1 hour for downloads)".
const DownloadTimeout = 1 * time.Hour

// Job is one monotonically-numbered background unit of work. Fields beyond
// the identity ones are mutated only through the job's own mutex, since the
// background goroutine updates status/progress concurrently with readers.
type Job struct {
	mu sync.Mutex

	ID          int64
	Token       string // uuid correlation token, used only in log lines
	Kind        Kind
	Status      Status
	CreatedAt   time.Time
	CompletedAt *time.Time
	Error       string
	OutputPath  string
	Progress    float64

	// URL is populated for download jobs and scrubbed to
	// "[cleared after download]" once the job completes successfully, per
	// §4.11's SOCKS-download privacy contract. HLS downloads carry it too
	// so the same scrub rule can apply uniformly.
	URL string

	// SourceMediaItemID is the MediaItem an edit job was cut/cropped from
	// (0 for download jobs, which have no source item). ResultMediaItemID
	// is set once the output file has been imported into the catalog via
	// a single-file scan (§4.8/§4.11) — nil until then, including for
	// jobs with no importer wired or whose import failed.
	SourceMediaItemID int64
	ResultMediaItemID *int64

	cancel context.CancelFunc
}

func (j *Job) snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *j
	cp.cancel = nil
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.ResultMediaItemID != nil {
		id := *j.ResultMediaItemID
		cp.ResultMediaItemID = &id
	}
	return cp
}

func (j *Job) setResultMediaItemID(id int64) {
	j.mu.Lock()
	j.ResultMediaItemID = &id
	j.mu.Unlock()
}

func (j *Job) setProcessing() {
	j.mu.Lock()
	j.Status = StatusProcessing
	j.mu.Unlock()
	metrics.JobsInFlight.WithLabelValues(string(j.Kind)).Inc()
}

func (j *Job) setProgress(p float64) {
	j.mu.Lock()
	j.Progress = p
	j.mu.Unlock()
}

func (j *Job) finish(outputPath string, err error) {
	j.mu.Lock()
	now := time.Now()
	j.CompletedAt = &now
	j.OutputPath = outputPath
	if err != nil {
		j.Status = StatusFailed
		j.Error = err.Error()
	} else {
		j.Status = StatusCompleted
		j.Progress = 1
		// Privacy: scrub the source URL once a download job succeeds.
		if j.URL != "" {
			j.URL = "[cleared after download]"
		}
	}
	status := j.Status
	j.mu.Unlock()

	metrics.JobsInFlight.WithLabelValues(string(j.Kind)).Dec()
	metrics.JobsCompletedTotal.WithLabelValues(string(j.Kind), string(status)).Inc()
	metrics.JobDuration.WithLabelValues(string(j.Kind)).Observe(now.Sub(j.CreatedAt).Seconds())

	if err != nil {
		logging.Warn("jobrunner: job %d (%s, token=%s) failed: %v", j.ID, j.Kind, j.Token, err)
	} else {
		logging.Info("jobrunner: job %d (%s, token=%s) completed: %s", j.ID, j.Kind, j.Token, outputPath)
	}
}

// EditImporter is the boundary to the catalog's single-file scan, invoked
// once a cut/crop edit job finishes successfully so its output shows up in
// the catalog without a full category rescan. Kept as an interface so
// jobrunner doesn't import the database/reconciler packages directly.
type EditImporter interface {
	ImportEditOutput(ctx context.Context, sourceMediaItemID int64, outputPath string) (int64, error)
}

// Runner is the process-wide job registry. The zero value is not usable;
// construct with New.
type Runner struct {
	mu     sync.RWMutex
	jobs   map[int64]*Job
	nextID int64

	ffmpegPath string
	curlPath   string

	// SOCKS proxy/referer are process-global defaults that persist across
	// jobs until explicitly cleared (§4.11).
	socksMu      sync.Mutex
	socksProxy   string
	socksReferer string

	// hlsDownloader is the fallback HLS-aware downloader binary invoked
	// when ffmpeg fails and the caller requested fallback.
	hlsDownloader string

	// importer runs the post-edit single-file scan, when wired. A failed
	// import doesn't fail the edit job — the output file already exists on
	// disk; only its catalog visibility is affected.
	importer EditImporter
}

// SetEditImporter wires the catalog importer invoked after a successful
// edit job. Not required: edits still produce output files with no
// importer configured, they just aren't cataloged automatically.
func (r *Runner) SetEditImporter(importer EditImporter) {
	r.importer = importer
}

// New constructs a Runner. Empty paths fall back to resolving the binary
// from PATH at invocation time ("ffmpeg", "curl", "yt-dlp").
func New(ffmpegPath, curlPath, hlsDownloaderPath string) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if curlPath == "" {
		curlPath = "curl"
	}
	if hlsDownloaderPath == "" {
		hlsDownloaderPath = "yt-dlp"
	}
	return &Runner{
		jobs:          make(map[int64]*Job),
		ffmpegPath:    ffmpegPath,
		curlPath:      curlPath,
		hlsDownloader: hlsDownloaderPath,
	}
}

// newJob allocates a pending job of the given kind and registers it.
func (r *Runner) newJob(kind Kind) *Job {
	r.mu.Lock()
	r.nextID++
	j := &Job{
		ID:        r.nextID,
		Token:     uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	r.jobs[j.ID] = j
	r.mu.Unlock()

	metrics.JobsCreatedTotal.WithLabelValues(string(kind)).Inc()
	return j
}

// Get returns a snapshot of one job's current state.
func (r *Runner) Get(id int64) (Job, bool) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// List returns a snapshot of every tracked job, newest first.
func (r *Runner) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.snapshot())
	}
	r.mu.RUnlock()

	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].ID > out[k-1].ID; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out
}

// Remove forgets a job without deleting its output file. Returns false if
// no such job exists.
func (r *Runner) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

// ClearCompleted removes every job in a terminal state (completed or
// failed) and reports how many were removed.
func (r *Runner) ClearCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		s := j.snapshot().Status
		if s == StatusCompleted || s == StatusFailed {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// SetSOCKSProxy sets the process-global default proxy for SOCKS download
// jobs that don't supply their own.
func (r *Runner) SetSOCKSProxy(proxy string) {
	r.socksMu.Lock()
	r.socksProxy = proxy
	r.socksMu.Unlock()
}

// ClearSOCKSProxy clears the process-global default proxy.
func (r *Runner) ClearSOCKSProxy() { r.SetSOCKSProxy("") }

// SOCKSProxy returns the current process-global default proxy.
func (r *Runner) SOCKSProxy() string {
	r.socksMu.Lock()
	defer r.socksMu.Unlock()
	return r.socksProxy
}

// SetSOCKSReferer sets the process-global default referer for SOCKS
// download jobs that don't supply their own.
func (r *Runner) SetSOCKSReferer(referer string) {
	r.socksMu.Lock()
	r.socksReferer = referer
	r.socksMu.Unlock()
}

// ClearSOCKSReferer clears the process-global default referer.
func (r *Runner) ClearSOCKSReferer() { r.SetSOCKSReferer("") }

// SOCKSReferer returns the current process-global default referer.
func (r *Runner) SOCKSReferer() string {
	r.socksMu.Lock()
	defer r.socksMu.Unlock()
	return r.socksReferer
}

// Shutdown cancels every in-flight job's context. Output already written to
// disk is left in place; jobs mid-flight transition to failed as their
// subprocess is killed.
func (r *Runner) Shutdown() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobs {
		j.mu.Lock()
		cancel := j.cancel
		j.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

// runSubprocess runs cmd to completion, capturing stderr so callers can
// surface a bounded tail on failure (§7 "dependency" error kind: ≤500
// chars of subprocess stderr).
func runSubprocessStderr(cmd *exec.Cmd) (stderrTail string, err error) {
	out, runErr := cmd.CombinedOutput()
	if runErr == nil {
		return "", nil
	}
	s := string(out)
	if len(s) > 500 {
		s = s[len(s)-500:]
	}
	return s, runErr
}
