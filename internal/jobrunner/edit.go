package jobrunner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"clipper/internal/logging"
)

// CutMethod selects how an edit job trims a video, per §4.11.
type CutMethod string

const (
	// CutMethodFFmpeg re-encodes for frame-accurate cuts via -ss before -i
	// plus -accurate_seek and -t duration.
	CutMethodFFmpeg CutMethod = "ffmpeg"
	// CutMethodCopy stream-copies, keyframe-aligned, fastest, no crop.
	CutMethodCopy CutMethod = "copy"
	// CutMethodSmartcut shells out to an external keyframe-aware tool;
	// cut only, no crop.
	CutMethodSmartcut CutMethod = "smartcut"
)

// QualityPreset selects the (crf, preset) pair an ffmpeg-method edit
// re-encodes with.
type QualityPreset string

const (
	QualityFast     QualityPreset = "fast"
	QualityBalanced QualityPreset = "balanced"
	QualityHigh     QualityPreset = "high"
)

type qualitySettings struct {
	CRF    int
	Preset string
}

var qualityPresets = map[QualityPreset]qualitySettings{
	QualityFast:     {CRF: 28, Preset: "ultrafast"},
	QualityBalanced: {CRF: 23, Preset: "medium"},
	QualityHigh:     {CRF: 18, Preset: "slow"},
}

// CropPreset selects a target aspect ratio for a crop operation.
type CropPreset string

const (
	Crop9x16   CropPreset = "9:16"
	Crop16x9   CropPreset = "16:9"
	Crop1x1    CropPreset = "1:1"
	CropCustom CropPreset = "custom"
)

// CropRect is a pixel-space crop rectangle passed to ffmpeg's crop filter
// as crop=w:h:x:y.
type CropRect struct {
	X, Y, W, H int
}

// Operation is the kind of edit an EditRequest performs.
type Operation string

const (
	OperationCut        Operation = "cut"
	OperationCrop       Operation = "crop"
	OperationCutAndCrop Operation = "cut_and_crop"
)

// EditRequest describes one cut/crop edit job against a MediaItem already
// on disk. SourceWidth/SourceHeight of 0 signal "unknown"; SubmitEdit
// extracts them on demand via extractDims when a crop is requested.
type EditRequest struct {
	SourcePath  string
	MediaItemID int64
	Operation   Operation
	CutMethod   CutMethod

	// Start/End are HH:MM:SS; End empty means end-of-file for the cut
	// methods that support it (ffmpeg/copy only — smartcut requires both).
	Start string
	End   string

	Quality QualityPreset

	Crop       CropPreset
	CustomCrop *CropRect // required when Crop == CropCustom

	SourceWidth  int
	SourceHeight int

	// OutputDir is the destination directory, already resolved by the
	// caller to either the source's own folder or <root>/EDITED.
	OutputDir string
	Filename  string // optional; auto-derived when empty
}

func (req EditRequest) wantsCrop() bool {
	return req.Operation == OperationCrop || req.Operation == OperationCutAndCrop
}

func (req EditRequest) wantsCut() bool {
	return req.Operation == OperationCut || req.Operation == OperationCutAndCrop
}

// DimsExtractor resolves a source file's pixel dimensions on demand, when
// an EditRequest needs them for crop computation but doesn't carry them
// already (typically a fresh ffprobe call via internal/ffprobe).
type DimsExtractor func(ctx context.Context, path string) (width, height int, err error)

// SubmitEdit validates req, derives the output path, and starts processing
// in a background goroutine. It returns the created Job immediately in
// StatusPending; callers poll Get(job.ID) for progress.
func (r *Runner) SubmitEdit(ctx context.Context, req EditRequest, dims DimsExtractor) (*Job, error) {
	if req.SourcePath == "" {
		return nil, fmt.Errorf("jobrunner: edit requires a source path")
	}
	if req.CutMethod == CutMethodCopy && req.wantsCrop() {
		return nil, fmt.Errorf("jobrunner: cut method %q does not support cropping", CutMethodCopy)
	}
	if req.CutMethod == CutMethodSmartcut && req.wantsCrop() {
		return nil, fmt.Errorf("jobrunner: cut method %q does not support cropping", CutMethodSmartcut)
	}
	if req.CutMethod == CutMethodSmartcut && (req.Start == "" || req.End == "") {
		return nil, fmt.Errorf("jobrunner: smartcut requires both start and end")
	}
	if req.wantsCut() && req.Start == "" {
		return nil, fmt.Errorf("jobrunner: cut operations require a start time")
	}
	if req.Crop == CropCustom && req.CustomCrop == nil {
		return nil, fmt.Errorf("jobrunner: custom crop preset requires an explicit rectangle")
	}

	var crop *CropRect
	if req.wantsCrop() {
		w, h := req.SourceWidth, req.SourceHeight
		if (w == 0 || h == 0) && dims != nil {
			var err error
			w, h, err = dims(ctx, req.SourcePath)
			if err != nil {
				return nil, fmt.Errorf("jobrunner: resolve source dimensions: %w", err)
			}
		}
		if w == 0 || h == 0 {
			return nil, fmt.Errorf("jobrunner: crop requires known source dimensions")
		}
		c, err := computeCrop(req.Crop, w, h, req.CustomCrop)
		if err != nil {
			return nil, err
		}
		crop = c
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("jobrunner: create output dir: %w", err)
	}
	filename := req.Filename
	if filename == "" {
		filename = deriveEditFilename(req.SourcePath, req.Operation, req.Start, req.End)
	}
	outputPath := filepath.Join(req.OutputDir, filename)

	job := r.newJob(KindEdit)
	job.SourceMediaItemID = req.MediaItemID
	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel

	go func() {
		defer cancel()
		job.setProcessing()
		out, err := runEdit(jobCtx, r.ffmpegPath, req, crop, outputPath)
		job.finish(out, err)

		if err == nil && r.importer != nil && req.MediaItemID != 0 {
			resultID, impErr := r.importer.ImportEditOutput(ctx, req.MediaItemID, out)
			if impErr != nil {
				logging.Warn("jobrunner: job %d (%s, token=%s) edit succeeded but catalog import failed: %v", job.ID, job.Kind, job.Token, impErr)
			} else {
				job.setResultMediaItemID(resultID)
			}
		}
	}()

	return job, nil
}

func runEdit(ctx context.Context, ffmpegPath string, req EditRequest, crop *CropRect, outputPath string) (string, error) {
	switch req.CutMethod {
	case CutMethodCopy:
		return outputPath, runCopyCut(ctx, ffmpegPath, req, outputPath)
	case CutMethodSmartcut:
		return outputPath, runSmartcut(ctx, req, outputPath)
	default:
		return outputPath, runFFmpegEdit(ctx, ffmpegPath, req, crop, outputPath)
	}
}

func runFFmpegEdit(ctx context.Context, ffmpegPath string, req EditRequest, crop *CropRect, outputPath string) error {
	args := []string{}
	if req.Start != "" {
		args = append(args, "-ss", req.Start)
	}
	args = append(args, "-i", req.SourcePath, "-accurate_seek")
	if req.End != "" && req.Start != "" {
		dur, err := durationBetween(req.Start, req.End)
		if err != nil {
			return fmt.Errorf("compute duration: %w", err)
		}
		args = append(args, "-t", strconv.FormatFloat(dur, 'f', 3, 64))
	}
	if crop != nil {
		args = append(args, "-vf", fmt.Sprintf("crop=%d:%d:%d:%d", crop.W, crop.H, crop.X, crop.Y))
	}
	settings, ok := qualityPresets[req.Quality]
	if !ok {
		settings = qualityPresets[QualityBalanced]
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", settings.Preset,
		"-crf", strconv.Itoa(settings.CRF),
		"-c:a", "aac",
		"-y", outputPath,
	)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	if tail, err := runSubprocessStderr(cmd); err != nil {
		return fmt.Errorf("ffmpeg edit: %w: %s", err, tail)
	}
	return nil
}

func runCopyCut(ctx context.Context, ffmpegPath string, req EditRequest, outputPath string) error {
	args := []string{}
	if req.Start != "" {
		args = append(args, "-ss", req.Start)
	}
	args = append(args, "-i", req.SourcePath)
	if req.End != "" && req.Start != "" {
		dur, err := durationBetween(req.Start, req.End)
		if err != nil {
			return fmt.Errorf("compute duration: %w", err)
		}
		args = append(args, "-t", strconv.FormatFloat(dur, 'f', 3, 64))
	}
	args = append(args, "-c", "copy", "-y", outputPath)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	if tail, err := runSubprocessStderr(cmd); err != nil {
		return fmt.Errorf("ffmpeg copy cut: %w: %s", err, tail)
	}
	return nil
}

func runSmartcut(ctx context.Context, req EditRequest, outputPath string) error {
	cmd := exec.CommandContext(ctx, "smartcut", req.SourcePath, "-o", outputPath,
		"--start", req.Start, "--end", req.End)
	if tail, err := runSubprocessStderr(cmd); err != nil {
		return fmt.Errorf("smartcut: %w: %s", err, tail)
	}
	return nil
}

// computeCrop derives a centered crop rectangle for the given preset and
// source dimensions, or validates/returns the caller's explicit rectangle
// for CropCustom.
func computeCrop(preset CropPreset, srcW, srcH int, custom *CropRect) (*CropRect, error) {
	if preset == CropCustom {
		if custom.W <= 0 || custom.H <= 0 {
			return nil, fmt.Errorf("jobrunner: custom crop requires positive width/height")
		}
		if custom.X < 0 || custom.Y < 0 || custom.X+custom.W > srcW || custom.Y+custom.H > srcH {
			return nil, fmt.Errorf("jobrunner: custom crop rectangle exceeds source dimensions")
		}
		return custom, nil
	}

	var targetW, targetH int
	switch preset {
	case Crop9x16:
		targetW, targetH = 9, 16
	case Crop16x9:
		targetW, targetH = 16, 9
	case Crop1x1:
		targetW, targetH = 1, 1
	default:
		return nil, fmt.Errorf("jobrunner: unknown crop preset %q", preset)
	}

	// Fit the target aspect ratio inside the source, centered.
	w := srcW
	h := w * targetH / targetW
	if h > srcH {
		h = srcH
		w = h * targetW / targetH
	}
	w = evenDown(w)
	h = evenDown(h)
	x := (srcW - w) / 2
	y := (srcH - h) / 2
	return &CropRect{X: x, Y: y, W: w, H: h}, nil
}

func evenDown(v int) int {
	if v%2 != 0 {
		v--
	}
	if v < 2 {
		v = 2
	}
	return v
}

// deriveEditFilename builds "<stem>_<operation>_<start-end>.mp4", matching
// §4.11's "auto-derived with operation and time-range suffix, .mp4
// enforced".
func deriveEditFilename(sourcePath string, op Operation, start, end string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	rangePart := sanitizeTimeRange(start, end)
	if rangePart == "" {
		return fmt.Sprintf("%s_%s.mp4", stem, op)
	}
	return fmt.Sprintf("%s_%s_%s.mp4", stem, op, rangePart)
}

func sanitizeTimeRange(start, end string) string {
	clean := func(s string) string { return strings.ReplaceAll(s, ":", "") }
	switch {
	case start != "" && end != "":
		return clean(start) + "-" + clean(end)
	case start != "":
		return clean(start)
	default:
		return ""
	}
}

// timeToSeconds parses an HH:MM:SS (or MM:SS, or plain seconds) timestamp.
func timeToSeconds(ts string) (float64, error) {
	parts := strings.Split(ts, ":")
	var h, m int
	var s float64
	var err error
	switch len(parts) {
	case 1:
		s, err = strconv.ParseFloat(parts[0], 64)
	case 2:
		m, err = strconv.Atoi(parts[0])
		if err == nil {
			s, err = strconv.ParseFloat(parts[1], 64)
		}
	case 3:
		h, err = strconv.Atoi(parts[0])
		if err == nil {
			m, err = strconv.Atoi(parts[1])
		}
		if err == nil {
			s, err = strconv.ParseFloat(parts[2], 64)
		}
	default:
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	return float64(h*3600+m*60) + s, nil
}

func durationBetween(start, end string) (float64, error) {
	s, err := timeToSeconds(start)
	if err != nil {
		return 0, err
	}
	e, err := timeToSeconds(end)
	if err != nil {
		return 0, err
	}
	dur := e - s
	if dur <= 0 {
		return 0, fmt.Errorf("end %q is not after start %q", end, start)
	}
	return dur, nil
}
