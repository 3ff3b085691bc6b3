// Package ffmpeg adapts the ffmpeg/ffprobe binaries to the
// MediaToolkit port. Pure functions over files; the only state is the
// binary paths and a cached filter-availability probe.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/smendola/conciser/internal/faults"
	"github.com/smendola/conciser/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string

	watermark string

	drawtextOnce sync.Once
	drawtextOK   bool
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// WithWatermark burns text into every composed video, provided the
// ffmpeg build carries the drawtext filter.
func (a *Adapter) WithWatermark(text string) *Adapter {
	a.watermark = text
	return a
}

func (a *Adapter) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return string(b), faults.Internal(fmt.Errorf("%s: %w\n%s", filepath.Base(name), err, string(b)))
	}
	return string(b), nil
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, out string) error {
	_, err := a.run(ctx, a.ffmpeg,
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		out,
	)
	return err
}

func (a *Adapter) ExtractSegment(ctx context.Context, in, out string, startSec, durSec float64) error {
	_, err := a.run(ctx, a.ffmpeg,
		"-y",
		"-ss", fmtSeconds(startSec),
		"-t", fmtSeconds(durSec),
		"-i", in,
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		out,
	)
	return err
}

// NormalizeAudio applies EBU R128 loudness normalization.
func (a *Adapter) NormalizeAudio(ctx context.Context, in, out string) error {
	_, err := a.run(ctx, a.ffmpeg,
		"-y",
		"-i", in,
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11",
		out,
	)
	return err
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := a.run(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(out)
	sec, perr := strconv.ParseFloat(s, 64)
	if perr != nil {
		return 0, faults.Internal(fmt.Errorf("parse duration %q: %w", s, perr))
	}
	return sec, nil
}

// SplitAudio cuts in into parts equal time segments under outDir and
// returns them in timeline order.
func (a *Adapter) SplitAudio(ctx context.Context, in, outDir string, parts int) ([]string, error) {
	if parts <= 1 {
		return []string{in}, nil
	}
	dur, err := a.ProbeDuration(ctx, in)
	if err != nil {
		return nil, err
	}
	per := dur / float64(parts)
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	paths := make([]string, 0, parts)
	for i := 0; i < parts; i++ {
		out := filepath.Join(outDir, fmt.Sprintf("%s_chunk_%03d.wav", base, i))
		if err := a.ExtractSegment(ctx, in, out, float64(i)*per, per); err != nil {
			return nil, err
		}
		paths = append(paths, out)
	}
	return paths, nil
}

// ConcatAudio joins parts losslessly via the concat demuxer.
func (a *Adapter) ConcatAudio(ctx context.Context, parts []string, out string) error {
	if len(parts) == 0 {
		return faults.Internalf("concat: no input parts")
	}
	list := out + ".concat.txt"
	var sb strings.Builder
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return faults.Internal(err)
		}
		fmt.Fprintf(&sb, "file '%s'\n", abs)
	}
	if err := os.WriteFile(list, []byte(sb.String()), 0o644); err != nil {
		return faults.Internal(err)
	}
	defer os.Remove(list)

	_, err := a.run(ctx, a.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", list,
		"-c", "copy",
		out,
	)
	return err
}

func (a *Adapter) ExtractFrame(ctx context.Context, video, out string, atSec float64) error {
	_, err := a.run(ctx, a.ffmpeg,
		"-y",
		"-ss", fmtSeconds(atSec),
		"-i", video,
		"-frames:v", "1",
		"-q:v", "2",
		out,
	)
	return err
}

var showinfoPTS = regexp.MustCompile(`pts_time:([0-9]+\.?[0-9]*)`)

// DetectScenes runs a content-difference scene-cut pass. threshold is
// in (0,1); lower is more sensitive. Cut timestamps become scene
// boundaries spanning the whole source.
func (a *Adapter) DetectScenes(ctx context.Context, video string, threshold float64) ([]types.Scene, error) {
	dur, err := a.ProbeDuration(ctx, video)
	if err != nil {
		return nil, err
	}

	out, err := a.run(ctx, a.ffmpeg,
		"-i", video,
		"-vf", fmt.Sprintf("select='gt(scene,%s)',showinfo", fmtSeconds(threshold)),
		"-f", "null", "-",
	)
	if err != nil {
		return nil, err
	}

	cuts := []float64{0}
	for _, m := range showinfoPTS.FindAllStringSubmatch(out, -1) {
		t, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil || t <= 0 || t >= dur {
			continue
		}
		cuts = append(cuts, t)
	}
	sort.Float64s(cuts)

	if len(cuts) < 2 {
		return nil, nil // no cuts found at this threshold
	}

	scenes := make([]types.Scene, 0, len(cuts))
	for i, start := range cuts {
		end := dur
		if i < len(cuts)-1 {
			end = cuts[i+1]
		}
		scenes = append(scenes, types.Scene{ID: i, Start: start, End: end})
	}
	return scenes, nil
}

func (a *Adapter) StaticVideo(ctx context.Context, frame, audio, out string) error {
	dur, err := a.ProbeDuration(ctx, audio)
	if err != nil {
		return err
	}
	_, err = a.run(ctx, a.ffmpeg,
		"-y",
		"-loop", "1",
		"-i", frame,
		"-i", audio,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-t", fmtSeconds(dur),
		out,
	)
	return err
}

// SlideshowVideo renders the timed frames over the narration track.
// Every frame gets its own keyframe so scene cuts stay seekable.
func (a *Adapter) SlideshowVideo(ctx context.Context, timings []types.FrameTiming, audio, out string) error {
	if len(timings) == 0 {
		return faults.Internalf("slideshow: no frame timings")
	}

	list := out + ".concat.txt"
	var sb strings.Builder
	for _, ft := range timings {
		abs, err := filepath.Abs(ft.Path)
		if err != nil {
			return faults.Internal(err)
		}
		fmt.Fprintf(&sb, "file '%s'\n", abs)
		fmt.Fprintf(&sb, "duration %.3f\n", ft.Duration)
	}
	// concat demuxer ignores the last duration unless the final frame
	// is repeated
	last, err := filepath.Abs(timings[len(timings)-1].Path)
	if err != nil {
		return faults.Internal(err)
	}
	fmt.Fprintf(&sb, "file '%s'\n", last)
	if err := os.WriteFile(list, []byte(sb.String()), 0o644); err != nil {
		return faults.Internal(err)
	}
	defer os.Remove(list)

	silent := out + ".noaudio.mp4"
	defer os.Remove(silent)
	if _, err := a.run(ctx, a.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", list,
		"-vf", "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-g", "1",
		"-movflags", "+faststart",
		silent,
	); err != nil {
		return err
	}

	_, err = a.run(ctx, a.ffmpeg,
		"-y",
		"-i", silent,
		"-i", audio,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-g", "1",
		"-movflags", "+faststart",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		out,
	)
	return err
}

var resolutions = map[string]string{
	"720p":  "1280:720",
	"1080p": "1920:1080",
	"4k":    "3840:2160",
}

// Compose muxes the rendered video with the narration at the requested
// quality tier, adding the watermark when the build supports drawtext.
// A build without the filter skips the watermark instead of failing.
func (a *Adapter) Compose(ctx context.Context, video, audio, out, quality string) error {
	wm := a.watermark
	if wm != "" && !a.supportsDrawtext(ctx) {
		wm = ""
	}

	args := []string{
		"-y",
		"-i", video,
		"-i", audio,
	}
	if vf := composeFilter(quality, wm); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "192k",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		out,
	)
	_, err := a.run(ctx, a.ffmpeg, args...)
	return err
}

// supportsDrawtext probes `ffmpeg -filters` once per adapter. Probe
// failures read as unsupported so composition still runs.
func (a *Adapter) supportsDrawtext(ctx context.Context) bool {
	a.drawtextOnce.Do(func() {
		out, err := a.run(ctx, a.ffmpeg, "-filters")
		a.drawtextOK = err == nil && hasDrawtext(out)
	})
	return a.drawtextOK
}

func hasDrawtext(filtersOut string) bool {
	for _, line := range strings.Split(filtersOut, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "drawtext" {
			return true
		}
	}
	return false
}

// composeFilter builds the -vf chain: resolution scaling for known
// quality tiers (passthrough otherwise) and the optional watermark.
func composeFilter(quality, watermark string) string {
	var parts []string
	if res, ok := resolutions[quality]; ok {
		parts = append(parts, fmt.Sprintf(
			"scale=%s:force_original_aspect_ratio=decrease,pad=%s:(ow-iw)/2:(oh-ih)/2", res, res))
	}
	if watermark != "" {
		parts = append(parts, fmt.Sprintf(
			"drawtext=text='%s':fontcolor=white@0.7:fontsize=16:x=(w-text_w)/2:y=h-th-10",
			escapeDrawtext(watermark)))
	}
	return strings.Join(parts, ",")
}

func escapeDrawtext(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, ":", `\:`).Replace(s)
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
