// Package ytdlp adapts the yt-dlp binary to the Fetcher port.
package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/smendola/conciser/internal/faults"
	"github.com/smendola/conciser/internal/jobid"
	"github.com/smendola/conciser/internal/ports"
	"github.com/smendola/conciser/internal/types"
)

type Adapter struct {
	bin string
}

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Adapter{bin: binPath}
}

var formatStrings = map[string]string{
	"720p":  "bestvideo[height<=720]+bestaudio/best[height<=720]",
	"1080p": "bestvideo[height<=1080]+bestaudio/best[height<=1080]",
	"4k":    "bestvideo[height<=2160]+bestaudio/best[height<=2160]",
	"best":  "bestvideo+bestaudio/best",
}

// ytInfo is the slice of yt-dlp's info JSON we consume. Mapped into
// typed metadata here, at the boundary.
type ytInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Uploader string  `json:"uploader"`
	Ext      string  `json:"ext"`
}

// Fetch downloads the source media as destDir/source.<ext> and
// returns its metadata. The media keeps its native container; ffmpeg
// handles any format downstream.
func (a *Adapter) Fetch(ctx context.Context, locator, quality, destDir string) (ports.FetchResult, error) {
	format, ok := formatStrings[quality]
	if !ok {
		format = formatStrings["1080p"]
	}

	outTemplate := filepath.Join(destDir, "source.%(ext)s")
	cmd := exec.CommandContext(ctx, a.bin,
		"--no-playlist",
		"-f", format,
		"-o", outTemplate,
		"--print-json",
		"--no-simulate",
		locator,
	)
	out, err := cmd.Output()
	if err != nil {
		return ports.FetchResult{}, classifyDownloadError(err)
	}

	var info ytInfo
	if jerr := json.Unmarshal(firstJSONLine(out), &info); jerr != nil {
		return ports.FetchResult{}, faults.Internal(fmt.Errorf("parse yt-dlp output: %w", jerr))
	}
	if info.Ext == "" {
		info.Ext = "mp4"
	}

	md := types.Metadata{
		VideoID:         info.ID,
		Title:           info.Title,
		NormalizedTitle: jobid.NormalizeName(info.Title, 60),
		DurationSeconds: info.Duration,
		Uploader:        info.Uploader,
	}
	return ports.FetchResult{
		MediaPath: filepath.Join(destDir, "source."+info.Ext),
		Metadata:  md,
	}, nil
}

// firstJSONLine finds the info-JSON line among yt-dlp's mixed output.
func firstJSONLine(out []byte) []byte {
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "{") {
			return []byte(line)
		}
	}
	return out
}

// classifyDownloadError maps yt-dlp failures onto the fault taxonomy.
// Availability problems are user-facing; network hiccups retry.
func classifyDownloadError(err error) error {
	var stderr string
	if ee, ok := err.(*exec.ExitError); ok {
		stderr = string(ee.Stderr)
	}
	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "video unavailable"),
		strings.Contains(low, "private video"),
		strings.Contains(low, "members-only"),
		strings.Contains(low, "age-restricted"),
		strings.Contains(low, "sign in to confirm"):
		return faults.External(strings.TrimSpace(firstErrorLine(stderr)))
	case strings.Contains(low, "timed out"),
		strings.Contains(low, "connection reset"),
		strings.Contains(low, "temporary failure"),
		strings.Contains(low, "http error 429"),
		strings.Contains(low, "http error 5"):
		return faults.Transientf("download failed: %s", strings.TrimSpace(firstErrorLine(stderr)))
	default:
		return faults.Internal(fmt.Errorf("yt-dlp: %w\n%s", err, stderr))
	}
}

func firstErrorLine(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimPrefix(line, "ERROR: ")
		}
	}
	if i := strings.IndexByte(stderr, '\n'); i > 0 {
		return stderr[:i]
	}
	return stderr
}
