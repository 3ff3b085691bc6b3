// Package ports declares the interfaces between the orchestrator and
// its external collaborators. Every stage service is a single blocking
// call; classification of its failures is the adapter's job.
package ports

import (
	"context"

	"github.com/smendola/conciser/internal/types"
)

// FetchResult is the downloaded media plus its source metadata.
type FetchResult struct {
	MediaPath string
	Metadata  types.Metadata
}

// Fetcher downloads the source video into destDir.
type Fetcher interface {
	Fetch(ctx context.Context, locator, quality, destDir string) (FetchResult, error)
}

// Transcriber turns one audio file into a timed transcript. Callers
// are responsible for keeping the file under the provider's size
// limit; oversized inputs go through the chunking wrapper first.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, languageHint string) (types.Transcript, error)
}

// Condenser rewrites a transcript down to approximately targetWords.
type Condenser interface {
	Condense(ctx context.Context, transcript string, durationMinutes float64, aggressiveness, targetWords int) (types.CondensedScript, error)
}

// VoiceCloner creates and tears down cloned voices.
type VoiceCloner interface {
	CloneVoice(ctx context.Context, name string, samplePaths []string) (voiceID string, err error)
	DeleteVoice(ctx context.Context, voiceID string) error
}

// SpeechGenerator synthesizes narration audio for one text chunk.
// rate is a signed percentage such as "+0%" or "-25%"; providers that
// do not support it ignore it.
type SpeechGenerator interface {
	GenerateSpeech(ctx context.Context, text, voiceID, rate, outPath string) error
}

// AvatarRenderer produces a talking-head video from a still frame and
// the narration track.
type AvatarRenderer interface {
	RenderAvatar(ctx context.Context, framePath, audioPath, outPath string) error
}

// MediaToolkit wraps ffmpeg/ffprobe. Pure functions over files.
type MediaToolkit interface {
	ExtractAudioMono16k(ctx context.Context, in, out string) error
	ExtractSegment(ctx context.Context, in, out string, startSec, durSec float64) error
	NormalizeAudio(ctx context.Context, in, out string) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
	SplitAudio(ctx context.Context, in, outDir string, parts int) ([]string, error)
	ConcatAudio(ctx context.Context, parts []string, out string) error
	ExtractFrame(ctx context.Context, video, out string, atSec float64) error
	DetectScenes(ctx context.Context, video string, threshold float64) ([]types.Scene, error)
	StaticVideo(ctx context.Context, frame, audio, out string) error
	SlideshowVideo(ctx context.Context, timings []types.FrameTiming, audio, out string) error
	Compose(ctx context.Context, video, audio, out, quality string) error
}
