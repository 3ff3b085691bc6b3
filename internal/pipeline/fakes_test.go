package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/smendola/conciser/internal/ports"
	"github.com/smendola/conciser/internal/types"
)

// The fakes write real (tiny) files so the store's validity checks
// exercise the same paths they would in production.

type fakeFetcher struct {
	calls int32
	meta  types.Metadata
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, locator, quality, destDir string) (ports.FetchResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return ports.FetchResult{}, f.err
	}
	p := destDir + "/source.mp4"
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		return ports.FetchResult{}, err
	}
	return ports.FetchResult{MediaPath: p, Metadata: f.meta}, nil
}

type fakeTranscriber struct {
	calls int32
	// errs are consumed one per call before tr is returned.
	errs []error
	tr   types.Transcript
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, languageHint string) (types.Transcript, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if int(n) <= len(f.errs) {
		return types.Transcript{}, f.errs[n-1]
	}
	return f.tr, nil
}

type fakeCondenser struct {
	calls int32
	cs    types.CondensedScript
	err   error
}

func (f *fakeCondenser) Condense(ctx context.Context, transcript string, durationMinutes float64, aggressiveness, targetWords int) (types.CondensedScript, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return types.CondensedScript{}, f.err
	}
	return f.cs, nil
}

type fakeVoices struct {
	cloneCalls  int32
	deleteCalls int32
	deletedIDs  []string
}

func (f *fakeVoices) CloneVoice(ctx context.Context, name string, samplePaths []string) (string, error) {
	atomic.AddInt32(&f.cloneCalls, 1)
	return "voice-" + name, nil
}

func (f *fakeVoices) DeleteVoice(ctx context.Context, voiceID string) error {
	atomic.AddInt32(&f.deleteCalls, 1)
	f.deletedIDs = append(f.deletedIDs, voiceID)
	return nil
}

type fakeSpeech struct {
	calls int32
	texts []string
}

func (f *fakeSpeech) GenerateSpeech(ctx context.Context, text, voiceID, rate, outPath string) error {
	atomic.AddInt32(&f.calls, 1)
	f.texts = append(f.texts, text)
	return os.WriteFile(outPath, []byte("mp3"), 0o644)
}

type fakeAvatar struct{ calls int32 }

func (f *fakeAvatar) RenderAvatar(ctx context.Context, framePath, audioPath, outPath string) error {
	atomic.AddInt32(&f.calls, 1)
	return os.WriteFile(outPath, []byte("avatar"), 0o644)
}

// fakeMedia is a MediaToolkit whose behaviors the tests tune per
// case. The mutex covers fields the scene branch may touch from its
// background goroutine.
type fakeMedia struct {
	mu           sync.Mutex
	audioBytes   int
	speechDur    float64
	scenes       []types.Scene
	sceneErr     error
	detectCalls  int32
	thresholds   []float64
	detectHook   func(ctx context.Context, call int) ([]types.Scene, error)
	frameCalls   int32
	slideTimings []types.FrameTiming
}

func (m *fakeMedia) ExtractAudioMono16k(ctx context.Context, in, out string) error {
	n := m.audioBytes
	if n == 0 {
		n = 16
	}
	return os.WriteFile(out, make([]byte, n), 0o644)
}

func (m *fakeMedia) ExtractSegment(ctx context.Context, in, out string, startSec, durSec float64) error {
	return os.WriteFile(out, []byte("seg"), 0o644)
}

func (m *fakeMedia) NormalizeAudio(ctx context.Context, in, out string) error {
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

func (m *fakeMedia) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if m.speechDur != 0 {
		return m.speechDur, nil
	}
	return 60, nil
}

func (m *fakeMedia) SplitAudio(ctx context.Context, in, outDir string, parts int) ([]string, error) {
	out := make([]string, parts)
	for i := range out {
		out[i] = fmt.Sprintf("%s/chunk_%03d.wav", outDir, i)
		if err := os.WriteFile(out[i], []byte("chunk"), 0o644); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *fakeMedia) ConcatAudio(ctx context.Context, parts []string, out string) error {
	return os.WriteFile(out, []byte("concat"), 0o644)
}

func (m *fakeMedia) ExtractFrame(ctx context.Context, video, out string, atSec float64) error {
	atomic.AddInt32(&m.frameCalls, 1)
	return os.WriteFile(out, []byte("jpg"), 0o644)
}

func (m *fakeMedia) DetectScenes(ctx context.Context, video string, threshold float64) ([]types.Scene, error) {
	call := int(atomic.AddInt32(&m.detectCalls, 1))
	m.mu.Lock()
	m.thresholds = append(m.thresholds, threshold)
	hook, scenes, serr := m.detectHook, m.scenes, m.sceneErr
	m.mu.Unlock()
	if hook != nil {
		return hook(ctx, call)
	}
	if serr != nil {
		return nil, serr
	}
	return scenes, nil
}

func (m *fakeMedia) StaticVideo(ctx context.Context, frame, audio, out string) error {
	return os.WriteFile(out, []byte("static"), 0o644)
}

func (m *fakeMedia) SlideshowVideo(ctx context.Context, timings []types.FrameTiming, audio, out string) error {
	m.mu.Lock()
	m.slideTimings = timings
	m.mu.Unlock()
	return os.WriteFile(out, []byte("slideshow"), 0o644)
}

func (m *fakeMedia) Compose(ctx context.Context, video, audio, out, quality string) error {
	return os.WriteFile(out, []byte("final"), 0o644)
}
