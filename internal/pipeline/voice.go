package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/smendola/conciser/internal/domain/condense"
	"github.com/smendola/conciser/internal/faults"
	"github.com/smendola/conciser/internal/retry"
	"github.com/smendola/conciser/internal/types"
)

const (
	// Premade ElevenLabs voice used when cloning is skipped and the
	// job names no voice.
	defaultElevenVoice = "21m00Tcm4TlvDq8ikWAM"

	maxCloneSamples  = 3
	sampleMinSeconds = 30.0
	sampleMaxSeconds = 60.0
)

// cloneVoice resolves the narration voice. It clones from the source
// speaker only for ElevenLabs jobs that neither name a voice nor opt
// out; every other combination reuses an existing voice. The label is
// the stable name used in artifact fingerprints, which for cloned
// voices stays the same across runs even though the vendor issues a
// fresh id each time.
func (r *run) cloneVoice(ctx context.Context, tr types.Transcript, sourcePath string, md types.Metadata) (voiceID, label string, cleanup bool, err error) {
	if r.job.TTSProvider == types.ProviderEdge {
		label = r.job.VoiceID
		if label == "" {
			label = r.opts.DefaultEdgeVoice
		}
		if label == "" {
			return "", "", false, r.fail(StageCloneVoice, faults.Internalf("no edge voice configured"))
		}
		return label, label, false, nil
	}

	if r.job.VoiceID != "" {
		return r.job.VoiceID, r.job.VoiceID, false, nil
	}
	if r.job.SkipVoiceClone {
		return defaultElevenVoice, defaultElevenVoice, false, nil
	}

	label = "clone_" + md.VideoID
	// When the narration for this voice is already on disk, a resumed
	// run never needs the voice itself.
	if r.resume && r.store.HasFile(r.store.SpeechPath(r.job.TTSProvider, label)) {
		r.emit(StageCloneVoice, KindResumed, label)
		return "", label, false, nil
	}

	samples, err := r.extractCloneSamples(ctx, tr, sourcePath, md.DurationSeconds)
	if err != nil {
		return "", "", false, r.fail(StageCloneVoice, err)
	}

	err = retry.Do(ctx, r.opts.Retry, func(ctx context.Context) error {
		var cerr error
		voiceID, cerr = r.deps.Voices.CloneVoice(ctx, label, samples)
		return cerr
	})
	if err != nil {
		return "", "", false, r.fail(StageCloneVoice, err)
	}
	r.emit(StageCloneVoice, KindCompleted, voiceID)
	return voiceID, label, true, nil
}

func (r *run) extractCloneSamples(ctx context.Context, tr types.Transcript, sourcePath string, totalDur float64) ([]string, error) {
	windows := pickCloneWindows(tr.Segments, totalDur)
	if len(windows) == 0 {
		return nil, faults.Internalf("source too short to sample a voice from")
	}

	paths := make([]string, 0, len(windows))
	for i, w := range windows {
		raw := filepath.Join(r.store.ChunksDir(), fmt.Sprintf("sample_%d_raw.wav", i))
		norm := filepath.Join(r.store.ChunksDir(), fmt.Sprintf("sample_%d.wav", i))
		if err := r.deps.Media.ExtractSegment(ctx, sourcePath, raw, w.Start, w.End-w.Start); err != nil {
			return nil, err
		}
		if err := r.deps.Media.NormalizeAudio(ctx, raw, norm); err != nil {
			return nil, err
		}
		paths = append(paths, norm)
	}
	return paths, nil
}

// pickCloneWindows finds up to three stretches of continuous clean
// speech between 30 and 60 seconds long. Segments carrying music or
// noise markers break a stretch. When nothing qualifies it falls back
// to a fixed window past the intro.
func pickCloneWindows(segs []types.Segment, totalDur float64) []types.Segment {
	var out []types.Segment
	var start, end float64
	open := false

	closeRun := func() {
		if open && end-start >= sampleMinSeconds {
			out = append(out, types.Segment{Start: start, End: end})
		}
		open = false
	}

	for _, s := range segs {
		if len(out) >= maxCloneSamples {
			break
		}
		if !cleanSpeech(s.Text) || (open && s.Start-end > 2) {
			closeRun()
			continue
		}
		if !open {
			start, open = s.Start, true
		}
		end = s.End
		if end-start >= sampleMaxSeconds {
			out = append(out, types.Segment{Start: start, End: start + sampleMaxSeconds})
			open = false
		}
	}
	closeRun()

	if len(out) > maxCloneSamples {
		out = out[:maxCloneSamples]
	}
	if len(out) == 0 {
		if totalDur > 40 {
			hi := totalDur
			if hi > 150 {
				hi = 150
			}
			out = append(out, types.Segment{Start: 30, End: hi})
		} else if totalDur > 0 {
			out = append(out, types.Segment{Start: 0, End: totalDur})
		}
	}
	return out
}

func cleanSpeech(text string) bool {
	t := strings.ToLower(text)
	return !strings.Contains(t, "[music") &&
		!strings.Contains(t, "[noise") &&
		!strings.Contains(t, "[applause") &&
		!strings.Contains(t, "♪")
}

// synthesizeSpeech turns the condensed script into the narration
// track. Long scripts are split on sentence boundaries, synthesized a
// chunk at a time and concatenated; the result is loudness-normalized
// before it becomes the stage artifact.
func (r *run) synthesizeSpeech(ctx context.Context, script, voiceID, label string) (string, float64, error) {
	speechPath := r.store.SpeechPath(r.job.TTSProvider, label)
	if r.resume && r.store.HasFile(speechPath) {
		r.emit(StageSpeech, KindResumed, speechPath)
		dur, err := r.deps.Media.ProbeDuration(ctx, speechPath)
		if err != nil {
			return "", 0, r.fail(StageSpeech, err)
		}
		return speechPath, dur, nil
	}

	gen, ok := r.deps.Speech[r.job.TTSProvider]
	if !ok {
		return "", 0, r.fail(StageSpeech, faults.Internalf("no speech generator wired for provider %q", r.job.TTSProvider))
	}
	rate := r.job.TTSRate
	if rate == "" {
		rate = "+0%"
	}

	chunks := condense.ChunkText(script, r.opts.TTSChunkChars)
	raw := filepath.Join(r.store.ChunksDir(), "narration_raw.mp3")
	if len(chunks) == 1 {
		err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) error {
			return gen.GenerateSpeech(ctx, chunks[0], voiceID, rate, raw)
		})
		if err != nil {
			return "", 0, r.fail(StageSpeech, err)
		}
	} else {
		r.log.Infof("script is %d chars, synthesizing %d chunks", len(script), len(chunks))
		parts := make([]string, len(chunks))
		for i, text := range chunks {
			part := filepath.Join(r.store.ChunksDir(), fmt.Sprintf("narration_part_%03d.mp3", i))
			err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) error {
				return gen.GenerateSpeech(ctx, text, voiceID, rate, part)
			})
			if err != nil {
				return "", 0, r.fail(StageSpeech, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err))
			}
			parts[i] = part
		}
		if err := r.deps.Media.ConcatAudio(ctx, parts, raw); err != nil {
			return "", 0, r.fail(StageSpeech, err)
		}
	}

	normalized := filepath.Join(r.store.ChunksDir(), "narration.mp3")
	if err := r.deps.Media.NormalizeAudio(ctx, raw, normalized); err != nil {
		return "", 0, r.fail(StageSpeech, err)
	}
	if err := r.store.Promote(normalized, speechPath); err != nil {
		return "", 0, r.fail(StageSpeech, err)
	}

	dur, err := r.deps.Media.ProbeDuration(ctx, speechPath)
	if err != nil {
		return "", 0, r.fail(StageSpeech, err)
	}
	r.emit(StageSpeech, KindCompleted, fmt.Sprintf("%s (%.0fs)", speechPath, dur))
	return speechPath, dur, nil
}
