// Package pipeline is the orchestrator: a fixed sequence of stages,
// each of which is skipped when a valid artifact for it already exists
// and the job allows resuming. Stage services are invoked through the
// retry wrapper; artifacts persist atomically between stages.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/smendola/conciser/internal/domain/condense"
	"github.com/smendola/conciser/internal/faults"
	"github.com/smendola/conciser/internal/jobid"
	"github.com/smendola/conciser/internal/logger"
	"github.com/smendola/conciser/internal/ports"
	"github.com/smendola/conciser/internal/ports/adapters/did"
	"github.com/smendola/conciser/internal/ports/adapters/edgetts"
	"github.com/smendola/conciser/internal/ports/adapters/elevenlabs"
	"github.com/smendola/conciser/internal/ports/adapters/ffmpeg"
	"github.com/smendola/conciser/internal/ports/adapters/gemini"
	"github.com/smendola/conciser/internal/ports/adapters/whisperapi"
	"github.com/smendola/conciser/internal/ports/adapters/ytdlp"
	"github.com/smendola/conciser/internal/retry"
	"github.com/smendola/conciser/internal/store"
	"github.com/smendola/conciser/internal/types"
)

// Stage names as they appear in progress events and error chains.
const (
	StageFetch      = "fetch"
	StageTranscribe = "transcribe"
	StageCondense   = "condense"
	StageCloneVoice = "clone_voice"
	StageSpeech     = "synthesize_speech"
	StageRender     = "render_video"
	StageCompose    = "compose"
	StageDeliver    = "deliver"
	StageCleanup    = "cleanup"
)

// Event kinds.
const (
	KindResumed   = "resumed"
	KindCompleted = "completed"
	KindFailed    = "failed"
	KindInfo      = "info"
)

// Event is one progress notification. Delivery is fire-and-forget; a
// slow or absent listener never stalls the run.
type Event struct {
	RunID   uuid.UUID
	Stage   string
	Kind    string
	Message string
}

// Deps are the stage services. Speech holds one generator per
// provider so a single wiring serves jobs with either backend.
type Deps struct {
	Fetcher     ports.Fetcher
	Transcriber ports.Transcriber
	Condenser   ports.Condenser
	Voices      ports.VoiceCloner
	Speech      map[types.TTSProvider]ports.SpeechGenerator
	Avatar      ports.AvatarRenderer
	Media       ports.MediaToolkit
}

type Opts struct {
	WorkDir   string
	OutputDir string

	Retry   retry.Policy
	Log     logger.Logger
	OnEvent func(Event)

	// MaxUploadMB caps single-request transcription uploads; larger
	// audio is split into equal time segments first.
	MaxUploadMB float64
	// Language hints the transcriber; empty means auto-detect.
	Language string
	// TTSChunkChars caps single-request speech synthesis.
	TTSChunkChars int
	// DefaultEdgeVoice is used when an edge job names no voice.
	DefaultEdgeVoice string
	// FrameWait bounds how long render waits for the background
	// frame-extraction branch before redoing the work inline.
	FrameWait time.Duration
}

type Result struct {
	OutputPath string
	Stats      types.Stats
}

type run struct {
	job  types.Job
	deps Deps
	opts Opts

	id      uuid.UUID
	store   *store.Store
	log     logger.Logger
	resume  bool
	resumed int
}

// Run executes one job end to end and returns the output path plus
// run statistics.
func Run(ctx context.Context, job types.Job, deps Deps, opts Opts) (Result, error) {
	if err := job.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid job: %w", err)
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.MaxUploadMB == 0 {
		opts.MaxUploadMB = 24
	}
	if opts.TTSChunkChars == 0 {
		opts.TTSChunkChars = 5000
	}
	if opts.FrameWait == 0 {
		opts.FrameWait = 3 * time.Minute
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "temp"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "output"
	}

	id, resumable := jobid.Derive(job.Locator)
	resume := job.Resume
	if resume && !resumable {
		opts.Log.Infof("no platform id for %q; resume disabled for this run", job.Locator)
		resume = false
	}

	st, err := store.New(opts.WorkDir, id)
	if err != nil {
		return Result{}, err
	}

	r := &run{
		job:    job,
		deps:   deps,
		opts:   opts,
		id:     uuid.New(),
		store:  st,
		log:    opts.Log,
		resume: resume,
	}
	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) (Result, error) {
	md, sourcePath, err := r.fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	// Slideshow frames do not depend on anything downstream of the
	// source file, so the expensive scene work starts now.
	var frames *frameTask
	if r.job.Mode == types.ModeSlideshow {
		frames = r.startFrameTask(ctx, sourcePath, md.DurationSeconds)
		defer frames.cancel()
	}

	tr, err := r.transcribe(ctx, sourcePath, md)
	if err != nil {
		return Result{}, err
	}

	cs, targetWords, err := r.condense(ctx, tr, md)
	if err != nil {
		return Result{}, err
	}

	voiceID, voiceLabel, cleanupVoice, err := r.cloneVoice(ctx, tr, sourcePath, md)
	if err != nil {
		return Result{}, err
	}

	speechPath, condensedDur, err := r.synthesizeSpeech(ctx, cs.Script, voiceID, voiceLabel)
	if err != nil {
		return Result{}, err
	}

	outName := r.outputName(md, voiceLabel)
	var outPath string
	if r.job.Mode == types.ModeAudioOnly {
		outPath, err = r.deliverAudio(speechPath, outName)
		if err != nil {
			return Result{}, r.fail(StageDeliver, err)
		}
		r.emit(StageDeliver, KindCompleted, outPath)
	} else {
		videoPath, rerr := r.renderVideo(ctx, sourcePath, speechPath, md.DurationSeconds, condensedDur, frames)
		if rerr != nil {
			return Result{}, rerr
		}
		outPath, err = r.compose(ctx, videoPath, speechPath, outName)
		if err != nil {
			return Result{}, err
		}
	}

	r.cleanup(ctx, voiceID, cleanupVoice)

	stats := types.Stats{
		OriginalDurationMinutes:  md.DurationSeconds / 60,
		CondensedDurationMinutes: condensedDur / 60,
		OriginalWords:            condense.WordCount(tr.Text),
		CondensedWords:           condense.WordCount(cs.Script),
		TargetWords:              targetWords,
		Aggressiveness:           r.job.Aggressiveness,
		Quality:                  r.job.Quality,
		ResumedStages:            r.resumed,
	}
	if md.DurationSeconds > 0 {
		stats.ReductionPercentage = (1 - condensedDur/md.DurationSeconds) * 100
	}
	r.log.Infof("done: %s (%.1f min -> %.1f min, %d stages resumed)",
		outPath, stats.OriginalDurationMinutes, stats.CondensedDurationMinutes, r.resumed)
	return Result{OutputPath: outPath, Stats: stats}, nil
}

func (r *run) fetch(ctx context.Context) (types.Metadata, string, error) {
	if r.resume {
		if md, ok := r.store.LoadMetadata(); ok {
			if src, ok := r.store.SourcePath(); ok {
				r.emit(StageFetch, KindResumed, src)
				return md, src, nil
			}
		}
	}

	var res ports.FetchResult
	err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) error {
		var ferr error
		res, ferr = r.deps.Fetcher.Fetch(ctx, r.job.Locator, r.job.Quality, r.store.Dir())
		return ferr
	})
	if err != nil {
		return types.Metadata{}, "", r.fail(StageFetch, err)
	}
	if err := r.store.SaveJSON(r.store.MetadataPath(), res.Metadata); err != nil {
		return types.Metadata{}, "", r.fail(StageFetch, err)
	}
	r.emit(StageFetch, KindCompleted, res.MediaPath)
	return res.Metadata, res.MediaPath, nil
}

func (r *run) transcribe(ctx context.Context, sourcePath string, md types.Metadata) (types.Transcript, error) {
	audioPath := r.store.AudioPath()
	if !(r.resume && r.store.HasFile(audioPath)) {
		if err := r.deps.Media.ExtractAudioMono16k(ctx, sourcePath, audioPath); err != nil {
			return types.Transcript{}, r.fail(StageTranscribe, err)
		}
	}

	if r.resume {
		if tr, ok := r.store.LoadTranscript(); ok {
			r.emit(StageTranscribe, KindResumed, fmt.Sprintf("%d segments", len(tr.Segments)))
			return tr, nil
		}
	}

	tr, err := r.transcribeAudio(ctx, audioPath)
	if err != nil {
		return types.Transcript{}, r.fail(StageTranscribe, err)
	}
	if tr.DurationSeconds == 0 {
		tr.DurationSeconds = md.DurationSeconds
	}
	if err := r.store.SaveJSON(r.store.TranscriptPath(), tr); err != nil {
		return types.Transcript{}, r.fail(StageTranscribe, err)
	}
	r.emit(StageTranscribe, KindCompleted, fmt.Sprintf("%d words", condense.WordCount(tr.Text)))
	return tr, nil
}

// transcribeAudio sends the audio in one request when it fits the
// upload limit, otherwise splits it into equal time segments and
// shifts each chunk's timestamps by the accumulated duration of the
// chunks before it.
func (r *run) transcribeAudio(ctx context.Context, audioPath string) (types.Transcript, error) {
	fi, err := os.Stat(audioPath)
	if err != nil {
		return types.Transcript{}, faults.Internal(err)
	}
	sizeMB := float64(fi.Size()) / (1024 * 1024)
	if sizeMB <= r.opts.MaxUploadMB {
		return r.transcribeOne(ctx, audioPath)
	}

	parts := int(math.Ceil(sizeMB / r.opts.MaxUploadMB))
	r.log.Infof("audio is %.1fMB, splitting into %d chunks", sizeMB, parts)
	chunkPaths, err := r.deps.Media.SplitAudio(ctx, audioPath, r.store.ChunksDir(), parts)
	if err != nil {
		return types.Transcript{}, err
	}

	var merged types.Transcript
	var offset float64
	for i, cp := range chunkPaths {
		chunk, err := r.transcribeOne(ctx, cp)
		if err != nil {
			return types.Transcript{}, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunkPaths), err)
		}
		if merged.Text != "" && chunk.Text != "" {
			merged.Text += " "
		}
		merged.Text += chunk.Text
		for _, seg := range chunk.Segments {
			merged.Segments = append(merged.Segments, types.Segment{
				Start: seg.Start + offset,
				End:   seg.End + offset,
				Text:  seg.Text,
			})
		}
		if merged.Language == "" {
			merged.Language = chunk.Language
		}
		dur := chunk.DurationSeconds
		if dur == 0 {
			dur, err = r.deps.Media.ProbeDuration(ctx, cp)
			if err != nil {
				return types.Transcript{}, err
			}
		}
		offset += dur
	}
	merged.DurationSeconds = offset
	return merged, nil
}

func (r *run) transcribeOne(ctx context.Context, audioPath string) (types.Transcript, error) {
	var tr types.Transcript
	err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) error {
		var terr error
		tr, terr = r.deps.Transcriber.Transcribe(ctx, audioPath, r.opts.Language)
		return terr
	})
	return tr, err
}

func (r *run) condense(ctx context.Context, tr types.Transcript, md types.Metadata) (types.CondensedScript, int, error) {
	words := condense.WordCount(tr.Text)
	targetWords := condense.TargetWords(words, r.job.Aggressiveness)

	if r.resume {
		if cs, ok := r.store.LoadCondensed(r.job.Aggressiveness); ok {
			r.emit(StageCondense, KindResumed, fmt.Sprintf("%d words", condense.WordCount(cs.Script)))
			return cs, targetWords, nil
		}
	}

	var cs types.CondensedScript
	err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) error {
		var cerr error
		cs, cerr = r.deps.Condenser.Condense(ctx, tr.Text, md.DurationSeconds/60, r.job.Aggressiveness, targetWords)
		return cerr
	})
	if err != nil {
		return types.CondensedScript{}, 0, r.fail(StageCondense, err)
	}
	if err := r.store.SaveJSON(r.store.CondensedPath(r.job.Aggressiveness), cs); err != nil {
		return types.CondensedScript{}, 0, r.fail(StageCondense, err)
	}

	got := condense.WordCount(cs.Script)
	if targetWords > 0 {
		miss := math.Abs(float64(got-targetWords)) / float64(targetWords) * 100
		r.emit(StageCondense, KindInfo, fmt.Sprintf("target %d words, got %d (%.0f%% off)", targetWords, got, miss))
	}
	r.emit(StageCondense, KindCompleted, fmt.Sprintf("%d -> %d words", words, got))
	return cs, targetWords, nil
}

func (r *run) renderVideo(ctx context.Context, sourcePath, speechPath string, sourceDur, condensedDur float64, frames *frameTask) (string, error) {
	videoPath := r.store.RenderedVideoPath(r.job.Mode)
	if r.resume && r.store.HasFile(videoPath) {
		if frames != nil {
			frames.cancel()
		}
		r.emit(StageRender, KindResumed, videoPath)
		return videoPath, nil
	}

	tmp := filepath.Join(r.store.ChunksDir(), "render.mp4")
	var err error
	switch r.job.Mode {
	case types.ModeStatic:
		err = r.renderStatic(ctx, sourcePath, speechPath, sourceDur, tmp)
	case types.ModeSlideshow:
		err = r.renderSlideshow(ctx, sourcePath, speechPath, sourceDur, condensedDur, frames, tmp)
	case types.ModeAvatar:
		err = r.renderAvatar(ctx, sourcePath, speechPath, sourceDur, tmp)
	default:
		err = faults.Internalf("unsupported mode %q", r.job.Mode)
	}
	if err != nil {
		return "", r.fail(StageRender, err)
	}
	if err := r.store.Promote(tmp, videoPath); err != nil {
		return "", r.fail(StageRender, err)
	}
	r.emit(StageRender, KindCompleted, videoPath)
	return videoPath, nil
}

func (r *run) renderStatic(ctx context.Context, sourcePath, speechPath string, sourceDur float64, out string) error {
	frame, err := r.stillFrame(ctx, sourcePath, sourceDur)
	if err != nil {
		return err
	}
	return r.deps.Media.StaticVideo(ctx, frame, speechPath, out)
}

func (r *run) renderAvatar(ctx context.Context, sourcePath, speechPath string, sourceDur float64, out string) error {
	frame, err := r.stillFrame(ctx, sourcePath, sourceDur)
	if err != nil {
		return err
	}
	return retry.Do(ctx, r.opts.Retry, func(ctx context.Context) error {
		return r.deps.Avatar.RenderAvatar(ctx, frame, speechPath, out)
	})
}

// stillFrame extracts one representative frame, a third of the way in.
func (r *run) stillFrame(ctx context.Context, sourcePath string, sourceDur float64) (string, error) {
	frame := filepath.Join(r.store.FramesDir(), "still.jpg")
	if r.resume && r.store.HasFile(frame) {
		return frame, nil
	}
	at := sourceDur / 3
	if at > 30 {
		at = 30
	}
	if err := r.deps.Media.ExtractFrame(ctx, sourcePath, frame, at); err != nil {
		return "", err
	}
	return frame, nil
}

func (r *run) compose(ctx context.Context, videoPath, speechPath, outName string) (string, error) {
	outPath := r.job.OutputPath
	if outPath == "" {
		outPath = filepath.Join(r.opts.OutputDir, outName+".mp4")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", r.fail(StageCompose, err)
	}
	tmp := filepath.Join(r.store.ChunksDir(), "final.mp4")
	if err := r.deps.Media.Compose(ctx, videoPath, speechPath, tmp, r.job.Quality); err != nil {
		return "", r.fail(StageCompose, err)
	}
	if err := r.store.Promote(tmp, outPath); err != nil {
		return "", r.fail(StageCompose, err)
	}
	r.emit(StageCompose, KindCompleted, outPath)
	return outPath, nil
}

func (r *run) deliverAudio(speechPath, outName string) (string, error) {
	outPath := r.job.OutputPath
	if outPath == "" {
		outPath = filepath.Join(r.opts.OutputDir, outName+".mp3")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	// Copy, not move: the artifact stays behind as the resume
	// checkpoint for later runs.
	if err := copyFile(speechPath, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// cleanup deletes the cloned voice when this run created it and
// clears the transient chunk workspace. Failures here are logged,
// never fatal: the output is already delivered.
func (r *run) cleanup(ctx context.Context, voiceID string, cleanupVoice bool) {
	if cleanupVoice && voiceID != "" {
		if err := r.deps.Voices.DeleteVoice(ctx, voiceID); err != nil {
			r.log.Warnf("delete cloned voice %s: %v", voiceID, err)
		}
	}
	if err := os.RemoveAll(r.store.ChunksDir()); err != nil {
		r.log.Warnf("clear chunk workspace: %v", err)
	}
	r.emit(StageCleanup, KindCompleted, "")
}

func (r *run) outputName(md types.Metadata, voiceLabel string) string {
	title := md.NormalizedTitle
	if title == "" {
		title = jobid.NormalizeName(md.Title, 50)
	}
	if title == "" {
		title = "untitled"
	}
	return fmt.Sprintf("%s_%s_%s_%s", md.VideoID, title, r.job.TTSProvider, jobid.NormalizeVoice(voiceLabel))
}

func (r *run) emit(stage, kind, msg string) {
	if kind == KindResumed {
		r.resumed++
		r.log.Infof("%s: reusing existing artifact %s", stage, msg)
	}
	if r.opts.OnEvent != nil {
		r.opts.OnEvent(Event{RunID: r.id, Stage: stage, Kind: kind, Message: msg})
	}
}

func (r *run) fail(stage string, err error) error {
	if msg, ok := faults.UserMessage(err); ok {
		r.emit(stage, KindFailed, msg)
	} else {
		r.emit(stage, KindFailed, err.Error())
	}
	r.log.Errorf("%s failed: %v", stage, err)
	return faults.WithStage(stage, err)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// ensure adapters implement ports
var (
	_ ports.Fetcher         = (*ytdlp.Adapter)(nil)
	_ ports.Transcriber     = (*whisperapi.Adapter)(nil)
	_ ports.Condenser       = (*gemini.Adapter)(nil)
	_ ports.VoiceCloner     = (*elevenlabs.Adapter)(nil)
	_ ports.SpeechGenerator = (*elevenlabs.Adapter)(nil)
	_ ports.SpeechGenerator = (*edgetts.Adapter)(nil)
	_ ports.AvatarRenderer  = (*did.Adapter)(nil)
	_ ports.MediaToolkit    = (*ffmpeg.Adapter)(nil)
)
