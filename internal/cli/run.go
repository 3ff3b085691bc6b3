package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smendola/conciser/internal/config"
	"github.com/smendola/conciser/internal/logger"
	"github.com/smendola/conciser/internal/pipeline"
	"github.com/smendola/conciser/internal/ports"
	"github.com/smendola/conciser/internal/ports/adapters/did"
	"github.com/smendola/conciser/internal/ports/adapters/edgetts"
	"github.com/smendola/conciser/internal/ports/adapters/elevenlabs"
	"github.com/smendola/conciser/internal/ports/adapters/ffmpeg"
	"github.com/smendola/conciser/internal/ports/adapters/gemini"
	"github.com/smendola/conciser/internal/ports/adapters/whisperapi"
	"github.com/smendola/conciser/internal/ports/adapters/ytdlp"
	"github.com/smendola/conciser/internal/retry"
	"github.com/smendola/conciser/internal/types"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Condense one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOne(cmd, args[0])
		},
	}
	addJobFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Output file path")
	return cmd
}

func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("aggressiveness", "a", 5, "Condensation level, 1 (gentle) to 10 (ruthless)")
	cmd.Flags().String("quality", "720p", "Source quality tier (720p, 1080p, 4k, best)")
	cmd.Flags().String("mode", "slideshow", "Video mode (static, slideshow, avatar, audio_only)")
	cmd.Flags().String("tts", "edge", "Speech provider (edge, elevenlabs)")
	cmd.Flags().String("voice", "", "Voice id (skips cloning)")
	cmd.Flags().Bool("skip-voice-clone", false, "Use a stock voice instead of cloning the speaker")
	cmd.Flags().Bool("no-resume", false, "Ignore existing artifacts and redo every stage")

	// Hidden tuning flags
	cmd.Flags().String("rate", "", "TTS rate adjustment, e.g. -25%")
	cmd.Flags().Int("max-frames", 0, "Slideshow frame budget")
	_ = cmd.Flags().MarkHidden("rate")
	_ = cmd.Flags().MarkHidden("max-frames")
}

func jobFromFlags(cmd *cobra.Command, locator string) types.Job {
	aggr, _ := cmd.Flags().GetInt("aggressiveness")
	quality, _ := cmd.Flags().GetString("quality")
	mode, _ := cmd.Flags().GetString("mode")
	tts, _ := cmd.Flags().GetString("tts")
	voice, _ := cmd.Flags().GetString("voice")
	skipClone, _ := cmd.Flags().GetBool("skip-voice-clone")
	noResume, _ := cmd.Flags().GetBool("no-resume")
	rate, _ := cmd.Flags().GetString("rate")
	maxFrames, _ := cmd.Flags().GetInt("max-frames")
	output, _ := cmd.Flags().GetString("output")

	return types.Job{
		Locator:        locator,
		Aggressiveness: aggr,
		Quality:        quality,
		Mode:           types.VideoGenMode(mode),
		TTSProvider:    types.TTSProvider(tts),
		VoiceID:        voice,
		SkipVoiceClone: skipClone,
		TTSRate:        rate,
		MaxFrames:      maxFrames,
		Resume:         !noResume,
		OutputPath:     output,
	}
}

func runOne(cmd *cobra.Command, locator string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	job := jobFromFlags(cmd, locator)
	if err := checkCredentials(cfg, job); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	res, err := pipeline.Run(ctx, job, deps, pipelineOpts(cfg, log, cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), res)
	return nil
}

func pipelineOpts(cfg *config.Config, log logger.Logger, out io.Writer) pipeline.Opts {
	return pipeline.Opts{
		WorkDir:          cfg.Paths.WorkDir,
		OutputDir:        cfg.Paths.OutputDir,
		Retry:            retryPolicy(cfg),
		Log:              log,
		OnEvent:          eventPrinter(out),
		MaxUploadMB:      cfg.Transcribe.MaxUploadMB,
		Language:         cfg.Transcribe.Language,
		TTSChunkChars:    cfg.TTS.ChunkChars,
		DefaultEdgeVoice: cfg.TTS.DefaultEdgeVoice,
	}
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		Attempts:     cfg.Retry.Attempts,
		InitialDelay: time.Duration(cfg.Retry.InitialDelaySeconds) * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// buildDeps wires every stage adapter. The returned closer releases
// the Gemini client.
func buildDeps(ctx context.Context, cfg *config.Config) (pipeline.Deps, func(), error) {
	if err := whisperapi.ValidateBaseURL(cfg.Transcribe.BaseURL, nil); err != nil {
		return pipeline.Deps{}, nil, err
	}
	transcribeKey := cfg.Transcribe.OpenAIAPIKey
	if cfg.Transcribe.Provider == "groq" {
		transcribeKey = cfg.Transcribe.GroqAPIKey
	}

	gem, err := gemini.New(ctx, cfg.Condense.GeminiAPIKey, cfg.Condense.Model)
	if err != nil {
		return pipeline.Deps{}, nil, err
	}

	media := ffmpeg.New(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)
	if !cfg.FFmpeg.NoWatermark {
		media = media.WithWatermark(cfg.FFmpeg.Watermark)
	}

	eleven := elevenlabs.New(cfg.TTS.ElevenLabsAPIKey, "")
	deps := pipeline.Deps{
		Fetcher:     ytdlp.New(cfg.FFmpeg.YTDLPPath),
		Transcriber: whisperapi.New(transcribeKey, cfg.Transcribe.Model, cfg.Transcribe.BaseURL),
		Condenser:   gem,
		Voices:      eleven,
		Speech: map[types.TTSProvider]ports.SpeechGenerator{
			types.ProviderElevenLabs: eleven,
			types.ProviderEdge:       edgetts.New(cfg.TTS.EdgeTTSBin),
		},
		Avatar: did.New(cfg.Avatar.APIKey, cfg.Avatar.BaseURL),
		Media:  media,
	}
	return deps, func() { gem.Close() }, nil
}

// checkCredentials fails fast on keys the job is certain to need,
// before any download starts.
func checkCredentials(cfg *config.Config, job types.Job) error {
	if cfg.Transcribe.Provider == "groq" && cfg.Transcribe.GroqAPIKey == "" {
		return errors.New("GROQ_API_KEY is required (set it in .env)")
	}
	if cfg.Transcribe.Provider == "openai" && cfg.Transcribe.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required (set it in .env)")
	}
	if cfg.Condense.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required (set it in .env)")
	}
	if job.TTSProvider == types.ProviderElevenLabs && cfg.TTS.ElevenLabsAPIKey == "" {
		return errors.New("ELEVENLABS_API_KEY is required for --tts elevenlabs")
	}
	if job.Mode == types.ModeAvatar && cfg.Avatar.APIKey == "" {
		return errors.New("DID_API_KEY is required for --mode avatar")
	}
	if job.TTSRate != "" {
		if err := edgetts.ValidateRate(job.TTSRate); err != nil {
			return err
		}
	}
	return nil
}

func eventPrinter(w io.Writer) func(pipeline.Event) {
	return func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.KindResumed:
			fmt.Fprintf(w, "  [%s] resumed from previous run\n", e.Stage)
		case pipeline.KindCompleted:
			fmt.Fprintf(w, "  [%s] done\n", e.Stage)
		case pipeline.KindFailed:
			fmt.Fprintf(w, "  [%s] failed: %s\n", e.Stage, e.Message)
		case pipeline.KindInfo:
			fmt.Fprintf(w, "  [%s] %s\n", e.Stage, e.Message)
		}
	}
}

func printStats(w io.Writer, res pipeline.Result) {
	s := res.Stats
	fmt.Fprintf(w, "\n%s\n", res.OutputPath)
	fmt.Fprintf(w, "  %.1f min -> %.1f min (%.0f%% shorter)\n",
		s.OriginalDurationMinutes, s.CondensedDurationMinutes, s.ReductionPercentage)
	fmt.Fprintf(w, "  %d words -> %d words (target %d, level %d)\n",
		s.OriginalWords, s.CondensedWords, s.TargetWords, s.Aggressiveness)
	if s.ResumedStages > 0 {
		fmt.Fprintf(w, "  %d stages resumed\n", s.ResumedStages)
	}
}
