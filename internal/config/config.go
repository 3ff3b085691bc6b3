// Package config loads the application configuration from an optional
// YAML file plus environment variables (a .env file is read
// best-effort by the CLI before this runs).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Condense   CondenseConfig   `yaml:"condense"`
	TTS        TTSConfig        `yaml:"tts"`
	Avatar     AvatarConfig     `yaml:"avatar"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Retry      RetryConfig      `yaml:"retry"`
	Logging    LoggingConfig    `yaml:"logging"`
	Watch      WatchConfig      `yaml:"watch"`
}

type PathsConfig struct {
	WorkDir   string `yaml:"work_dir"`
	OutputDir string `yaml:"output_dir"`
}

type TranscribeConfig struct {
	Provider     string  `yaml:"provider"` // openai or groq
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	Language     string  `yaml:"language"`
	MaxUploadMB  float64 `yaml:"max_upload_mb"`
	OpenAIAPIKey string  `yaml:"-"`
	GroqAPIKey   string  `yaml:"-"`
}

type CondenseConfig struct {
	Model        string `yaml:"model"`
	GeminiAPIKey string `yaml:"-"`
}

type TTSConfig struct {
	ElevenLabsAPIKey string `yaml:"-"`
	EdgeTTSBin       string `yaml:"edge_tts_bin"`
	DefaultEdgeVoice string `yaml:"default_edge_voice"`
	ChunkChars       int    `yaml:"chunk_chars"`
}

type AvatarConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
}

type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	YTDLPPath   string `yaml:"ytdlp_path"`
	Watermark   string `yaml:"watermark"`
	NoWatermark bool   `yaml:"no_watermark"`
}

type RetryConfig struct {
	Attempts            int `yaml:"attempts"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type WatchConfig struct {
	InputDir      string `yaml:"input_dir"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Load reads path (when non-empty), overlays API keys from the
// environment and applies defaults. A missing file is not an error;
// the defaults stand alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Transcribe.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Transcribe.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	cfg.Condense.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.TTS.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	cfg.Avatar.APIKey = os.Getenv("DID_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Paths.WorkDir == "" {
		c.Paths.WorkDir = "temp"
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = "output"
	}
	if c.Transcribe.Provider == "" {
		c.Transcribe.Provider = "openai"
	}
	if c.Transcribe.Provider != "openai" && c.Transcribe.Provider != "groq" {
		return fmt.Errorf("transcribe.provider must be openai or groq, got %q", c.Transcribe.Provider)
	}
	if c.Transcribe.Model == "" {
		if c.Transcribe.Provider == "groq" {
			c.Transcribe.Model = "whisper-large-v3"
		} else {
			c.Transcribe.Model = "whisper-1"
		}
	}
	if c.Transcribe.BaseURL == "" {
		if c.Transcribe.Provider == "groq" {
			c.Transcribe.BaseURL = "https://api.groq.com/openai/v1"
		} else {
			c.Transcribe.BaseURL = "https://api.openai.com/v1"
		}
	}
	if c.Transcribe.MaxUploadMB == 0 {
		c.Transcribe.MaxUploadMB = 24
	}
	if c.Condense.Model == "" {
		c.Condense.Model = "gemini-2.5-flash"
	}
	if c.TTS.EdgeTTSBin == "" {
		c.TTS.EdgeTTSBin = "edge-tts"
	}
	if c.TTS.DefaultEdgeVoice == "" {
		c.TTS.DefaultEdgeVoice = "en-US-GuyNeural"
	}
	if c.TTS.ChunkChars == 0 {
		c.TTS.ChunkChars = 5000
	}
	if c.FFmpeg.FFmpegPath == "" {
		c.FFmpeg.FFmpegPath = "ffmpeg"
	}
	if c.FFmpeg.FFprobePath == "" {
		c.FFmpeg.FFprobePath = "ffprobe"
	}
	if c.FFmpeg.YTDLPPath == "" {
		c.FFmpeg.YTDLPPath = "yt-dlp"
	}
	if c.FFmpeg.Watermark == "" {
		c.FFmpeg.Watermark = "Generated with Conciser AI"
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 4
	}
	if c.Retry.InitialDelaySeconds == 0 {
		c.Retry.InitialDelaySeconds = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Watch.MaxConcurrent == 0 {
		c.Watch.MaxConcurrent = 1
	}
	if c.Watch.MaxConcurrent < 0 {
		return fmt.Errorf("watch.max_concurrent must be positive, got %d", c.Watch.MaxConcurrent)
	}
	return nil
}
