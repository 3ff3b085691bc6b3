package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "temp", cfg.Paths.WorkDir)
	assert.Equal(t, "output", cfg.Paths.OutputDir)
	assert.Equal(t, "openai", cfg.Transcribe.Provider)
	assert.Equal(t, "whisper-1", cfg.Transcribe.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Transcribe.BaseURL)
	assert.InDelta(t, 24.0, cfg.Transcribe.MaxUploadMB, 1e-9)
	assert.Equal(t, "gemini-2.5-flash", cfg.Condense.Model)
	assert.Equal(t, 5000, cfg.TTS.ChunkChars)
	assert.Equal(t, 4, cfg.Retry.Attempts)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1, cfg.Watch.MaxConcurrent)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conciser.yaml")
	body := `
paths:
  work_dir: /data/work
transcribe:
  provider: groq
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/work", cfg.Paths.WorkDir)
	assert.Equal(t, "groq", cfg.Transcribe.Provider)
	assert.Equal(t, "whisper-large-v3", cfg.Transcribe.Model)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.Transcribe.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "temp", cfg.Paths.WorkDir)
}

func TestLoad_EnvKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ELEVENLABS_API_KEY", "el-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Transcribe.OpenAIAPIKey)
	assert.Equal(t, "el-test", cfg.TTS.ElevenLabsAPIKey)
}

func TestValidate_BadProvider(t *testing.T) {
	cfg := &Config{}
	cfg.Transcribe.Provider = "azure"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcribe.provider")
}
