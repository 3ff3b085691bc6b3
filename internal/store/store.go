// Package store is the artifact store: one directory per job
// identifier, one file per completed stage. The existence of a valid
// artifact at its fingerprinted path is the resume checkpoint for that
// stage; a corrupt or partial file reads as absent, never as an error.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"github.com/smendola/conciser/internal/jobid"
	"github.com/smendola/conciser/internal/types"
)

// Store scopes artifact paths to one job identifier.
type Store struct {
	root  string
	jobID string
}

// New opens (creating if needed) the artifact directory for jobID
// under root. Different job identifiers never share a directory.
func New(root, jobID string) (*Store, error) {
	s := &Store{root: root, jobID: jobID}
	for _, d := range []string{s.Dir(), s.FramesDir(), s.ChunksDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Dir() string       { return filepath.Join(s.root, s.jobID) }
func (s *Store) FramesDir() string { return filepath.Join(s.Dir(), "frames") }
func (s *Store) ChunksDir() string { return filepath.Join(s.Dir(), "chunks") }

// Fingerprinted artifact paths. Parameters that change a stage's
// output are encoded in the filename so differing configurations
// never false-positive a resume.

func (s *Store) MetadataPath() string   { return filepath.Join(s.Dir(), "metadata.json") }
func (s *Store) AudioPath() string      { return filepath.Join(s.Dir(), "audio.wav") }
func (s *Store) TranscriptPath() string { return filepath.Join(s.Dir(), "transcript.json") }
func (s *Store) ScenesPath() string     { return filepath.Join(s.FramesDir(), "scenes.json") }

func (s *Store) CondensedPath(aggressiveness int) string {
	return filepath.Join(s.Dir(), fmt.Sprintf("condensed_a%d.json", aggressiveness))
}

func (s *Store) SpeechPath(provider types.TTSProvider, voiceID string) string {
	return filepath.Join(s.Dir(), fmt.Sprintf("speech_%s_%s.mp3", provider, jobid.NormalizeVoice(voiceID)))
}

func (s *Store) RenderedVideoPath(mode types.VideoGenMode) string {
	return filepath.Join(s.Dir(), fmt.Sprintf("video_%s.mp4", mode))
}

// SourcePath returns the fetched media file if one exists, matching
// any container extension yt-dlp may have produced.
func (s *Store) SourcePath() (string, bool) {
	matches, err := filepath.Glob(filepath.Join(s.Dir(), "source.*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		if nonEmptyFile(m) {
			return m, true
		}
	}
	return "", false
}

// HasFile reports whether path exists with non-zero size. This is the
// validity check for opaque media artifacts.
func (s *Store) HasFile(path string) bool { return nonEmptyFile(path) }

// LoadMetadata is the validity check and loader for the fetch
// metadata artifact.
func (s *Store) LoadMetadata() (types.Metadata, bool) {
	var md types.Metadata
	if !readJSON(s.MetadataPath(), &md) {
		return types.Metadata{}, false
	}
	if md.VideoID == "" || md.DurationSeconds <= 0 {
		return types.Metadata{}, false
	}
	return md, true
}

// LoadTranscript requires well-formed JSON with a non-empty text field.
func (s *Store) LoadTranscript() (types.Transcript, bool) {
	var tr types.Transcript
	if !readJSON(s.TranscriptPath(), &tr) {
		return types.Transcript{}, false
	}
	if tr.Text == "" {
		return types.Transcript{}, false
	}
	return tr, true
}

const condensedSchema = `{
  "type": "object",
  "required": ["condensed_script", "original_duration_minutes", "estimated_condensed_duration_minutes", "reduction_percentage"],
  "properties": {
    "condensed_script": {"type": "string", "minLength": 1},
    "original_duration_minutes": {"type": "number"},
    "estimated_condensed_duration_minutes": {"type": "number"},
    "reduction_percentage": {"type": "number"}
  }
}`

// LoadCondensed validates the condensed-script artifact against its
// schema before trusting it as a checkpoint.
func (s *Store) LoadCondensed(aggressiveness int) (types.CondensedScript, bool) {
	b, err := os.ReadFile(s.CondensedPath(aggressiveness))
	if err != nil {
		return types.CondensedScript{}, false
	}
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(condensedSchema),
		gojsonschema.NewBytesLoader(b),
	)
	if err != nil || !res.Valid() {
		return types.CondensedScript{}, false
	}
	var cs types.CondensedScript
	if err := json.Unmarshal(b, &cs); err != nil {
		return types.CondensedScript{}, false
	}
	return cs, true
}

// LoadScenes reads the scene-cut cache; absent or corrupt means no
// scene metadata (degraded slideshow timing), not an error.
func (s *Store) LoadScenes() ([]types.Scene, bool) {
	var scenes []types.Scene
	if !readJSON(s.ScenesPath(), &scenes) || len(scenes) == 0 {
		return nil, false
	}
	return scenes, true
}

// SaveJSON atomically persists v at path: write to a temp file in the
// same directory, then rename. A crash mid-write can never be
// mistaken for a completed stage.
func (s *Store) SaveJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	return s.WriteAtomic(path, b)
}

// WriteAtomic writes b to path via temp-file-then-rename.
func (s *Store) WriteAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Promote atomically moves a finished temp file into its artifact
// path. Falls back to a streamed copy+rename when src is on another
// filesystem; media artifacts can be large and never pass through
// memory whole.
func (s *Store) Promote(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyAtomic(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyAtomic streams src into a temp file beside dst, then renames.
func copyAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dst)
}

func nonEmptyFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

func readJSON(path string, v any) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, v) == nil
}
