package types

import (
	"github.com/go-playground/validator/v10"
)

// VideoGenMode selects how the condensed narration is turned into video.
type VideoGenMode string

const (
	ModeStatic    VideoGenMode = "static"
	ModeSlideshow VideoGenMode = "slideshow"
	ModeAvatar    VideoGenMode = "avatar"
	ModeAudioOnly VideoGenMode = "audio_only"
)

// TTSProvider names a speech-synthesis backend.
type TTSProvider string

const (
	ProviderElevenLabs TTSProvider = "elevenlabs"
	ProviderEdge       TTSProvider = "edge"
)

// Job is one immutable request to condense one video end-to-end.
type Job struct {
	Locator        string       `validate:"required"`
	Aggressiveness int          `validate:"min=1,max=10"`
	Quality        string       `validate:"oneof=720p 1080p 4k best"`
	Mode           VideoGenMode `validate:"oneof=static slideshow avatar audio_only"`
	TTSProvider    TTSProvider  `validate:"oneof=elevenlabs edge"`
	VoiceID        string
	SkipVoiceClone bool
	TTSRate        string
	MaxFrames      int `validate:"min=0"`
	Resume         bool
	OutputPath     string
}

var validate = validator.New()

func (j Job) Validate() error {
	return validate.Struct(j)
}

// Metadata describes the fetched source video.
type Metadata struct {
	VideoID         string  `json:"video_id"`
	Title           string  `json:"title"`
	NormalizedTitle string  `json:"normalized_title"`
	DurationSeconds float64 `json:"duration"`
	Uploader        string  `json:"uploader,omitempty"`
}

type Transcript struct {
	Text            string    `json:"text"`
	Segments        []Segment `json:"segments"`
	Language        string    `json:"language,omitempty"`
	DurationSeconds float64   `json:"duration"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// CondensedScript is the LLM condensation result plus self-reported stats.
type CondensedScript struct {
	Script                   string   `json:"condensed_script"`
	OriginalDurationMinutes  float64  `json:"original_duration_minutes"`
	EstimatedDurationMinutes float64  `json:"estimated_condensed_duration_minutes"`
	ReductionPercentage      float64  `json:"reduction_percentage"`
	KeyPointsPreserved       []string `json:"key_points_preserved,omitempty"`
	RemovedContentSummary    string   `json:"removed_content_summary,omitempty"`
	QualityNotes             string   `json:"quality_notes,omitempty"`
}

// Scene is one detected shot boundary in source-video seconds.
type Scene struct {
	ID    int     `json:"scene_id"`
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
}

// FrameTiming places one slideshow frame on the condensed-audio timeline.
type FrameTiming struct {
	SceneID  int
	Path     string
	ShowAt   float64
	Duration float64
}

// Stats summarizes one completed run.
type Stats struct {
	OriginalDurationMinutes  float64 `json:"original_duration_minutes"`
	CondensedDurationMinutes float64 `json:"condensed_duration_minutes"`
	ReductionPercentage      float64 `json:"reduction_percentage"`
	OriginalWords            int     `json:"original_words"`
	CondensedWords           int     `json:"condensed_words"`
	TargetWords              int     `json:"target_words"`
	Aggressiveness           int     `json:"aggressiveness"`
	Quality                  string  `json:"quality"`
	ResumedStages            int     `json:"resumed_stages"`
}
