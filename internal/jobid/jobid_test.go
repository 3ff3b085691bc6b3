package jobid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		locator   string
		wantID    string
		resumable bool
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short url", "https://youtu.be/dQw4w9WgXcQ?t=10", "dQw4w9WgXcQ", true},
		{"embed url", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"shorts url", "https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"plain file url", "https://example.com/talk.mp4", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, resumable := Derive(tt.locator)
			assert.Equal(t, tt.resumable, resumable)
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, id)
			} else {
				assert.Len(t, id, 12)
			}
		})
	}

	// same non-platform locator always maps to the same directory
	a, _ := Derive("https://example.com/talk.mp4")
	b, _ := Derive("https://example.com/talk.mp4")
	assert.Equal(t, a, b)
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"The CAPE Ratio — 150 Years": "the_cape_ratio_150_years",
		"  spaced   out  ":           "spaced_out",
		"___":                        "",
		"Already_fine":               "already_fine",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in, 0), "input %q", in)
	}

	assert.Equal(t, "abcde", NormalizeName("abcdefgh", 5))
}

func TestNormalizeVoice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "en_us_guy_neural", NormalizeVoice("en-US-Guy-Neural"))
	assert.Equal(t, "pnvoiceabc123", NormalizeVoice("pnVoiceABC123"))
}
