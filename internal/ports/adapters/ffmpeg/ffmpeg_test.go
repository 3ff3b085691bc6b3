package ffmpeg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

const filtersWithDrawtext = ` Filters:
  T.. = Timeline support
 ... crop              V->V       Crop the input video.
 T.C drawtext          V->V       Draw text on top of video frames using libfreetype library.
 ... scale             V->V       Scale the input video size and/or convert the image format.
`

const filtersWithoutDrawtext = ` Filters:
 ... crop              V->V       Crop the input video.
 ... scale             V->V       Scale the input video size and/or convert the image format.
`

func TestHasDrawtext(t *testing.T) {
	t.Parallel()

	assert.True(t, hasDrawtext(filtersWithDrawtext))
	assert.False(t, hasDrawtext(filtersWithoutDrawtext))
	assert.False(t, hasDrawtext(""))
	// a filter merely describing drawtext in prose does not count
	assert.False(t, hasDrawtext(" ... subtitles   V->V   Render like drawtext does.\n"))
}

func TestComposeFilter(t *testing.T) {
	t.Parallel()

	// known tier plus watermark chains both filters
	vf := composeFilter("720p", "Generated with Conciser AI")
	assert.Contains(t, vf, "scale=1280:720")
	assert.Contains(t, vf, "drawtext=text='Generated with Conciser AI'")

	// no watermark (filter unavailable or disabled) still scales
	vf = composeFilter("1080p", "")
	assert.Contains(t, vf, "scale=1920:1080")
	assert.NotContains(t, vf, "drawtext")

	// "best" keeps the source resolution
	assert.Equal(t, "", composeFilter("best", ""))
	vf = composeFilter("best", "mark")
	assert.Contains(t, vf, "drawtext")
	assert.NotContains(t, vf, "scale")
}

func TestComposeFilter_EscapesWatermarkText(t *testing.T) {
	t.Parallel()

	vf := composeFilter("best", "it's 5:00")
	assert.Contains(t, vf, `text='it\'s 5\:00'`)
}

func TestSupportsDrawtext_ProbeFailureMeansSkip(t *testing.T) {
	t.Parallel()

	a := New("/nonexistent/ffmpeg-binary", "").WithWatermark("mark")
	assert.False(t, a.supportsDrawtext(context.Background()))
	// cached: still false, no re-probe panic
	assert.False(t, a.supportsDrawtext(context.Background()))
}
