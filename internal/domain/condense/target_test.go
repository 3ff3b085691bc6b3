package condense

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionPercent_Monotonic(t *testing.T) {
	t.Parallel()

	prev := 101
	for level := 1; level <= 10; level++ {
		got := RetentionPercent(level)
		assert.Less(t, got, prev, "level %d must retain less than level %d", level, level-1)
		prev = got
	}
	assert.Equal(t, 75, RetentionPercent(1))
	assert.Equal(t, 30, RetentionPercent(5))
	assert.Equal(t, 10, RetentionPercent(10))

	// out of range clamps
	assert.Equal(t, 75, RetentionPercent(0))
	assert.Equal(t, 10, RetentionPercent(99))
}

func TestTargetWords_ScalesWithTranscript(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 300, TargetWords(1000, 5))
	assert.Equal(t, 3000, TargetWords(10000, 5))
	assert.Equal(t, 100, TargetWords(1000, 10))
	assert.Equal(t, 0, TargetWords(0, 1))
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	got := SplitSentences("First one. Second one! Third? And a trailing fragment")
	require.Len(t, got, 4)
	assert.Equal(t, "First one.", got[0])
	assert.Equal(t, "Second one!", got[1])
	assert.Equal(t, "Third?", got[2])
	assert.Equal(t, "And a trailing fragment", got[3])

	// decimal points do not split
	got = SplitSentences("The ratio is 3.5 today. Done.")
	require.Len(t, got, 2)
	assert.Equal(t, "The ratio is 3.5 today.", got[0])
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	short := "Fits in one call."
	assert.Equal(t, []string{short}, ChunkText(short, 5000))

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("This sentence pads the script out to force chunking. ")
	}
	text := strings.TrimSpace(sb.String())
	chunks := ChunkText(text, 500)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 500)
		assert.True(t, strings.HasSuffix(c, "."), "chunk must end on a sentence boundary: %q", c)
	}
	// reassembly preserves every word in order
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func TestChunkText_OversizedSentenceIsSplit(t *testing.T) {
	t.Parallel()

	// one run-on sentence well past the limit, no terminator until the end
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("and then something else happened ")
	}
	text := strings.TrimSpace(sb.String()) + "."
	require.Greater(t, len(text), 50)

	chunks := ChunkText(text, 50)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50, "chunk exceeds the per-call limit: %q", c)
		assert.False(t, strings.HasPrefix(c, " "))
		assert.False(t, strings.HasSuffix(c, " "))
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}
