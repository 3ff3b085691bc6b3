// Package condense holds the pure word-count arithmetic behind the
// condensation stage: the aggressiveness→retention table and the
// sentence-aware splitter used when a script exceeds a provider's
// per-call limit.
package condense

import "strings"

// retention maps aggressiveness 1..10 to the percentage of the source
// word count the condensed script should keep. Geometric progression
// from a light trim down to a tenth of the original.
var retention = map[int]int{
	1:  75,
	2:  60,
	3:  50,
	4:  38,
	5:  30,
	6:  25,
	7:  20,
	8:  16,
	9:  13,
	10: 10,
}

// RetentionPercent returns the target retention for an aggressiveness
// level. Out-of-range levels clamp to the nearest valid level.
func RetentionPercent(aggressiveness int) int {
	if aggressiveness < 1 {
		aggressiveness = 1
	}
	if aggressiveness > 10 {
		aggressiveness = 10
	}
	return retention[aggressiveness]
}

// TargetWords computes the target word count from the actual transcript
// length, so one aggressiveness level behaves the same for a ten-minute
// talk and a three-hour lecture.
func TargetWords(transcriptWords, aggressiveness int) int {
	return transcriptWords * RetentionPercent(aggressiveness) / 100
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// SplitSentences breaks text on sentence terminators, keeping the
// terminator with its sentence. Used by the TTS chunker so chunk
// boundaries never cut mid-sentence.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// don't split inside "3.5" style numbers
			if r == '.' && i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9' {
				continue
			}
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// ChunkText groups sentences into chunks of at most maxChars. A single
// sentence longer than maxChars is split at word boundaries so no chunk
// ever exceeds the provider's per-call limit.
func ChunkText(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var cur []string
	curLen := 0
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur = cur[:0]
			curLen = 0
		}
	}
	for _, s := range SplitSentences(text) {
		for _, piece := range splitLongSentence(s, maxChars) {
			if curLen+len(piece) > maxChars {
				flush()
			}
			cur = append(cur, piece)
			curLen += len(piece) + 1
		}
	}
	flush()
	return chunks
}

// splitLongSentence cuts a sentence exceeding maxChars at word
// boundaries. A single word longer than maxChars stays whole.
func splitLongSentence(s string, maxChars int) []string {
	if len(s) <= maxChars {
		return []string{s}
	}
	var out []string
	var b strings.Builder
	for _, w := range strings.Fields(s) {
		if b.Len() > 0 && b.Len()+1+len(w) > maxChars {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
