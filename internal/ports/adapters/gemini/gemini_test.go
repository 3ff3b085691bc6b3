package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONBlock(tt.in))
		})
	}
}

func TestBuildPrompt_MentionsTarget(t *testing.T) {
	t.Parallel()

	p := buildPrompt("one two three four", 10, 5, 120)
	assert.Contains(t, p, "120 words")
	assert.Contains(t, p, "30% of original length")
	assert.Contains(t, p, "aggressiveness 5/10")
	assert.Contains(t, p, "one two three four")
}
