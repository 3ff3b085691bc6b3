package edgetts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRate(t *testing.T) {
	t.Parallel()

	valid := []string{"", "+0%", "-25%", "+50%", "-100%"}
	for _, r := range valid {
		assert.NoError(t, ValidateRate(r), "rate %q", r)
	}

	invalid := []string{"0%", "+25", "fast", "+%", "+1000%", "25%+"}
	for _, r := range invalid {
		assert.Error(t, ValidateRate(r), "rate %q", r)
	}
}
