// Package edgetts adapts the edge-tts binary to the SpeechGenerator
// port. Edge voices are premade; there is nothing to clone or clean up.
package edgetts

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/smendola/conciser/internal/faults"
)

type Adapter struct {
	bin string
}

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "edge-tts"
	}
	return &Adapter{bin: binPath}
}

var rateRE = regexp.MustCompile(`^[+-]\d{1,3}%$`)

// ValidateRate accepts signed percentage strings like "+0%" or "-25%".
func ValidateRate(rate string) error {
	if rate == "" {
		return nil
	}
	if !rateRE.MatchString(rate) {
		return fmt.Errorf("invalid tts rate %q: expected a signed percentage such as +0%% or -25%%", rate)
	}
	return nil
}

func (a *Adapter) GenerateSpeech(ctx context.Context, text, voiceID, rate, outPath string) error {
	if err := ValidateRate(rate); err != nil {
		return faults.Internal(err)
	}
	if rate == "" {
		rate = "+0%"
	}
	cmd := exec.CommandContext(ctx, a.bin,
		"--voice", voiceID,
		"--rate="+rate,
		"--text", text,
		"--write-media", outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return faults.Internal(fmt.Errorf("edge-tts: %w\n%s", err, string(b)))
	}
	return nil
}
