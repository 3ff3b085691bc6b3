// Package jobid derives the stable job identifier that keys the
// artifact directory for one source video.
package jobid

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var platformPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

// Derive maps a source locator to a job identifier. Resumable is true
// only when a platform video id could be extracted; otherwise the id is
// a content hash of the locator, which keeps the working directory
// stable but must not be trusted as a resume checkpoint.
func Derive(locator string) (id string, resumable bool) {
	if v := PlatformID(locator); v != "" {
		return v, true
	}
	return hash(locator), false
}

// PlatformID extracts the platform video id from a locator, or "".
func PlatformID(locator string) string {
	for _, p := range platformPatterns {
		if m := p.FindStringSubmatch(locator); m != nil {
			return m[1]
		}
	}
	return ""
}

var (
	seps     = regexp.MustCompile(`[\s\-]+`)
	nonAlnum = regexp.MustCompile(`[^a-z0-9_]`)
	multiUS  = regexp.MustCompile(`_+`)
)

// NormalizeName flattens a title to lowercase snake case for use in
// directory and file names.
func NormalizeName(name string, maxLen int) string {
	name = strings.ToLower(name)
	name = seps.ReplaceAllString(name, "_")
	name = nonAlnum.ReplaceAllString(name, "")
	name = multiUS.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if maxLen > 0 && len(name) > maxLen {
		name = strings.Trim(name[:maxLen], "_")
	}
	return name
}

// NormalizeVoice flattens a TTS voice id for artifact fingerprints.
func NormalizeVoice(voiceID string) string {
	v := strings.ReplaceAll(strings.ToLower(voiceID), "-", "_")
	return nonAlnum.ReplaceAllString(v, "")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
