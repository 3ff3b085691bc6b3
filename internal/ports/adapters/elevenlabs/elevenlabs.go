// Package elevenlabs adapts the ElevenLabs voice API to the
// VoiceCloner and SpeechGenerator ports.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smendola/conciser/internal/faults"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	requestTimeout = 3 * time.Minute
	modelID        = "eleven_multilingual_v2"
)

type Adapter struct {
	key     string
	baseURL string
	client  *http.Client
}

func New(apiKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		key:     apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout + 30*time.Second},
	}
}

// CloneVoice uploads up to three samples and returns the new voice id.
func (a *Adapter) CloneVoice(ctx context.Context, name string, samplePaths []string) (string, error) {
	if len(samplePaths) == 0 {
		return "", faults.Internalf("voice clone: no samples")
	}
	if len(samplePaths) > 3 {
		samplePaths = samplePaths[:3]
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", name); err != nil {
		return "", faults.Internal(err)
	}
	for _, p := range samplePaths {
		f, err := os.Open(p)
		if err != nil {
			return "", faults.Internal(err)
		}
		part, err := mw.CreateFormFile("files", filepath.Base(p))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return "", faults.Internal(err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", faults.Internal(err)
	}

	var out struct {
		VoiceID string `json:"voice_id"`
	}
	if err := a.do(ctx, "POST", "/v1/voices/add", mw.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	if out.VoiceID == "" {
		return "", faults.Internalf("voice clone: response carried no voice_id")
	}
	return out.VoiceID, nil
}

func (a *Adapter) DeleteVoice(ctx context.Context, voiceID string) error {
	return a.do(ctx, "DELETE", "/v1/voices/"+voiceID, "", nil, nil)
}

// GenerateSpeech synthesizes one text chunk to outPath. rate is
// ignored; ElevenLabs controls pacing through the voice itself.
func (a *Adapter) GenerateSpeech(ctx context.Context, text, voiceID, rate, outPath string) error {
	_ = rate

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": modelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return faults.Internal(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST",
		a.baseURL+"/v1/text-to-speech/"+voiceID, bytes.NewReader(payload))
	if err != nil {
		return faults.Internal(err)
	}
	req.Header.Set("xi-api-key", a.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return faults.Transientf("speech generation timeout after %s", requestTimeout)
		}
		return faults.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		return faults.FromHTTPStatus("elevenlabs", resp.StatusCode, truncate(string(rb), 400))
	}

	f, err := os.Create(outPath)
	if err != nil {
		return faults.Internal(err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(outPath)
		return faults.Internal(err)
	}
	return f.Close()
}

func (a *Adapter) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, a.baseURL+path, body)
	if err != nil {
		return faults.Internal(err)
	}
	req.Header.Set("xi-api-key", a.key)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return faults.Transientf("elevenlabs timeout after %s", requestTimeout)
		}
		return faults.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		return faults.FromHTTPStatus("elevenlabs", resp.StatusCode, truncate(string(rb), 400))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Internal(fmt.Errorf("decode elevenlabs response: %w", err))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
