// Package whisperapi adapts an OpenAI-compatible Whisper transcription
// endpoint (OpenAI or Groq) to the Transcriber port.
package whisperapi

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
	"github.com/smendola/conciser/internal/types"
)

const requestTimeout = 5 * time.Minute

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "whisper-1"
	}
	baseURL = normalizeBaseURL(baseURL)
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout + 30*time.Second},
	}
}

// verboseResponse mirrors the verbose_json transcription payload. The
// loose vendor shape is mapped into types.Transcript here and nowhere
// else.
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (a *Adapter) Transcribe(ctx context.Context, audioPath, languageHint string) (types.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return types.Transcript{}, faults.Internal(err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return types.Transcript{}, faults.Internal(err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return types.Transcript{}, faults.Internal(err)
	}
	fields := map[string]string{
		"model":           a.model,
		"response_format": "verbose_json",
	}
	if languageHint != "" {
		fields["language"] = languageHint
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return types.Transcript{}, faults.Internal(err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.Transcript{}, faults.Internal(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", a.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return types.Transcript{}, faults.Internal(err)
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return types.Transcript{}, faults.Transientf("transcription timeout after %s", requestTimeout)
		}
		return types.Transcript{}, faults.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		return types.Transcript{}, faults.FromHTTPStatus("whisper", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return types.Transcript{}, faults.Internal(fmt.Errorf("decode transcription: %w", err))
	}

	tr := types.Transcript{
		Text:            strings.TrimSpace(raw.Text),
		Language:        raw.Language,
		DurationSeconds: raw.Duration,
	}
	for _, s := range raw.Segments {
		tr.Segments = append(tr.Segments, types.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	if tr.Text == "" {
		return types.Transcript{}, faults.Internalf("transcription returned empty text")
	}
	return tr, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
