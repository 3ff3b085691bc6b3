// Package did adapts the D-ID talking-head API to the AvatarRenderer
// port: upload a source frame and the narration, create a talk, poll
// until it renders, download the result.
package did

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/smendola/conciser/internal/faults"
)

const (
	defaultBaseURL = "https://api.d-id.com"
	pollInterval   = 5 * time.Second
	pollBudget     = 10 * time.Minute
)

type Adapter struct {
	key     string
	baseURL string
	client  *http.Client
	poll    time.Duration
}

func New(apiKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		key:     apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Minute},
		poll:    pollInterval,
	}
}

func (a *Adapter) RenderAvatar(ctx context.Context, framePath, audioPath, outPath string) error {
	imageURL, err := a.upload(ctx, "/images", "image", framePath)
	if err != nil {
		return err
	}
	audioURL, err := a.upload(ctx, "/audios", "audio", audioPath)
	if err != nil {
		return err
	}

	talkID, err := a.createTalk(ctx, imageURL, audioURL)
	if err != nil {
		return err
	}

	resultURL, err := a.waitForTalk(ctx, talkID)
	if err != nil {
		return err
	}
	return a.download(ctx, resultURL, outPath)
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (a *Adapter) upload(ctx context.Context, path, field, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", faults.Internal(err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filepath.Base(filePath))
	if err == nil {
		_, err = io.Copy(part, f)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return "", faults.Internal(err)
	}

	var out uploadResponse
	if err := a.do(ctx, "POST", path, mw.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", faults.Internalf("d-id upload returned no url")
	}
	return out.URL, nil
}

func (a *Adapter) createTalk(ctx context.Context, imageURL, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"source_url": imageURL,
		"script": map[string]any{
			"type":      "audio",
			"audio_url": audioURL,
		},
		"config": map[string]any{"stitch": true},
	})
	if err != nil {
		return "", faults.Internal(err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := a.do(ctx, "POST", "/talks", "application/json", bytes.NewReader(payload), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", faults.Internalf("d-id create talk returned no id")
	}
	return out.ID, nil
}

func (a *Adapter) waitForTalk(ctx context.Context, talkID string) (string, error) {
	deadline := time.Now().Add(pollBudget)
	for {
		var out struct {
			Status    string `json:"status"`
			ResultURL string `json:"result_url"`
			Error     any    `json:"error"`
		}
		if err := a.do(ctx, "GET", "/talks/"+talkID, "", nil, &out); err != nil {
			return "", err
		}
		switch out.Status {
		case "done":
			if out.ResultURL == "" {
				return "", faults.Internalf("d-id talk done without result url")
			}
			return out.ResultURL, nil
		case "error", "rejected":
			return "", faults.Externalf("d-id rendering failed: %v", out.Error)
		}
		if time.Now().After(deadline) {
			return "", faults.Transientf("d-id talk %s still %q after %s", talkID, out.Status, pollBudget)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.poll):
		}
	}
}

func (a *Adapter) download(ctx context.Context, url, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return faults.Internal(err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return faults.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return faults.Transientf("d-id result download: status %d", resp.StatusCode)
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
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return faults.Internal(err)
	}
	req.Header.Set("Authorization", "Basic "+a.key)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return faults.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		return faults.FromHTTPStatus("d-id", resp.StatusCode, truncate(string(rb), 400))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Internal(fmt.Errorf("decode d-id response: %w", err))
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
