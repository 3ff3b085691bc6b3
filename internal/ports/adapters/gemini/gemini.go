// Package gemini adapts Google Gemini to the Condenser port.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/smendola/conciser/internal/domain/condense"
	"github.com/smendola/conciser/internal/faults"
	"github.com/smendola/conciser/internal/types"
)

type Adapter struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Adapter{client: client, model: model}, nil
}

func (a *Adapter) Close() error { return a.client.Close() }

func (a *Adapter) Condense(ctx context.Context, transcript string, durationMinutes float64, aggressiveness, targetWords int) (types.CondensedScript, error) {
	model := a.client.GenerativeModel(a.model)
	model.SetTemperature(0.3)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	prompt := buildPrompt(transcript, durationMinutes, aggressiveness, targetWords)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return types.CondensedScript{}, classify(err)
	}

	text, err := extractText(resp)
	if err != nil {
		return types.CondensedScript{}, faults.Internal(err)
	}

	var out types.CondensedScript
	if err := json.Unmarshal([]byte(cleanJSONBlock(text)), &out); err != nil {
		return types.CondensedScript{}, faults.Internal(fmt.Errorf("parse condensed content: %w", err))
	}
	if strings.TrimSpace(out.Script) == "" {
		return types.CondensedScript{}, faults.Internalf("condensation returned an empty script")
	}
	// fill the fields the model sometimes omits
	if out.OriginalDurationMinutes == 0 {
		out.OriginalDurationMinutes = durationMinutes
	}
	if out.ReductionPercentage == 0 {
		orig := condense.WordCount(transcript)
		if orig > 0 {
			out.ReductionPercentage = 100 * (1 - float64(condense.WordCount(out.Script))/float64(orig))
		}
	}
	return out, nil
}

const systemPrompt = `You are a professional editor specializing in condensing transcripts, preserving the speaker's voice where possible and distilling core arguments when brevity demands it. This is abridging, not summarizing: the listener should feel they are hearing the original speaker. Cut tangents, redundant examples and non-essential detail; preserve unique insights, essential context, transitions, conclusions, and the speaker's voice. Hit the requested target word count: do not over-condense a conservative request, and within an aggressive budget keep the most important insights. Respond with JSON only: {"condensed_script": string (with \n\n paragraph breaks at topic transitions), "key_points_preserved": [string], "removed_content_summary": string, "original_duration_minutes": number, "estimated_condensed_duration_minutes": number, "reduction_percentage": number, "quality_notes": string}.`

func buildPrompt(transcript string, durationMinutes float64, aggressiveness, targetWords int) string {
	originalWords := condense.WordCount(transcript)
	pct := condense.RetentionPercent(aggressiveness)
	return fmt.Sprintf(
		"Condense the following transcript of a %.1f-minute video from %d words down to approximately %d words (%d%% of original length, aggressiveness %d/10).\n\nTranscript:\n%s",
		durationMinutes, originalWords, targetWords, pct, aggressiveness, transcript,
	)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini returned no text parts")
	}
	return sb.String(), nil
}

// cleanJSONBlock strips markdown code fences some models wrap around
// JSON payloads despite the response MIME type.
func cleanJSONBlock(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return faults.FromHTTPStatus("gemini", gerr.Code, gerr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Transient(err)
	}
	low := strings.ToLower(err.Error())
	if strings.Contains(low, "429") || strings.Contains(low, "rate") || strings.Contains(low, "overloaded") || strings.Contains(low, "unavailable") {
		return faults.Transient(err)
	}
	if strings.Contains(low, "api key") || strings.Contains(low, "permission") || strings.Contains(low, "quota") {
		return faults.External(err.Error())
	}
	return faults.Internal(err)
}
