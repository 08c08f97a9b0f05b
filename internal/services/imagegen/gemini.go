package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash-exp-image-generation"

// GeminiProvider synthesizes images through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGemini constructs a Gemini image provider.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini imagegen: create client: %w", err)
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Name reports the provider identifier used in run summaries.
func (p *GeminiProvider) Name() string { return "gemini" }

// Close releases the underlying API client.
func (p *GeminiProvider) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Generate produces one image from the reference image and prompt.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) ([]byte, error) {
	if len(req.ReferenceImage) == 0 {
		return nil, errors.New("gemini imagegen: reference image required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("gemini imagegen: prompt required")
	}
	if req.AspectRatio != "" {
		prompt = fmt.Sprintf("%s\n\nAspect ratio: %s.", prompt, req.AspectRatio)
	}

	model := p.client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx,
		genai.ImageData(referenceFormat(req.ReferenceMime), req.ReferenceImage),
		genai.Text(prompt),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini imagegen: %w", err)
	}
	data, err := extractImage(resp)
	if err != nil {
		return nil, fmt.Errorf("gemini imagegen: %w", err)
	}
	return data, nil
}

func extractImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return nil, errors.New("no content in response")
	}
	for _, part := range candidate.Content.Parts {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			return blob.Data, nil
		}
	}
	return nil, errors.New("no image parts in response")
}

func referenceFormat(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, "/"); idx >= 0 {
		mimeType = mimeType[idx+1:]
	}
	switch mimeType {
	case "jpg", "jpeg":
		return "jpeg"
	case "png", "webp":
		return mimeType
	default:
		return "png"
	}
}
