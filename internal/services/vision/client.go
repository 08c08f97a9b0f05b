package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"atelier/internal/config"
)

const (
	defaultModel        = "gemini-2.0-flash"
	defaultCaptionModel = "gemini-2.0-flash"
)

// Client wraps the Gemini vision API for content scoring, description, and
// caption writing.
type Client struct {
	client       *genai.Client
	model        string
	captionModel string
}

// NewClient constructs a vision client from the vision config section.
func NewClient(ctx context.Context, cfg config.Vision) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("vision: api key required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("vision: create client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	captionModel := strings.TrimSpace(cfg.CaptionModel)
	if captionModel == "" {
		captionModel = defaultCaptionModel
	}

	return &Client{client: client, model: model, captionModel: captionModel}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

const scorePrompt = `Rate this image for suitability as reference material for a stylized art account.
Consider composition, subject clarity, lighting, and whether a single clear subject is present.
Respond with JSON: {"score": <0.0-1.0>, "reason": "<one sentence>"}`

// Score rates a media item between 0 and 1 for pipeline suitability.
func (c *Client) Score(ctx context.Context, media []byte, mimeType string) (float64, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.ImageData(imageFormat(mimeType), media),
		genai.Text(scorePrompt),
	)
	if err != nil {
		return 0, fmt.Errorf("vision score: %w", err)
	}
	raw, err := extractText(resp)
	if err != nil {
		return 0, fmt.Errorf("vision score: %w", err)
	}
	score, _, err := ParseScore(raw)
	if err != nil {
		return 0, fmt.Errorf("vision score: %w", err)
	}
	return score, nil
}

const describePrompt = `Describe this image in detail for an artist who will repaint the scene.
Cover the subject, pose, framing, lighting, palette, and mood in one paragraph.
Respond with plain text only.`

// Describe produces a full scene description for a single image.
func (c *Client) Describe(ctx context.Context, media []byte, mimeType string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.3)

	resp, err := model.GenerateContent(ctx,
		genai.ImageData(imageFormat(mimeType), media),
		genai.Text(describePrompt),
	)
	if err != nil {
		return "", fmt.Errorf("vision describe: %w", err)
	}
	text, err := extractText(resp)
	if err != nil {
		return "", fmt.Errorf("vision describe: %w", err)
	}
	return strings.TrimSpace(text), nil
}

const describeDeltaPrompt = `This image is a later frame of a carousel post. The first frame was described as:

%s

Describe only what changed in this frame relative to that description, focusing on pose and framing. One short paragraph, plain text only.`

// DescribeDelta describes a follow-up carousel frame relative to the first
// frame's full description.
func (c *Client) DescribeDelta(ctx context.Context, firstDescription string, media []byte, mimeType string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.3)

	resp, err := model.GenerateContent(ctx,
		genai.ImageData(imageFormat(mimeType), media),
		genai.Text(fmt.Sprintf(describeDeltaPrompt, strings.TrimSpace(firstDescription))),
	)
	if err != nil {
		return "", fmt.Errorf("vision describe delta: %w", err)
	}
	text, err := extractText(resp)
	if err != nil {
		return "", fmt.Errorf("vision describe delta: %w", err)
	}
	return strings.TrimSpace(text), nil
}

const captionPrompt = `Write a social media caption for an art post based on this scene description:

%s

Style: %s.
Respond with JSON: {"caption": "<caption text without hashtags>", "tags": ["tag1", "tag2", ...]}
Use at most 8 tags, lowercase, no # prefix.`

// Caption writes a caption and tag list from a scene description.
func (c *Client) Caption(ctx context.Context, description, style string) (string, []string, error) {
	if style = strings.TrimSpace(style); style == "" {
		style = "warm and understated"
	}

	model := c.client.GenerativeModel(c.captionModel)
	model.SetTemperature(0.7)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.Text(fmt.Sprintf(captionPrompt, strings.TrimSpace(description), style)),
	)
	if err != nil {
		return "", nil, fmt.Errorf("vision caption: %w", err)
	}
	raw, err := extractText(resp)
	if err != nil {
		return "", nil, fmt.Errorf("vision caption: %w", err)
	}
	text, tags, err := ParseCaption(raw)
	if err != nil {
		return "", nil, fmt.Errorf("vision caption: %w", err)
	}
	return text, tags, nil
}

type scorePayload struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ParseScore decodes a score response, clamping the value into [0, 1].
func ParseScore(raw string) (float64, string, error) {
	var parsed scorePayload
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &parsed); err != nil {
		return 0, "", fmt.Errorf("parse score payload: %w", err)
	}
	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 1 {
		parsed.Score = 1
	}
	return parsed.Score, strings.TrimSpace(parsed.Reason), nil
}

type captionPayload struct {
	Caption string   `json:"caption"`
	Tags    []string `json:"tags"`
}

// ParseCaption decodes a caption response, normalizing tags to lowercase
// without a # prefix.
func ParseCaption(raw string) (string, []string, error) {
	var parsed captionPayload
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &parsed); err != nil {
		return "", nil, fmt.Errorf("parse caption payload: %w", err)
	}
	caption := strings.TrimSpace(parsed.Caption)
	if caption == "" {
		return "", nil, errors.New("empty caption")
	}
	tags := make([]string, 0, len(parsed.Tags))
	for _, tag := range parsed.Tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(tag, "#")))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return caption, tags, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

func cleanJSONBlock(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func imageFormat(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, "/"); idx >= 0 {
		mimeType = mimeType[idx+1:]
	}
	switch mimeType {
	case "jpg", "jpeg":
		return "jpeg"
	case "png", "webp", "heic", "heif":
		return mimeType
	default:
		return "jpeg"
	}
}
