package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultFluxBaseURL = "https://api.bfl.ai"
	defaultFluxModel   = "flux-pro-1.1"
	defaultFluxTimeout = 120 * time.Second
)

// FluxProvider synthesizes images through a Flux-compatible HTTP endpoint.
type FluxProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// FluxOption customizes the Flux provider.
type FluxOption func(*FluxProvider)

// WithFluxHTTPClient overrides the default HTTP client.
func WithFluxHTTPClient(client *http.Client) FluxOption {
	return func(p *FluxProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithFluxBaseURL overrides the default API base (useful for tests/mocks).
func WithFluxBaseURL(base string) FluxOption {
	return func(p *FluxProvider) {
		base = strings.TrimSpace(base)
		if base != "" {
			p.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewFlux constructs a Flux image provider.
func NewFlux(apiKey, baseURL, model string, opts ...FluxOption) (*FluxProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	provider := &FluxProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: defaultFluxTimeout},
	}
	for _, opt := range opts {
		opt(provider)
	}
	if provider.baseURL == "" {
		provider.baseURL = defaultFluxBaseURL
	}
	if provider.model == "" {
		provider.model = defaultFluxModel
	}
	return provider, nil
}

// Name reports the provider identifier used in run summaries.
func (p *FluxProvider) Name() string { return "flux" }

type fluxRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	ReferenceImage string `json:"reference_image,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Size           string `json:"size,omitempty"`
}

type fluxResponse struct {
	Image string `json:"image"`
	Error string `json:"error"`
}

// Generate produces one image from the reference image and prompt.
func (p *FluxProvider) Generate(ctx context.Context, req Request) ([]byte, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("flux imagegen: prompt required")
	}

	payload := fluxRequest{
		Model:       p.model,
		Prompt:      prompt,
		AspectRatio: req.AspectRatio,
		Size:        req.Size,
	}
	if len(req.ReferenceImage) > 0 {
		payload.ReferenceImage = base64.StdEncoding.EncodeToString(req.ReferenceImage)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("flux imagegen: encode request: %w", err)
	}
	endpoint, err := url.JoinPath(p.baseURL, "/v1/images/generations")
	if err != nil {
		return nil, fmt.Errorf("flux imagegen: build url: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("flux imagegen: request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("flux imagegen: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("flux imagegen: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("flux imagegen: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed fluxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("flux imagegen: decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("flux imagegen: api error: %s", strings.TrimSpace(parsed.Error))
	}
	if parsed.Image == "" {
		return nil, errors.New("flux imagegen: empty image in response")
	}
	data, err := base64.StdEncoding.DecodeString(parsed.Image)
	if err != nil {
		return nil, fmt.Errorf("flux imagegen: decode image: %w", err)
	}
	return data, nil
}
