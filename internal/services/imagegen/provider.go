// Package imagegen synthesizes stylized images from a reference image and a
// scene description. Two providers are supported: Gemini image generation and
// any Flux-compatible HTTP endpoint.
package imagegen

import (
	"context"
	"errors"
)

// ErrNotConfigured reports a provider constructed without credentials.
var ErrNotConfigured = errors.New("image generation not configured")

// Request carries everything a provider needs to synthesize one image.
type Request struct {
	ReferenceImage []byte
	ReferenceMime  string
	Prompt         string
	AspectRatio    string
	Size           string
}

// Provider generates a single image and returns the encoded bytes.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]byte, error)
}
