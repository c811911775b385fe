package expert

import (
	"context"
)

// Generator is the subset of the inference sidecar client a backend needs.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, image []byte, mimeType string) (string, error)
}

// CodecBackend answers prompts through the gRPC inference sidecar.
type CodecBackend struct {
	gen   Generator
	name  string
	model string
}

// NewCodecBackend creates a backend named name served by model on the sidecar.
func NewCodecBackend(gen Generator, name, model string) *CodecBackend {
	return &CodecBackend{gen: gen, name: name, model: model}
}

func (b *CodecBackend) Name() string { return b.name }

func (b *CodecBackend) Invoke(ctx context.Context, prompt string, image *Image) (string, error) {
	if image == nil {
		return b.gen.Generate(ctx, b.model, prompt, nil, "")
	}
	return b.gen.Generate(ctx, b.model, prompt, image.Data, image.MIMEType)
}
