package expert

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// #region client

// NewGenAIClient creates a Gemini API client shared by every GenAI backend.
func NewGenAIClient(ctx context.Context, apiKey string, opts ...func(*genai.ClientConfig)) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai api key is required")
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	for _, o := range opts {
		o(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// #endregion client

// #region schema

// OpinionSchema constrains structured expert answers.
var OpinionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"assessment": {
			Type:        genai.TypeString,
			Description: "Short assessment of the patient's situation",
		},
		"urgency": {
			Type:        genai.TypeString,
			Description: "Triage urgency",
			Enum:        []string{"LOW", "MEDIUM", "HIGH", "EMERGENCY"},
		},
		"confidence": {
			Type:        genai.TypeNumber,
			Description: "Confidence in the assessment between 0.0 and 1.0",
		},
	},
	Required: []string{"assessment", "urgency", "confidence"},
}

// #endregion schema

// #region backend

// GenAIBackend answers prompts with a Gemini model.
type GenAIBackend struct {
	client      *genai.Client
	name        string
	model       string
	temperature float32
	structured  bool
}

// GenAIOption configures a GenAIBackend.
type GenAIOption func(*GenAIBackend)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) GenAIOption {
	return func(b *GenAIBackend) { b.temperature = t }
}

// WithStructuredOutput asks the model for a JSON object matching OpinionSchema.
func WithStructuredOutput() GenAIOption {
	return func(b *GenAIBackend) { b.structured = true }
}

// NewGenAIBackend creates a backend named name that calls model.
func NewGenAIBackend(client *genai.Client, name, model string, opts ...GenAIOption) *GenAIBackend {
	b := &GenAIBackend{client: client, name: name, model: model, temperature: 0.3}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the expert name.
func (b *GenAIBackend) Name() string { return b.name }

// Invoke sends the prompt and optional image in a single user turn.
func (b *GenAIBackend) Invoke(ctx context.Context, prompt string, image *Image) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, b.generateConfig())
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", b.name, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%s generate: empty response", b.name)
	}
	return text, nil
}

func (b *GenAIBackend) generateConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](b.temperature),
	}
	if b.structured {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = OpinionSchema
	}
	return cfg
}

// #endregion backend
