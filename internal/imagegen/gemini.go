package imagegen

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiSynthesizer generates images with Gemini image models, trying each
// model in order until one returns inline image data.
type GeminiSynthesizer struct {
	client *genai.Client
	models []string
	logger *zap.Logger
}

func NewGeminiSynthesizer(client *genai.Client, models []string, logger *zap.Logger) *GeminiSynthesizer {
	if len(models) == 0 {
		models = []string{"gemini-3-pro-image-preview", "gemini-2.5-flash-image"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiSynthesizer{client: client, models: models, logger: logger}
}

func (g *GeminiSynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	var parts []*genai.Part
	if req.Reference != "" && req.Class != ClassItem {
		if mimeType, data, err := parseDataURI(req.Reference); err == nil {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}})
		} else {
			g.logger.Debug("ignoring invalid reference image", zap.Error(err))
		}
	}
	parts = append(parts, &genai.Part{Text: req.Prompt()})
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	config := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: req.Class.AspectRatio()},
	}

	var errs []error
	for _, model := range g.models {
		resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			g.logger.Warn("gemini image model failed", zap.String("model", model), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", model, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if uri := firstInlineImage(resp); uri != "" {
			return uri, nil
		}
		g.logger.Warn("gemini image model returned no image data", zap.String("model", model))
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %w", ErrNoImage, errors.Join(errs...))
	}
	return "", ErrNoImage
}

func firstInlineImage(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return dataURI(part.InlineData.MIMEType, part.InlineData.Data)
		}
	}
	return ""
}
