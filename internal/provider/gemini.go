package provider

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiImageClient generates images with Imagen through the Gemini API.
type GeminiImageClient struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

func NewGeminiImageClient(ctx context.Context, apiKey, model string, log *slog.Logger) (*GeminiImageClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiImageClient{client: client, model: model, log: log}, nil
}

func (g *GeminiImageClient) GenerateImage(ctx context.Context, userID, prompt string) (*Image, error) {
	g.log.Info("requesting image", "model", g.model, "user_id", userID)
	resp, err := g.client.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		OutputMIMEType:   "image/png",
		EnhancePrompt:    true,
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate images: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		reason := ""
		if len(resp.GeneratedImages) > 0 {
			reason = resp.GeneratedImages[0].RAIFilteredReason
		}
		return nil, fmt.Errorf("empty image in response (filtered: %q)", reason)
	}

	img := resp.GeneratedImages[0]
	revised := img.EnhancedPrompt
	if revised == "" {
		revised = prompt
	}
	mime := img.Image.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &Image{Bytes: img.Image.ImageBytes, Mime: mime, RevisedPrompt: revised}, nil
}
