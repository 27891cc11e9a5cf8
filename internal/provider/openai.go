package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ImageModel  string
	SpeechModel string
	Timeout     time.Duration
}

// OpenAIClient calls the images and audio endpoints of the OpenAI HTTP API.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	imageModel  string
	speechModel string
	httpClient  *http.Client
	log         *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, log *slog.Logger) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com"
	}
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     base,
		imageModel:  cfg.ImageModel,
		speechModel: cfg.SpeechModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *OpenAIClient) GenerateImage(ctx context.Context, userID, prompt string) (*Image, error) {
	payload := map[string]any{
		"model":           c.imageModel,
		"prompt":          prompt,
		"n":               1,
		"size":            "1024x1024",
		"style":           "vivid",
		"response_format": "b64_json",
		"user":            userID,
	}

	c.log.Info("requesting image", "model", c.imageModel, "user_id", userID)
	rawBody, err := c.post(ctx, "/v1/images/generations", payload, "application/json")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			B64JSON       string `json:"b64_json"`
			RevisedPrompt string `json:"revised_prompt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &resp); err != nil {
		return nil, fmt.Errorf("decode image response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("empty image in response")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image base64: %w", err)
	}
	revised := resp.Data[0].RevisedPrompt
	if revised == "" {
		revised = prompt
	}
	return &Image{Bytes: data, Mime: "image/png", RevisedPrompt: revised}, nil
}

func (c *OpenAIClient) GenerateSpeech(ctx context.Context, text, voice string, speed float64) (*Speech, error) {
	payload := map[string]any{
		"model":           c.speechModel,
		"input":           text,
		"voice":           voice,
		"speed":           speed,
		"response_format": "mp3",
	}

	c.log.Info("requesting speech", "model", c.speechModel, "voice", voice)
	data, err := c.post(ctx, "/v1/audio/speech", payload, "audio/mpeg")
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty speech in response")
	}
	return &Speech{Bytes: data, Mime: "audio/mpeg"}, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, payload map[string]any, accept string) ([]byte, error) {
	fullURL := c.baseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post openai: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		c.log.Error("openai request failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		return nil, fmt.Errorf("openai error: status=%d url=%s body=%s", resp.StatusCode, fullURL, truncateBody(rawBody))
	}
	return rawBody, nil
}
