// Package provider talks to the remote image and speech generation APIs.
package provider

import (
	"context"
	"strings"
	"unicode/utf8"
)

type Image struct {
	Bytes         []byte
	Mime          string
	RevisedPrompt string
}

type Speech struct {
	Bytes []byte
	Mime  string
}

// ImageGenerator produces an image for a fully composed prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, userID, prompt string) (*Image, error)
}

// SpeechGenerator produces narrated audio for text.
type SpeechGenerator interface {
	GenerateSpeech(ctx context.Context, text, voice string, speed float64) (*Speech, error)
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
