package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/digkill/genstudio/internal/apperr"
)

func TestValidatorMessages(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"short prompt", ImageInput{Prompt: "cat", Style: "anime"}, "Minimum 4 characters!"},
		{"unknown style", ImageInput{Prompt: "a cat", Style: "cubism"}, "Invalid style!"},
		{"custom without text", ImageInput{Prompt: "a cat", Style: "custom", CustomStyle: "  "}, "You selected custom style but did not provide a custom style!"},
		{"long prompt", ImageInput{Prompt: strings.Repeat("a", 1001), Style: "anime"}, "prompt must be at most 1000 characters!"},
		{"slow speech", SpeechInput{Text: "hello", Voice: "nova", Speed: 0.1}, "Speed must be between 0.25 and 4!"},
		{"passwords differ", SignUpInput{Username: "alice", Password: "password1", ConfirmPassword: "password2"}, "Passwords do not match"},
		{"bad email", SignUpInput{Username: "alice", Email: "nope", Password: "password1", ConfirmPassword: "password1"}, "Invalid email address!"},
		{"missing login", SignInInput{Password: "x"}, "login is required!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.want, apperr.PublicMessage(err))
		})
	}
}

func TestValidatorAcceptsEveryStyle(t *testing.T) {
	v := NewValidator()
	for _, style := range ImageStyles {
		in := ImageInput{Prompt: "a red fox", Style: style}
		if style == StyleCustom {
			in.CustomStyle = "ukiyo-e"
		}
		assert.NoError(t, v.Validate(in), style)
	}
	assert.Len(t, ImageStyles, 25)
}
