package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/digkill/genstudio/internal/apperr"
)

const StyleCustom = "custom"

var ImageStyles = []string{
	"animation", "cartoon", "detailed", "drawing", "high-resolution", "lego", "modern",
	"oil painting", "pointillism", "professional photography", "traditional", "vector art",
	"watercolor", "3D", "isometric", "photo-realistic", "pixar", "low poly", "flat design",
	"minimalist", "material design", "abstract", "art deco", "anime", StyleCustom,
}

var Voices = []string{"alloy", "echo", "fable", "nova", "onyx", "shimmer"}

type ImageInput struct {
	Prompt      string `json:"prompt" validate:"required,min=4,max=1000"`
	Style       string `json:"style" validate:"required,imagestyle"`
	CustomStyle string `json:"customStyle" validate:"max=200"`
}

// EffectiveStyle is the style text handed to the provider.
func (in ImageInput) EffectiveStyle() string {
	if in.Style == StyleCustom {
		return strings.TrimSpace(in.CustomStyle)
	}
	return in.Style
}

type SpeechInput struct {
	Text  string  `json:"text" validate:"required,min=4,max=1000"`
	Voice string  `json:"voice" validate:"required,oneof=alloy echo fable nova onyx shimmer"`
	Speed float64 `json:"speed" validate:"gte=0.25,lte=4"`
}

type SignUpInput struct {
	Username        string `json:"username" validate:"required,min=4,max=100"`
	Email           string `json:"email" validate:"omitempty,email,max=255"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// SignInInput accepts either the username or the email address as login.
type SignInInput struct {
	Login    string `json:"login" validate:"required,min=4,max=255"`
	Password string `json:"password" validate:"required"`
}

// Validator checks request payloads and turns the first failure into a client-facing message.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	styles := make(map[string]struct{}, len(ImageStyles))
	for _, s := range ImageStyles {
		styles[s] = struct{}{}
	}
	_ = v.RegisterValidation("imagestyle", func(fl validator.FieldLevel) bool {
		_, ok := styles[fl.Field().String()]
		return ok
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(ImageInput)
		if in.Style == StyleCustom && strings.TrimSpace(in.CustomStyle) == "" {
			sl.ReportError(in.CustomStyle, "customStyle", "CustomStyle", "customstyle", "")
		}
	}, ImageInput{})

	return &Validator{v: v}
}

// Validate returns a Validation error describing the first invalid field, or nil.
func (v *Validator) Validate(in any) error {
	err := v.v.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Wrap(apperr.KindValidation, "Invalid request.", err)
	}
	return apperr.Wrap(apperr.KindValidation, message(fieldErrs[0]), err)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required!", fe.Field())
	case "min":
		if fe.Field() == "prompt" || fe.Field() == "text" {
			return "Minimum 4 characters!"
		}
		return fmt.Sprintf("%s must be at least %s characters!", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters!", fe.Field(), fe.Param())
	case "email":
		return "Invalid email address!"
	case "eqfield":
		return "Passwords do not match"
	case "imagestyle":
		return "Invalid style!"
	case "customstyle":
		return "You selected custom style but did not provide a custom style!"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gte", "lte":
		return "Speed must be between 0.25 and 4!"
	default:
		return fmt.Sprintf("%s is invalid!", fe.Field())
	}
}
