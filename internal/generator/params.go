package generator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/sanitizer"
)

// Generation parameter defaults
const (
	DefaultMaxLength   = 100
	DefaultTemperature = 0.9
	DefaultTopP        = 0.95
	DefaultTopK        = 5
)

var (
	artistPattern      = regexp.MustCompile(`^[A-Za-z0-9\s\-']+$`)
	descriptionPattern = regexp.MustCompile(`^[A-Za-z0-9\s\-.,!?']+$`)
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("artist", func(fl validator.FieldLevel) bool {
		return artistPattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("description", func(fl validator.FieldLevel) bool {
		return descriptionPattern.MatchString(fl.Field().String())
	})
}

// Request is the client payload for a generation. Numeric fields are optional.
type Request struct {
	Artist       string   `json:"artist"`
	Description  string   `json:"description"`
	MaxLength    *int     `json:"max_length,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	TopK         *int     `json:"top_k,omitempty"`
	CompleteSong *bool    `json:"complete_song,omitempty"`
}

// Params are the validated parameters sent to the generator
type Params struct {
	Artist       string  `json:"artist" validate:"required,max=100,artist"`
	Description  string  `json:"description" validate:"required,max=500,description"`
	MaxLength    int     `json:"max_length" validate:"min=50,max=200"`
	Temperature  float64 `json:"temperature" validate:"gte=0,lte=2"`
	TopP         float64 `json:"top_p" validate:"gte=0,lte=1"`
	TopK         int     `json:"top_k" validate:"min=1,max=100"`
	CompleteSong bool    `json:"complete_song"`
}

// Normalize applies defaults, sanitizes the text fields and validates the result
func (r Request) Normalize(s sanitizer.TextSanitizer) (Params, error) {
	p := Params{
		Artist:       s.Sanitize(r.Artist),
		Description:  s.Sanitize(r.Description),
		MaxLength:    DefaultMaxLength,
		Temperature:  DefaultTemperature,
		TopP:         DefaultTopP,
		TopK:         DefaultTopK,
		CompleteSong: true,
	}
	if r.MaxLength != nil {
		p.MaxLength = *r.MaxLength
	}
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if r.TopP != nil {
		p.TopP = *r.TopP
	}
	if r.TopK != nil {
		p.TopK = *r.TopK
	}
	if r.CompleteSong != nil {
		p.CompleteSong = *r.CompleteSong
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks the parameter bounds
func (p Params) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.Internal(err)
	}

	details := make(map[string][]string)
	for _, fe := range fieldErrs {
		details[fe.Field()] = append(details[fe.Field()], fieldMessage(fe))
	}
	return apperror.Validation("Request validation failed", details)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "artist", "description":
		return fmt.Sprintf("%s contains invalid characters", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
