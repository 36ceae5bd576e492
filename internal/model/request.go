package model

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxNameLength bounds the subject name accepted by StartJob.
const MaxNameLength = 200

// SearchRequest is an investigation request for a single person.
type SearchRequest struct {
	Name       string `json:"name" yaml:"name" validate:"required,max=200"`
	City       string `json:"city,omitempty" yaml:"city,omitempty" validate:"max=200"`
	ExtraTerms string `json:"extraTerms,omitempty" yaml:"extraTerms,omitempty" validate:"max=500"`
}

var validate = validator.New()

// Normalize returns a copy with surrounding whitespace removed from every field.
func (r SearchRequest) Normalize() SearchRequest {
	return SearchRequest{
		Name:       strings.Join(strings.Fields(r.Name), " "),
		City:       strings.TrimSpace(r.City),
		ExtraTerms: strings.TrimSpace(r.ExtraTerms),
	}
}

// Validate checks the request and returns a *ValidationError describing
// every failing field.
func (r SearchRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "request", Message: err.Error()}}}
	}

	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, FieldError{
			Field:   jsonFieldName(fe.Field()),
			Message: fieldMessage(fe),
		})
	}
	return ve
}

// Terms splits ExtraTerms on commas, dropping empty entries.
func (r SearchRequest) Terms() []string {
	var out []string
	for _, t := range strings.Split(r.ExtraTerms, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func jsonFieldName(field string) string {
	switch field {
	case "Name":
		return "name"
	case "City":
		return "city"
	case "ExtraTerms":
		return "extraTerms"
	default:
		return strings.ToLower(field)
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is a required field"
	case "max":
		return "is too long (max " + fe.Param() + " characters)"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
