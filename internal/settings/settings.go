// Package settings holds the user-facing graph settings and persists them
// as a JSON file.
package settings

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/coffersTech/nanoflow/internal/engine"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Settings are what a user can tune from the UI. FontSize and Layout are
// only stored and served back to the renderer; the rest drive the transform.
type Settings struct {
	FontSize          float64  `json:"fontSize" yaml:"fontSize" validate:"min=0,max=10"`
	IsTransactionView bool     `json:"isTransactionView" yaml:"isTransactionView"`
	Layout            string   `json:"layout" yaml:"layout" validate:"oneof=cose fcose"`
	Threshold         float64  `json:"threshold" yaml:"threshold" validate:"min=0"`
	NodeMultiplier    float64  `json:"nodeMultiplier" yaml:"nodeMultiplier" validate:"min=0,max=50"`
	ExcludedPhrases   []string `json:"excludedPhrases" yaml:"excludedPhrases" validate:"dive,required"`
	Ordering          string   `json:"ordering" yaml:"ordering" validate:"oneof=arrival session"`
}

// Default returns the settings a fresh install starts with.
func Default() Settings {
	return Settings{
		FontSize:          5,
		IsTransactionView: false,
		Layout:            "cose",
		Threshold:         1,
		NodeMultiplier:    20,
		ExcludedPhrases:   []string{"pg_database", "BEGIN"},
		Ordering:          engine.OrderArrival.String(),
	}
}

// Validate checks every field and reports the first violation.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// EngineOptions converts the settings the transform reads.
func (s Settings) EngineOptions() engine.Options {
	ordering, _ := engine.ParseOrdering(s.Ordering)
	return engine.Options{
		TransactionView: s.IsTransactionView,
		Threshold:       s.Threshold,
		NodeMultiplier:  s.NodeMultiplier,
		ExcludedPhrases: append([]string(nil), s.ExcludedPhrases...),
		Ordering:        ordering,
	}
}

// Clone returns a copy that shares no memory with s.
func (s Settings) Clone() Settings {
	c := s
	c.ExcludedPhrases = append([]string(nil), s.ExcludedPhrases...)
	return c
}

// Set assigns one field from its text form, addressed by its JSON name.
// Excluded phrases are given comma separated; an empty value clears them.
func (s *Settings) Set(key, value string) error {
	switch key {
	case "fontSize":
		return parseFloat(key, value, &s.FontSize)
	case "isTransactionView":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return flowerr.Errorf(flowerr.CodeSettingsInvalidValue, "%s: %q is not a boolean", key, value)
		}
		s.IsTransactionView = b
	case "layout":
		s.Layout = value
	case "threshold":
		return parseFloat(key, value, &s.Threshold)
	case "nodeMultiplier":
		return parseFloat(key, value, &s.NodeMultiplier)
	case "excludedPhrases":
		s.ExcludedPhrases = []string{}
		if value != "" {
			for _, p := range strings.Split(value, ",") {
				s.ExcludedPhrases = append(s.ExcludedPhrases, strings.TrimSpace(p))
			}
		}
	case "ordering":
		s.Ordering = value
	default:
		return flowerr.Errorf(flowerr.CodeSettingsInvalidValue, "unknown setting %q", key)
	}
	return nil
}

func parseFloat(key, value string, dst *float64) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return flowerr.Errorf(flowerr.CodeSettingsInvalidValue, "%s: %q is not a number", key, value)
	}
	*dst = f
	return nil
}

func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrs) == 0 {
		return flowerr.Wrap(err, flowerr.CodeSettingsInvalidValue, "invalid settings")
	}

	e := validationErrs[0]
	field := e.Field()
	var msg string
	switch e.Tag() {
	case "required":
		msg = fmt.Sprintf("%s: must not contain empty values", field)
	case "min":
		msg = fmt.Sprintf("%s: must be at least %s", field, e.Param())
	case "max":
		msg = fmt.Sprintf("%s: must not exceed %s", field, e.Param())
	case "oneof":
		msg = fmt.Sprintf("%s: must be one of [%s]", field, e.Param())
	default:
		msg = fmt.Sprintf("%s: validation failed (%s)", field, e.Tag())
	}
	return flowerr.New(flowerr.CodeSettingsInvalidValue, msg, flowerr.Field("field", field))
}
