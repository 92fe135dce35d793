// Package steering holds the suggestion-steering defaults and the tonality
// normalization rules used when a writer adjusts one axis of the blend.
package steering

import (
	"fmt"
	"math"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/aarnphm/morph/internal/models"
)

// Default steering parameters applied when a vault has no saved preferences.
const (
	DefaultTemperature    = 0.6
	DefaultNumSuggestions = 4

	MaxNumSuggestions = 8
)

// DefaultAuthors are the stylistic anchors offered out of the box.
var DefaultAuthors = []string{
	"Raymond Carver",
	"Franz Kafka",
	"Albert Camus",
	"Iain McGilchrist",
	"Ian McEwan",
}

// DefaultTonality starts every built-in axis at zero; the blend only shifts
// away from neutral when the writer moves a slider.
var DefaultTonality = map[string]float64{
	"formal":            0,
	"fun":               0,
	"soul-cartographer": 0,
	"logics":            0,
}

// Default returns a fresh steering configuration with default values. The
// maps and slices are copies, safe for callers to mutate.
func Default() models.Steering {
	return models.Steering{
		Authors:        append([]string(nil), DefaultAuthors...),
		Tonality:       copyTonality(DefaultTonality),
		Temperature:    DefaultTemperature,
		NumSuggestions: DefaultNumSuggestions,
	}
}

// Merge fills zero-valued fields of s from the defaults, so a request that
// names only some steering parameters still validates and runs. Explicit
// values, including an explicit zero temperature inside a populated struct,
// are kept when distinguishable from absence.
func Merge(s models.Steering) models.Steering {
	d := Default()
	if len(s.Authors) == 0 {
		s.Authors = d.Authors
	}
	if len(s.Tonality) == 0 {
		s.Tonality = d.Tonality
	}
	if s.Temperature == 0 {
		s.Temperature = d.Temperature
	}
	if s.NumSuggestions == 0 {
		s.NumSuggestions = d.NumSuggestions
	}
	return s
}

// NormalizeTonality returns a new tonality map where the edited axis holds
// the requested value and the other axes keep their weights unless the
// total would exceed 1, in which case the others are scaled down by
// (1-value)/restSum so the blend sums to at most 1. When the other axes sum
// to zero they are zeroed outright rather than divided. The edited axis is
// never rescaled. Callers must clamp value to [0,1] first; the function
// does not clamp. The input map is not modified.
func NormalizeTonality(tonality map[string]float64, edited string, value float64) map[string]float64 {
	out := copyTonality(tonality)
	out[edited] = value

	var restSum float64
	for k, v := range out {
		if k != edited {
			restSum += v
		}
	}
	if restSum+value <= 1 {
		return out
	}

	scale := 0.0
	if restSum > 0 {
		scale = (1 - value) / restSum
	}
	for k, v := range out {
		if k != edited {
			out[k] = v * scale
		}
	}
	return out
}

// Clamp01 bounds a slider value to [0,1], mapping NaN to 0. Transport
// layers apply it to the edited value before calling NormalizeTonality.
func Clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}

// TemperatureLabel maps a sampling temperature to its display name.
func TemperatureLabel(t float64) string {
	switch {
	case t <= 0.3:
		return "Boring"
	case t <= 0.6:
		return "Balanced"
	case t <= 0.8:
		return "Creative"
	default:
		return "Unhinged"
	}
}

// Axes returns the tonality axis names in stable order.
func Axes(tonality map[string]float64) []string {
	keys := make([]string, 0, len(tonality))
	for k := range tonality {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks a steering configuration before it drives a suggestion
// request.
func Validate(s models.Steering) error {
	errs := validation.Errors{
		"temperature":     validation.Validate(s.Temperature, validation.Min(0.0), validation.Max(1.0)),
		"num_suggestions": validation.Validate(s.NumSuggestions, validation.Required, validation.Min(1), validation.Max(MaxNumSuggestions)),
	}
	if err := errs.Filter(); err != nil {
		return err
	}
	for _, a := range s.Authors {
		if a == "" {
			return fmt.Errorf("steering: blank author name")
		}
	}
	for k, v := range s.Tonality {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("steering: tonality %q out of range: %v", k, v)
		}
	}
	return nil
}

func copyTonality(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
