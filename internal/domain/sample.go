package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// SampleOrigin records how a numeric field arrived at its value.
type SampleOrigin uint8

const (
	// SampleParsed means the field was present and numerically valid.
	SampleParsed SampleOrigin = iota
	// SampleDefaulted means the field was present but non-numeric, NaN, or
	// negative, and was replaced with zero.
	SampleDefaulted
	// SampleAbsent means the field was missing entirely; the value is zero.
	SampleAbsent
)

// Sample is a numeric field with provenance. It centralizes the defaulting
// policy for loosely-typed inputs: hazard intensities, insured values, and
// baseline hazard scores all become non-negative finite floats exactly once,
// at parse time.
type Sample struct {
	Value  float64
	Origin SampleOrigin
}

// ParsedSample wraps an already-validated value.
func ParsedSample(v float64) Sample { return Sample{Value: v, Origin: SampleParsed} }

// DefaultedSample is a present-but-unusable field coerced to zero.
func DefaultedSample() Sample { return Sample{Origin: SampleDefaulted} }

// AbsentSample is a missing field, valued zero.
func AbsentSample() Sample { return Sample{Origin: SampleAbsent} }

// NumericSample classifies a raw float: NaN, infinite, or negative values are
// defaulted to zero.
func NumericSample(v float64) Sample {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return DefaultedSample()
	}
	return ParsedSample(v)
}

// JSONSample classifies a raw JSON field. A nil message is absent. Numbers
// and numeric strings parse normally; anything else defaults to zero.
func JSONSample(raw json.RawMessage) Sample {
	if len(raw) == 0 {
		return AbsentSample()
	}
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return AbsentSample()
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return DefaultedSample()
	}
	return NumericSample(v)
}
