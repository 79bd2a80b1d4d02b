package finishes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HazardFlags is the fixed shape of a chemical's hazard payload: GHS-style
// hazard codes, hazard categories and a signal word.
type HazardFlags struct {
	HazardCodes []string `json:"hazard_codes,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	SignalWord  string   `json:"signal_word,omitempty"`
}

// ParseHazardFlags decodes a hazard payload strictly: it must be a single
// JSON object carrying only the known keys with correctly typed values.
// Loose payloads are a validation error, not something to paper over.
func ParseHazardFlags(raw string) (*HazardFlags, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var hf HazardFlags
	if err := dec.Decode(&hf); err != nil {
		return nil, fmt.Errorf("hazard flags: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("hazard flags: trailing data after JSON object")
	}
	return &hf, nil
}
