package genaistream

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// GenerationParams represents the optional generation parameters the GenAI backends accept.
// All fields are optional pointers to distinguish "not set" from "set to zero value".
// The exact schema is backend-specific; unset fields are never written to the body.
type GenerationParams struct {
	// MaxNewTokens sets the maximum number of tokens to generate
	MaxNewTokens *int `json:"max_new_tokens,omitempty"`

	// Temperature controls randomness (0.0-2.0)
	Temperature *float64 `json:"temperature,omitempty"`

	// TopK limits sampling to top K tokens
	TopK *int `json:"top_k,omitempty"`

	// TopP (nucleus sampling) - cumulative probability cutoff (0.0-1.0)
	TopP *float64 `json:"top_p,omitempty"`

	// TypicalP - typical decoding mass (0.0-1.0)
	TypicalP *float64 `json:"typical_p,omitempty"`

	// RepetitionPenalty reduces token repetition (> 0, 1.0 = off)
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`

	// Streaming asks the backend for an SSE answer instead of a single JSON object
	Streaming *bool `json:"streaming,omitempty"`
}

// ValidateGenerationParams validates generation parameters
func ValidateGenerationParams(params *GenerationParams) error {
	if params == nil {
		return nil // nil params is valid
	}

	if params.Temperature != nil {
		if *params.Temperature < 0.0 || *params.Temperature > 2.0 {
			return invalidParam("temperature", *params.Temperature, "must be between 0.0 and 2.0")
		}
	}

	if params.TopP != nil {
		if *params.TopP < 0.0 || *params.TopP > 1.0 {
			return invalidParam("top_p", *params.TopP, "must be between 0.0 and 1.0")
		}
	}

	if params.TypicalP != nil {
		if *params.TypicalP < 0.0 || *params.TypicalP > 1.0 {
			return invalidParam("typical_p", *params.TypicalP, "must be between 0.0 and 1.0")
		}
	}

	if params.TopK != nil {
		if *params.TopK < 0 {
			return invalidParam("top_k", *params.TopK, "must be non-negative")
		}
	}

	if params.MaxNewTokens != nil {
		if *params.MaxNewTokens < 1 {
			return invalidParam("max_new_tokens", *params.MaxNewTokens, "must be positive")
		}
	}

	if params.RepetitionPenalty != nil {
		if *params.RepetitionPenalty <= 0.0 {
			return invalidParam("repetition_penalty", *params.RepetitionPenalty, "must be positive")
		}
	}

	return nil
}

func invalidParam(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Err: ErrInvalidRequest}
}

// ApplyTo merges the set parameters into a JSON object body.
// Fields already present in body are overwritten; everything else is left untouched.
func (gp *GenerationParams) ApplyTo(body []byte) ([]byte, error) {
	if gp == nil {
		return body, nil
	}

	fields, err := gp.fields()
	if err != nil {
		return nil, err
	}

	out := body
	if len(out) == 0 {
		out = []byte("{}")
	}
	for _, f := range fields {
		out, err = sjson.SetRawBytes(out, f.key, f.value)
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", f.key, err)
		}
	}
	return out, nil
}

type paramField struct {
	key   string
	value json.RawMessage
}

// fields lists the set parameters in declaration order.
func (gp *GenerationParams) fields() ([]paramField, error) {
	raw, err := json.Marshal(gp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	var set map[string]json.RawMessage
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	order := []string{"max_new_tokens", "temperature", "top_k", "top_p", "typical_p", "repetition_penalty", "streaming"}
	fields := make([]paramField, 0, len(set))
	for _, key := range order {
		if v, ok := set[key]; ok {
			fields = append(fields, paramField{key: key, value: v})
		}
	}
	return fields, nil
}

// GetGenerationParams unmarshals a loosely typed map into GenerationParams
func GetGenerationParams(params map[string]interface{}) (*GenerationParams, error) {
	if params == nil {
		return &GenerationParams{}, nil
	}

	jsonBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	var gp GenerationParams
	if err := json.Unmarshal(jsonBytes, &gp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	return &gp, nil
}

// GetMaxNewTokens returns max_new_tokens with default fallback
func (gp *GenerationParams) GetMaxNewTokens(defaultValue int) int {
	if gp != nil && gp.MaxNewTokens != nil {
		return *gp.MaxNewTokens
	}
	return defaultValue
}

// GetTemperature returns temperature with default fallback
func (gp *GenerationParams) GetTemperature(defaultValue float64) float64 {
	if gp != nil && gp.Temperature != nil {
		return *gp.Temperature
	}
	return defaultValue
}

// formFields renders the set parameters as multipart form values.
func (gp *GenerationParams) formFields() map[string]string {
	if gp == nil {
		return nil
	}

	fields, err := gp.fields()
	if err != nil {
		return nil
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.key] = string(f.value)
	}
	return out
}
