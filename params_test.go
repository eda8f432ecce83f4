package genaistream

import (
	"errors"
	"testing"

	"github.com/tidwall/gjson"
)

func TestValidateGenerationParams_Temperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature *float64
		wantErr     bool
	}{
		{"nil temperature is valid", nil, false},
		{"temperature 0.0", float64Ptr(0.0), false},
		{"temperature 1.0", float64Ptr(1.0), false},
		{"temperature 2.0", float64Ptr(2.0), false},
		{"temperature -0.1 is invalid", float64Ptr(-0.1), true},
		{"temperature 2.1 is invalid", float64Ptr(2.1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := &GenerationParams{
				Temperature: tt.temperature,
			}
			err := ValidateGenerationParams(params)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGenerationParams() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil && Classify(err) != KindInvalidRequest {
				t.Error("validation error should be classified as invalid request")
			}
		})
	}
}

func TestValidateGenerationParams_Probabilities(t *testing.T) {
	tests := []struct {
		name    string
		params  *GenerationParams
		wantErr bool
	}{
		{"nil params is valid", nil, false},
		{"top_p 0.0", &GenerationParams{TopP: float64Ptr(0.0)}, false},
		{"top_p 1.0", &GenerationParams{TopP: float64Ptr(1.0)}, false},
		{"top_p 1.1 is invalid", &GenerationParams{TopP: float64Ptr(1.1)}, true},
		{"typical_p 0.95", &GenerationParams{TypicalP: float64Ptr(0.95)}, false},
		{"typical_p -0.5 is invalid", &GenerationParams{TypicalP: float64Ptr(-0.5)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGenerationParams(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGenerationParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateGenerationParams_Counts(t *testing.T) {
	tests := []struct {
		name    string
		params  *GenerationParams
		field   string
		wantErr bool
	}{
		{"top_k 0", &GenerationParams{TopK: intPtr(0)}, "", false},
		{"top_k 10", &GenerationParams{TopK: intPtr(10)}, "", false},
		{"top_k -1 is invalid", &GenerationParams{TopK: intPtr(-1)}, "top_k", true},
		{"max_new_tokens 1", &GenerationParams{MaxNewTokens: intPtr(1)}, "", false},
		{"max_new_tokens 0 is invalid", &GenerationParams{MaxNewTokens: intPtr(0)}, "max_new_tokens", true},
		{"repetition_penalty 1.03", &GenerationParams{RepetitionPenalty: float64Ptr(1.03)}, "", false},
		{"repetition_penalty 0 is invalid", &GenerationParams{RepetitionPenalty: float64Ptr(0)}, "repetition_penalty", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGenerationParams(tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateGenerationParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if validationErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", validationErr.Field, tt.field)
			}
		})
	}
}

func TestGenerationParams_ApplyTo(t *testing.T) {
	params := &GenerationParams{
		MaxNewTokens: intPtr(128),
		Temperature:  float64Ptr(0.5),
		Streaming:    boolPtr(true),
	}

	body, err := params.ApplyTo([]byte(`{"messages":"hi","temperature":1}`))
	if err != nil {
		t.Fatalf("ApplyTo() error = %v", err)
	}

	if got := gjson.GetBytes(body, "messages").String(); got != "hi" {
		t.Errorf("messages = %q, want %q", got, "hi")
	}
	if got := gjson.GetBytes(body, "max_new_tokens").Int(); got != 128 {
		t.Errorf("max_new_tokens = %d, want 128", got)
	}
	if got := gjson.GetBytes(body, "temperature").Float(); got != 0.5 {
		t.Errorf("temperature = %v, want 0.5", got)
	}
	if !gjson.GetBytes(body, "streaming").Bool() {
		t.Error("streaming should be true")
	}
	if gjson.GetBytes(body, "top_k").Exists() {
		t.Error("unset parameters must not be written")
	}
}

func TestGenerationParams_ApplyToNil(t *testing.T) {
	var params *GenerationParams
	body, err := params.ApplyTo([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("ApplyTo() error = %v", err)
	}
	if string(body) != `{"a":1}` {
		t.Errorf("body = %s, want unchanged", body)
	}
}

func TestGenerationParams_FormFields(t *testing.T) {
	params := &GenerationParams{MaxNewTokens: intPtr(64), Streaming: boolPtr(false)}

	fields := params.formFields()
	if fields["max_new_tokens"] != "64" {
		t.Errorf("max_new_tokens = %q, want 64", fields["max_new_tokens"])
	}
	if fields["streaming"] != "false" {
		t.Errorf("streaming = %q, want false", fields["streaming"])
	}
	if _, ok := fields["temperature"]; ok {
		t.Error("unset temperature must not be rendered")
	}
}

func TestGetGenerationParams(t *testing.T) {
	gp, err := GetGenerationParams(map[string]interface{}{
		"max_new_tokens": 256,
		"top_p":          0.9,
	})
	if err != nil {
		t.Fatalf("GetGenerationParams() error = %v", err)
	}

	if got := gp.GetMaxNewTokens(1024); got != 256 {
		t.Errorf("GetMaxNewTokens() = %d, want 256", got)
	}
	if got := gp.GetTemperature(0.7); got != 0.7 {
		t.Errorf("GetTemperature() = %v, want default 0.7", got)
	}
	if gp.TopP == nil || *gp.TopP != 0.9 {
		t.Errorf("TopP = %v, want 0.9", gp.TopP)
	}
}

func TestGenerationParams_Defaults(t *testing.T) {
	tests := []struct {
		name         string
		params       *GenerationParams
		defaultValue int
		expected     int
	}{
		{
			name:         "nil params returns default",
			params:       nil,
			defaultValue: 1024,
			expected:     1024,
		},
		{
			name:         "unset returns default",
			params:       &GenerationParams{},
			defaultValue: 1024,
			expected:     1024,
		},
		{
			name: "set value wins",
			params: &GenerationParams{
				MaxNewTokens: intPtr(500),
			},
			defaultValue: 1000,
			expected:     500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.params.GetMaxNewTokens(tt.defaultValue)
			if result != tt.expected {
				t.Errorf("GetMaxNewTokens(%d) = %d, want %d", tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:  "temperature",
		Value:  2.5,
		Reason: "must be between 0.0 and 2.0",
		Err:    ErrInvalidRequest,
	}

	msg := err.Error()
	if msg == "" {
		t.Error("error message is empty")
	}

	// Check that error can be unwrapped
	if !errors.Is(err, ErrInvalidRequest) {
		t.Error("ValidationError should wrap ErrInvalidRequest")
	}
}
