package config

import (
	"testing"
)

func TestValidatorRequireNonEmpty(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{
			name:      "non-empty value",
			value:     "valid",
			wantError: false,
		},
		{
			name:      "empty value",
			value:     "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequireNonEmpty("test_field", tt.value)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorRequireNonNegative(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{name: "positive", value: 3, wantError: false},
		{name: "zero", value: 0, wantError: false},
		{name: "negative", value: -1, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequireNonNegative("retries", tt.value)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatePipelineConfig(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		retries   int
		topK      int
		maxEv     int
		wantError bool
	}{
		{name: "defaults", threshold: 0.6, retries: 2, topK: 5, maxEv: 10, wantError: false},
		{name: "retry disabled", threshold: 0, retries: 0, topK: 5, maxEv: 10, wantError: false},
		{name: "threshold above one", threshold: 1.5, retries: 0, topK: 5, maxEv: 10, wantError: true},
		{name: "negative retries", threshold: 0.5, retries: -1, topK: 5, maxEv: 10, wantError: true},
		{name: "zero topK", threshold: 0.5, retries: 1, topK: 0, maxEv: 10, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePipelineConfig(tt.threshold, tt.retries, tt.topK, tt.maxEv)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePipelineConfig() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidatorCombinedError(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("host", "")
	v.ValidatePort("port", 0)

	err := v.Error()
	if err == nil {
		t.Fatal("expected combined error, got nil")
	}
	if len(v.Errors()) != 2 {
		t.Errorf("expected 2 validation errors, got %d", len(v.Errors()))
	}
}
