package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	BaseURL string `mapstructure:"base-url" validate:"required,httpurl"`
	Addr    string `mapstructure:"addr" validate:"listenaddr"`
	Model   string `mapstructure:"model" validate:"nowhitespace,trimmed"`
	TopK    int    `mapstructure:"top-k" validate:"min=1,max=100"`
}

func TestCustomRules(t *testing.T) {
	tests := []struct {
		name   string
		in     sample
		failed []string
	}{
		{"valid", sample{BaseURL: "http://localhost:11434", Addr: ":8000", Model: "all-minilm", TopK: 3}, nil},
		{"relative url", sample{BaseURL: "/api", Addr: ":8000", Model: "m", TopK: 3}, []string{"base-url"}},
		{"ftp url", sample{BaseURL: "ftp://host", Addr: ":8000", Model: "m", TopK: 3}, []string{"base-url"}},
		{"bad addr", sample{BaseURL: "https://h", Addr: "8000", Model: "m", TopK: 3}, []string{"addr"}},
		{"spaced model", sample{BaseURL: "https://h", Addr: "0.0.0.0:1", Model: "all minilm", TopK: 3}, []string{"model"}},
		{"zero k", sample{BaseURL: "https://h", Addr: "", Model: "m", TopK: 0}, []string{"top-k"}},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verrs := v.ValidateWithLang(tt.in, LangEN)
			if len(tt.failed) == 0 {
				assert.False(t, verrs.HasErrors(), "unexpected: %v", verrs)
				return
			}
			require.True(t, verrs.HasErrors())
			for _, f := range tt.failed {
				assert.NotEmpty(t, verrs.ForField(f), "expected error for %s in %v", f, verrs)
			}
		})
	}
}

func TestTranslations(t *testing.T) {
	v := New()
	in := sample{BaseURL: "nope", Addr: ":1", Model: "m", TopK: 1}

	en := v.ValidateWithLang(in, LangEN)
	require.Equal(t, 1, en.Count())
	assert.Equal(t, "base-url must be an absolute http or https URL", en.Errors[0].Message)

	zh := v.ValidateWithLang(in, LangZH)
	require.Equal(t, 1, zh.Count())
	assert.Contains(t, zh.Errors[0].Message, "http 或 https")

	// 未知语言回落到英文
	other := v.ValidateWithLang(in, "fr")
	assert.Equal(t, en.Errors[0].Message, other.Errors[0].Message)
}

func TestStructErrors(t *testing.T) {
	assert.Nil(t, StructErrors(sample{BaseURL: "http://h", Model: "m", TopK: 1}))

	errs := StructErrors(sample{})
	assert.Len(t, errs, 2) // base-url required, top-k min
}

func TestValidationErrorsError(t *testing.T) {
	var nilErrs *ValidationErrors
	assert.Equal(t, "", nilErrs.Error())
	assert.Equal(t, 0, nilErrs.Count())

	errs := &ValidationErrors{Errors: []FieldError{{Message: "a"}, {Message: "b"}}}
	assert.Equal(t, "validation failed: a; b", errs.Error())
}
